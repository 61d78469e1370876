package specsource

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qaforge/qaforge/pkg/models"
)

// httpMethods are the OpenAPI path-item keys that denote operations.
var httpMethods = []string{"get", "post", "put", "patch", "delete", "head", "options"}

// ListOperations extracts the declared (method, path) operations from an
// OpenAPI document. YAML and JSON inputs are both handled; only the paths
// section is interpreted, which is all coverage calculation needs.
func ListOperations(content string) ([]models.Operation, error) {
	var doc struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("spec declares no paths")
	}

	var operations []models.Operation
	for path, item := range doc.Paths {
		for _, method := range httpMethods {
			op, ok := item[method]
			if !ok {
				continue
			}
			operation := models.Operation{
				Method: strings.ToUpper(method),
				Path:   path,
			}
			if fields, ok := op.(map[string]any); ok {
				if id, ok := fields["operationId"].(string); ok {
					operation.OperationID = id
				}
			}
			operations = append(operations, operation)
		}
	}

	sort.Slice(operations, func(i, j int) bool {
		if operations[i].Path != operations[j].Path {
			return operations[i].Path < operations[j].Path
		}
		return operations[i].Method < operations[j].Method
	})
	return operations, nil
}
