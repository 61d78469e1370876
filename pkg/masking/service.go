// Package masking redacts credentials from step results before they are
// persisted or forwarded to notification targets. Assertions and extractions
// always run on the unmasked response; masking applies only to what is stored.
package masking

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/qaforge/qaforge/pkg/models"
)

// headerMask replaces the value of sensitive headers wholesale.
const headerMask = "__MASKED__"

// sensitiveHeaders are masked by name regardless of value.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
}

// Service applies data masking to step results. Created once at application
// startup. Thread-safe and stateless aside from compiled patterns.
type Service struct {
	patterns []*CompiledPattern
}

// NewService creates a masking service with the built-in rules plus any extra
// patterns. All patterns are compiled eagerly at creation time. Invalid
// patterns are logged and skipped.
func NewService(extra ...Pattern) *Service {
	s := &Service{}

	rules := append(BuiltinPatterns(), extra...)
	for _, rule := range rules {
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", rule.Name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        rule.Name,
			Regex:       compiled,
			Replacement: rule.Replacement,
		})
	}

	slog.Info("Masking service initialized", "compiled_patterns", len(s.patterns))
	return s
}

// MaskString applies every compiled pattern to data.
func (s *Service) MaskString(data string) string {
	for _, p := range s.patterns {
		data = p.Regex.ReplaceAllString(data, p.Replacement)
	}
	return data
}

// MaskStepResult redacts the stored response body, error message, and
// sensitive headers in place. Extracted values are left untouched: chained
// scenarios legitimately thread credentials (login then reuse the token)
// and masking them would break the later steps.
func (s *Service) MaskStepResult(result *models.StepResult) {
	if result.ActualBody != "" {
		result.ActualBody = s.MaskString(result.ActualBody)
	}
	if result.ErrorMessage != "" {
		result.ErrorMessage = s.MaskString(result.ErrorMessage)
	}
	for name := range result.ActualHeaders {
		if sensitiveHeaders[strings.ToLower(name)] {
			result.ActualHeaders[name] = headerMask
		}
	}
}
