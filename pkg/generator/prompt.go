package generator

import (
	"fmt"
	"strings"
)

// systemPrompt instructs the model to emit scenarios as strict JSON matching
// the scenario schema. The response_format knob alone is not enough: models
// still need the schema spelled out.
const systemPrompt = `You are an API test engineer. Given an OpenAPI specification, a target base URL, and optional requirements, produce executable HTTP test scenarios.

Respond with a single JSON object of the form:
{
  "scenarios": [
    {
      "name": "string, required",
      "description": "string",
      "tags": ["string"],
      "steps": [
        {
          "index": 0,
          "name": "string, required",
          "method": "GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS",
          "endpoint": "/path, may contain ${var} placeholders",
          "headers": [{"name": "string", "value": "string"}],
          "body": "optional request body, may contain ${var} placeholders",
          "expected": {
            "status": 200,
            "status_range": {"min": 200, "max": 299},
            "body_contains": ["substring"],
            "body_fields": {"json.path": {"type": "EXACT|ANY_PRESENT|REGEX|GREATER_THAN|LESS_THAN|ONE_OF|NOT_NULL|IS_NULL", "value": "...", "pattern": "...", "values": ["..."]}},
            "headers": {"Header-Name": "expected value"}
          },
          "extractions": {"variableName": "json.path.in.response"},
          "timeout_ms": 30000
        }
      ]
    }
  ]
}

Rules:
- Step indices start at 0 and increase by 1 without gaps.
- Values extracted in one step may be referenced as ${variableName} in later steps.
- Every step needs at least one expectation.
- Emit only the JSON object, no prose and no markdown fences.`

const securityPromptAddendum = `
- Include negative and security-oriented scenarios: missing/invalid auth, malformed payloads, injection probes in string fields, and access to other users' resources.`

func buildSystemPrompt(includeSecurityTests bool) string {
	if includeSecurityTests {
		return systemPrompt + securityPromptAddendum
	}
	return systemPrompt
}

func buildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce at most %d scenarios with at most %d steps each.\n\n",
		in.Config.MaxScenarios, in.Config.MaxStepsPerScenario)
	if in.Requirements != "" {
		fmt.Fprintf(&b, "Requirements:\n%s\n\n", in.Requirements)
	}
	format := in.SpecFormat
	if format == "" {
		format = "unknown"
	}
	fmt.Fprintf(&b, "API specification (%s):\n%s\n", format, in.SpecContent)
	return b.String()
}
