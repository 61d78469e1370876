package masking

import "regexp"

// Pattern is a regex-based masking rule.
type Pattern struct {
	Name        string
	Pattern     string
	Replacement string
	Description string
}

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// BuiltinPatterns returns the default masking rules applied to persisted step
// results. Target APIs under test frequently echo credentials back in bodies
// and error messages; these keep them out of stored results and notifications.
func BuiltinPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "api_key",
			Pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{16,})["']?`,
			Replacement: `"api_key": "__MASKED_API_KEY__"`,
			Description: "API keys",
		},
		{
			Name:        "password",
			Pattern:     `(?i)(?:password|pwd|passwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
			Replacement: `"password": "__MASKED_PASSWORD__"`,
			Description: "Passwords",
		},
		{
			Name:        "token",
			Pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"token": "__MASKED_TOKEN__"`,
			Description: "Access tokens",
		},
		{
			Name:        "bearer_header",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9_\-\.~+/]{16,}=*`,
			Replacement: `Bearer __MASKED_TOKEN__`,
			Description: "Bearer authorization values",
		},
		{
			Name:        "certificate",
			Pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
			Replacement: `__MASKED_CERTIFICATE__`,
			Description: "SSL/TLS certificates and PEM keys",
		},
		{
			Name:        "aws_access_key",
			Pattern:     `\bAKIA[A-Z0-9]{16}\b`,
			Replacement: `__MASKED_AWS_KEY__`,
			Description: "AWS access keys",
		},
		{
			Name:        "github_token",
			Pattern:     `gh[ps]_[A-Za-z0-9_]{36,255}`,
			Replacement: `__MASKED_GITHUB_TOKEN__`,
			Description: "GitHub tokens",
		},
		{
			Name:        "slack_token",
			Pattern:     `(?i)xox[baprs]-[A-Za-z0-9-]{10,72}`,
			Replacement: `__MASKED_SLACK_TOKEN__`,
			Description: "Slack tokens",
		},
	}
}
