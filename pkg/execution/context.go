// Package execution implements scenario execution: placeholder resolution,
// HTTP step dispatch, assertion evaluation, and the run driver that threads
// extracted values from one step into the next.
package execution

import (
	"regexp"
	"strings"
	"sync"
)

// placeholderPattern matches ${NAME} and ${env.NAME} fragments.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Context holds values extracted from earlier steps plus the run environment,
// and resolves ${...} placeholders in templates.
type Context struct {
	mu        sync.RWMutex
	extracted map[string]string
	env       map[string]string
}

// NewContext creates a context seeded with the run environment.
func NewContext(env map[string]string) *Context {
	c := &Context{
		extracted: make(map[string]string),
		env:       make(map[string]string, len(env)),
	}
	for k, v := range env {
		c.env[k] = v
	}
	return c
}

// Resolve substitutes ${NAME} with extracted values and ${env.NAME} with
// environment values in a single left-to-right pass. There is no recursive
// expansion. Unknown placeholders are left literal so harmless ${...}
// fragments inside JSON bodies survive.
func (c *Context) Resolve(template string) string {
	if !strings.Contains(template, "${") {
		return template
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-1]
		if envKey, ok := strings.CutPrefix(name, "env."); ok {
			if v, ok := c.env[envKey]; ok {
				return v
			}
			return match
		}
		if v, ok := c.extracted[name]; ok {
			return v
		}
		return match
	})
}

// AddExtracted merges step extractions into the context. Later steps see the
// merged values; name collisions overwrite.
func (c *Context) AddExtracted(values map[string]string) {
	if len(values) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.extracted[k] = v
	}
}

// Extracted returns a copy of the current extracted values.
func (c *Context) Extracted() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.extracted))
	for k, v := range c.extracted {
		out[k] = v
	}
	return out
}
