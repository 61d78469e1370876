package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveExtractedAndEnv(t *testing.T) {
	ctx := NewContext(map[string]string{"HOST": "api.local"})
	ctx.AddExtracted(map[string]string{"id": "42"})

	assert.Equal(t, "/pets/42", ctx.Resolve("/pets/${id}"))
	assert.Equal(t, "api.local", ctx.Resolve("${env.HOST}"))
	assert.Equal(t, "/pets/42?host=api.local", ctx.Resolve("/pets/${id}?host=${env.HOST}"))
}

func TestResolveUnknownPlaceholdersStayLiteral(t *testing.T) {
	ctx := NewContext(nil)
	assert.Equal(t, `{"tpl":"${not_defined}"}`, ctx.Resolve(`{"tpl":"${not_defined}"}`))
	assert.Equal(t, "${env.MISSING}", ctx.Resolve("${env.MISSING}"))
}

func TestResolveIsIdentityWithoutPlaceholders(t *testing.T) {
	ctx := NewContext(nil)
	for _, template := range []string{"", "/pets", `{"a":1}`, "plain $ sign", "almost${"} {
		assert.Equal(t, template, ctx.Resolve(template))
	}
}

func TestResolveSinglePassNoRecursion(t *testing.T) {
	ctx := NewContext(nil)
	// The substituted value itself looks like a placeholder; it must not be
	// expanded again.
	ctx.AddExtracted(map[string]string{"a": "${b}", "b": "deep"})
	assert.Equal(t, "${b}", ctx.Resolve("${a}"))
}

func TestAddExtractedOverwrites(t *testing.T) {
	ctx := NewContext(nil)
	ctx.AddExtracted(map[string]string{"id": "1"})
	ctx.AddExtracted(map[string]string{"id": "2"})
	assert.Equal(t, "2", ctx.Resolve("${id}"))
	assert.Equal(t, map[string]string{"id": "2"}, ctx.Extracted())
}

func TestEnvPrefixDoesNotReadExtracted(t *testing.T) {
	ctx := NewContext(nil)
	ctx.AddExtracted(map[string]string{"env.KEY": "x", "KEY": "y"})
	// ${env.KEY} consults only the environment map.
	assert.Equal(t, "${env.KEY}", ctx.Resolve("${env.KEY}"))
}
