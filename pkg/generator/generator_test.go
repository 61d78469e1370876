package generator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/qaforge/pkg/llm"
	"github.com/qaforge/qaforge/pkg/models"
)

// cannedClient returns a fixed completion and records the last request.
type cannedClient struct {
	content  string
	err      error
	fallback bool
	lastReq  *llm.AiRequest
}

func (c *cannedClient) Complete(ctx context.Context, req *llm.AiRequest) (*llm.AiResponse, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	if c.fallback {
		return &llm.AiResponse{ID: llm.FallbackID}, nil
	}
	return &llm.AiResponse{
		ID:      "cmpl-1",
		Choices: []llm.AiChoice{{Message: llm.AiMessage{Role: llm.RoleAssistant, Content: c.content}}},
	}, nil
}

func (c *cannedClient) Stream(ctx context.Context, req *llm.AiRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (c *cannedClient) Healthy(ctx context.Context) bool { return true }

// seqIDs issues id-1, id-2, ...
type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

func testInput() Input {
	return Input{
		SpecContent: `{"paths":{"/pets":{"get":{}}}}`,
		SpecFormat:  "json",
		Config:      models.DefaultPackageConfig(),
	}
}

const twoScenarioJSON = `{
  "scenarios": [
    {
      "name": "list pets",
      "steps": [
        {"index": 0, "name": "get pets", "method": "GET", "endpoint": "/pets",
         "expected": {"status": 200}, "timeout_ms": 5000}
      ]
    },
    {
      "name": "create then fetch",
      "steps": [
        {"index": 0, "name": "create", "method": "post", "endpoint": "/pets",
         "body": "{\"name\":\"rex\"}",
         "expected": {"status": 201},
         "extractions": {"id": "id"}},
        {"index": 1, "name": "fetch", "method": "GET", "endpoint": "/pets/${id}",
         "expected": {"status": 200}, "timeout_ms": 5000}
      ]
    }
  ]
}`

func TestGenerate_ParsesAndStampsScenarios(t *testing.T) {
	client := &cannedClient{content: twoScenarioJSON}
	gen := New(client, &seqIDs{})

	scenarios, err := gen.Generate(context.Background(), "pkg-1", testInput())
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	assert.Equal(t, "id-1", scenarios[0].ID)
	assert.Equal(t, "pkg-1", scenarios[0].PackageID)
	assert.Equal(t, models.SourceAIGenerated, scenarios[0].Source)
	assert.Equal(t, models.ScenarioStatusActive, scenarios[0].Status)

	// Lowercase method is normalized; missing timeout gets the default.
	create := scenarios[1].Steps[0]
	assert.Equal(t, "POST", create.Method)
	assert.Equal(t, int64(DefaultStepTimeoutMs), create.TimeoutMs)

	// The request pinned JSON response format.
	require.NotNil(t, client.lastReq.ResponseFormat)
	assert.Equal(t, llm.ResponseFormatJSON, client.lastReq.ResponseFormat.Type)
}

func TestGenerate_ToleratesMarkdownFences(t *testing.T) {
	client := &cannedClient{content: "```json\n" + twoScenarioJSON + "\n```"}
	gen := New(client, &seqIDs{})

	scenarios, err := gen.Generate(context.Background(), "pkg-1", testInput())
	require.NoError(t, err)
	assert.Len(t, scenarios, 2)
}

func TestGenerate_DropsInvalidScenarios(t *testing.T) {
	// Second scenario has a gap in step indices and must be dropped.
	content := `{"scenarios": [
		{"name": "good", "steps": [
			{"index": 0, "name": "s", "method": "GET", "endpoint": "/a", "expected": {"status": 200}, "timeout_ms": 5000}
		]},
		{"name": "bad indices", "steps": [
			{"index": 0, "name": "s", "method": "GET", "endpoint": "/a", "expected": {"status": 200}, "timeout_ms": 5000},
			{"index": 2, "name": "s", "method": "GET", "endpoint": "/b", "expected": {"status": 200}, "timeout_ms": 5000}
		]},
		{"name": "bad method", "steps": [
			{"index": 0, "name": "s", "method": "FETCH", "endpoint": "/a", "expected": {"status": 200}, "timeout_ms": 5000}
		]}
	]}`
	gen := New(&cannedClient{content: content}, &seqIDs{})

	scenarios, err := gen.Generate(context.Background(), "pkg-1", testInput())
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "good", scenarios[0].Name)
}

func TestGenerate_TruncatesToMaxScenarios(t *testing.T) {
	content := `{"scenarios": [`
	for i := 0; i < 5; i++ {
		if i > 0 {
			content += ","
		}
		content += fmt.Sprintf(`{"name": "s%d", "steps": [
			{"index": 0, "name": "s", "method": "GET", "endpoint": "/a", "expected": {"status": 200}, "timeout_ms": 5000}
		]}`, i)
	}
	content += `]}`

	in := testInput()
	in.Config.MaxScenarios = 3
	gen := New(&cannedClient{content: content}, &seqIDs{})

	scenarios, err := gen.Generate(context.Background(), "pkg-1", in)
	require.NoError(t, err)
	assert.Len(t, scenarios, 3)
}

func TestGenerate_FailsOnUnparseableResponse(t *testing.T) {
	gen := New(&cannedClient{content: "sorry, I cannot help with that"}, &seqIDs{})

	_, err := gen.Generate(context.Background(), "pkg-1", testInput())
	var genErr *GenerationFailedError
	require.ErrorAs(t, err, &genErr)
}

func TestGenerate_FailsOnFallbackResponse(t *testing.T) {
	gen := New(&cannedClient{fallback: true}, &seqIDs{})

	_, err := gen.Generate(context.Background(), "pkg-1", testInput())
	var genErr *GenerationFailedError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestGenerate_FailsWhenNothingSurvivesValidation(t *testing.T) {
	content := `{"scenarios": [{"name": "", "steps": []}]}`
	gen := New(&cannedClient{content: content}, &seqIDs{})

	_, err := gen.Generate(context.Background(), "pkg-1", testInput())
	var genErr *GenerationFailedError
	require.ErrorAs(t, err, &genErr)
}

func TestGenerate_SecurityFlagExtendsPrompt(t *testing.T) {
	client := &cannedClient{content: twoScenarioJSON}
	gen := New(client, &seqIDs{})

	in := testInput()
	in.Config.IncludeSecurityTests = true
	_, err := gen.Generate(context.Background(), "pkg-1", in)
	require.NoError(t, err)
	assert.Contains(t, client.lastReq.Messages[0].Content, "security")

	in.Config.IncludeSecurityTests = false
	_, err = gen.Generate(context.Background(), "pkg-1", in)
	require.NoError(t, err)
	assert.NotContains(t, client.lastReq.Messages[0].Content, "injection")
}
