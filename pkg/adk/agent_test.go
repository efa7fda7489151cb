package adk

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays canned responses and records what it was sent.
type scriptedProvider struct {
	replies []reply
	seen    [][]Message
	tools   [][]string
}

type reply struct {
	text string
	call *ToolCall
	err  error
}

func (p *scriptedProvider) GenerateResponse(_ context.Context, history []Message, tools []Tool) (string, *ToolCall, error) {
	p.seen = append(p.seen, history)
	var names []string
	for _, t := range tools {
		names = append(names, t.Name())
	}
	p.tools = append(p.tools, names)
	if len(p.replies) == 0 {
		return "", &ToolCall{ToolName: "Echo"}, nil
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r.text, r.call, r.err
}

func (p *scriptedProvider) ListModels(context.Context) ([]string, error) {
	return []string{"fake"}, nil
}

type echoTool struct {
	name string
	got  []map[string]interface{}
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes its input" }
func (e *echoTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string", "description": "what to echo"},
		},
	}
}

func (e *echoTool) Execute(_ context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	e.got = append(e.got, args)
	if progress != nil {
		progress("echoing")
	}
	return "echo: " + args["text"].(string), nil
}

func TestAgentChatWithToolCall(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{
		{call: &ToolCall{ToolName: "Echo", Args: map[string]interface{}{"text": "hi"}}},
		{text: "done"},
	}}
	tool := &echoTool{name: "Echo"}

	agent := NewAgent(provider)
	agent.RegisterTool(tool)
	agent.RegisterTool(&echoTool{name: "Another"})
	agent.SetSystemPrompt("be brief")

	var progress []string
	resp, err := agent.Chat(context.Background(), "say hi", func(m string) { progress = append(progress, m) })
	require.NoError(t, err)
	assert.Equal(t, "done", resp)
	assert.Equal(t, []string{"echoing"}, progress)
	require.Len(t, tool.got, 1)

	require.Len(t, provider.seen, 2)
	assert.Equal(t, Message{Role: "system", Content: "be brief"}, provider.seen[0][0])
	assert.Equal(t, []string{"Another", "Echo"}, provider.tools[0])

	second := provider.seen[1]
	assert.Equal(t, "function", second[len(second)-1].Role)
	assert.Contains(t, second[len(second)-1].Content, "echo: hi")

	history := agent.History()
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, Message{Role: "model", Content: "done"}, history[len(history)-1])
}

func TestAgentUnknownTool(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{
		{call: &ToolCall{ToolName: "Missing"}},
		{text: "sorry"},
	}}
	agent := NewAgent(provider)

	resp, err := agent.Chat(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "sorry", resp)
	assert.Contains(t, provider.seen[1][len(provider.seen[1])-1].Content, "Tool Missing not found")
}

func TestAgentStopsAfterMaxSteps(t *testing.T) {
	agent := NewAgent(&scriptedProvider{})
	agent.RegisterTool(&echoTool{name: "Echo"})

	_, err := agent.Chat(context.Background(), "loop", nil)
	assert.ErrorContains(t, err, "no answer after")
}

func TestAgentProviderError(t *testing.T) {
	agent := NewAgent(&scriptedProvider{replies: []reply{{err: errors.New("quota")}}})
	_, err := agent.Chat(context.Background(), "x", nil)
	assert.EqualError(t, err, "quota")
}

func TestToolSchema(t *testing.T) {
	s := toolSchema((&echoTool{}).Schema())
	assert.Equal(t, genai.TypeObject, s.Type)
	require.Contains(t, s.Properties, "text")
	assert.Equal(t, genai.TypeString, s.Properties["text"].Type)
	assert.Equal(t, "what to echo", s.Properties["text"].Description)

	empty := toolSchema(map[string]interface{}{"type": "object", "properties": map[string]interface{}{}})
	assert.Equal(t, genai.TypeString, empty.Type)
}

func TestSystemPromptIsEmbedded(t *testing.T) {
	assert.Contains(t, GetSystemPrompt(), "EvaluateControls")
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), "openai", "k", "")
	assert.ErrorContains(t, err, "unknown provider")
}
