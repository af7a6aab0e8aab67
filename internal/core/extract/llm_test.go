package extract

import (
	"context"
	"testing"

	"recipe-ingest/internal/core/ai"
	"recipe-ingest/internal/core/prompt"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend 依序回放預先排定的回應
type scriptedBackend struct {
	responses []string
	requests  []*ai.ChatRequest
}

func (b *scriptedBackend) Chat(_ context.Context, req *ai.ChatRequest) (string, error) {
	b.requests = append(b.requests, req)
	if len(b.responses) == 0 {
		return "", nil
	}
	next := b.responses[0]
	b.responses = b.responses[1:]
	return next, nil
}

func llmTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Extract.RepairTurns = 2
	cfg.Extract.MaxInputChars = 20000
	cfg.OpenRouter.Temperature = 0.2
	cfg.OpenRouter.MaxTokens = 2048
	return cfg
}

const validRecipeResponse = `{
	"name": "Fried Rice",
	"ingredients": [{"name": "rice", "quantity": 2, "unit": "cup"}],
	"instructions": [{"step_number": 1, "text": "Fry the rice."}]
}`

func TestLLMExtractFirstTurn(t *testing.T) {
	backend := &scriptedBackend{responses: []string{validRecipeResponse}}
	extractor := NewLLMExtractor(llmTestConfig(), backend, prompt.NewRegistry())

	recipe, repaired, err := extractor.Extract(context.Background(), "some page text", "https://example.com/r", "Fried Rice")
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "Fried Rice", recipe.Name)
	require.Len(t, backend.requests, 1)
	assert.Len(t, backend.requests[0].Messages, 1)
}

func TestLLMExtractFencedOutput(t *testing.T) {
	fenced := "Here is the recipe:\n```json\n" + validRecipeResponse + "\n```"
	backend := &scriptedBackend{responses: []string{fenced}}
	extractor := NewLLMExtractor(llmTestConfig(), backend, prompt.NewRegistry())

	recipe, repaired, err := extractor.Extract(context.Background(), "text", "https://example.com", "title")
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "Fried Rice", recipe.Name)
}

func TestLLMExtractRepairTurn(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"name": "Broken`,
		validRecipeResponse,
	}}
	extractor := NewLLMExtractor(llmTestConfig(), backend, prompt.NewRegistry())

	recipe, repaired, err := extractor.Extract(context.Background(), "text", "https://example.com", "title")
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "Fried Rice", recipe.Name)

	// 修復回合須帶上先前的無效輸出與錯誤說明
	require.Len(t, backend.requests, 2)
	repairMsgs := backend.requests[1].Messages
	require.Len(t, repairMsgs, 3)
	assert.Equal(t, "assistant", repairMsgs[1].Role)
	assert.Contains(t, repairMsgs[2].Content, "無法解析")
}

func TestLLMExtractExhaustsRepairTurns(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		"not json at all",
		"still not json",
		"nope",
	}}
	extractor := NewLLMExtractor(llmTestConfig(), backend, prompt.NewRegistry())

	_, _, err := extractor.Extract(context.Background(), "text", "https://example.com", "title")
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeLLMExtraction, common.ErrorCode(err))
	// 初始回合 + 兩次修復回合
	assert.Len(t, backend.requests, 3)
}

func TestLLMExtractMissingFields(t *testing.T) {
	cfg := llmTestConfig()
	cfg.Extract.RepairTurns = 0
	backend := &scriptedBackend{responses: []string{`{"name": "x", "ingredients": []}`}}
	extractor := NewLLMExtractor(cfg, backend, prompt.NewRegistry())

	_, _, err := extractor.Extract(context.Background(), "text", "https://example.com", "title")
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeLLMExtraction, common.ErrorCode(err))
}

func TestLLMExtractCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &scriptedBackend{responses: []string{validRecipeResponse}}
	extractor := NewLLMExtractor(llmTestConfig(), backend, prompt.NewRegistry())

	_, _, err := extractor.Extract(ctx, "text", "https://example.com", "title")
	require.Error(t, err)
	assert.Empty(t, backend.requests)
}
