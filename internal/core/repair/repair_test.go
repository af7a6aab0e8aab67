package repair

import (
	"context"
	"encoding/json"
	"testing"

	"recipe-ingest/internal/core/ai"
	"recipe-ingest/internal/core/prompt"
	"recipe-ingest/internal/core/similarity"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend 回傳固定內容
type stubBackend struct {
	response    string
	lastRequest *ai.ChatRequest
}

func (b *stubBackend) Chat(_ context.Context, req *ai.ChatRequest) (string, error) {
	b.lastRequest = req
	return b.response, nil
}

func repairTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Extract.MaxInputChars = 20000
	cfg.OpenRouter.MaxTokens = 2048
	cfg.Similarity = config.SimilarityConfig{
		NgramSize:           3,
		MinTokenLength:      1,
		WarnContiguous:      6,
		ViolationContiguous: 10,
		WarnJaccard:         0.4,
		ViolationJaccard:    0.6,
	}
	return cfg
}

const repairSourceText = "Preheat the oven to 180 degrees and butter the pan generously. " +
	"Whisk the eggs with sugar until pale and fluffy before folding in the flour."

func copiedDraft() *common.RecipeDraft {
	return &common.RecipeDraft{
		Recipe: &common.Recipe{
			Name:        "Sponge Cake",
			Description: "Preheat the oven to 180 degrees and butter the pan generously.",
			Ingredients: []common.Ingredient{{Name: "egg", Quantity: 4}},
			Instructions: []common.Instruction{
				{StepNumber: 1, Text: "Whisk the eggs with sugar until pale and fluffy before folding in the flour."},
			},
		},
		Source: &common.SourceInfo{URL: "https://example.com/cake"},
	}
}

func sectionsResponse(t *testing.T, sections map[string]string) string {
	t.Helper()
	payload := map[string]interface{}{"sections": []map[string]string{}}
	list := payload["sections"].([]map[string]string)
	for id, text := range sections {
		list = append(list, map[string]string{"id": id, "text": text})
	}
	payload["sections"] = list
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(data)
}

func TestRepairRewritesOffendingSections(t *testing.T) {
	cfg := repairTestConfig()
	backend := &stubBackend{response: sectionsResponse(t, map[string]string{
		SectionDescription:  "Warm your oven to 180C and coat the tin with butter.",
		SectionInstructions: "Beat eggs and sugar until light.\nGently add flour.",
	})}
	svc := NewService(cfg, backend, prompt.NewRegistry(), similarity.NewAnalyzer(&cfg.Similarity))

	original := copiedDraft()
	result, err := svc.Repair(context.Background(), original, repairSourceText)
	require.NoError(t, err)

	assert.Empty(t, result.FailedSections)
	assert.False(t, result.StillViolates)
	assert.NotNil(t, result.Report)
	assert.Equal(t, result.Report, result.Draft.Similarity)

	// 改寫產生新草稿，原草稿不動
	assert.Equal(t, "Preheat the oven to 180 degrees and butter the pan generously.", original.Recipe.Description)
	assert.Equal(t, "Warm your oven to 180C and coat the tin with butter.", result.Draft.Recipe.Description)
	require.Len(t, result.Draft.Recipe.Instructions, 2)
	assert.Equal(t, 1, result.Draft.Recipe.Instructions[0].StepNumber)
	assert.Equal(t, "Gently add flour.", result.Draft.Recipe.Instructions[1].Text)

	// 提示中要帶入違規段落
	require.NotNil(t, backend.lastRequest)
	assert.Contains(t, backend.lastRequest.Messages[0].Content, "["+SectionDescription+"]")
}

func TestRepairRecordsMissingSections(t *testing.T) {
	cfg := repairTestConfig()
	// 模型只改寫了描述，漏掉步驟
	backend := &stubBackend{response: sectionsResponse(t, map[string]string{
		SectionDescription: "Warm your oven to 180C and coat the tin with butter.",
	})}
	svc := NewService(cfg, backend, prompt.NewRegistry(), similarity.NewAnalyzer(&cfg.Similarity))

	result, err := svc.Repair(context.Background(), copiedDraft(), repairSourceText)
	require.NoError(t, err)
	assert.Equal(t, []string{SectionInstructions}, result.FailedSections)
	// 未改寫的段落仍照抄原文，重新評分後維持違規
	assert.True(t, result.StillViolates)
}

func TestRepairUnparseableResponse(t *testing.T) {
	cfg := repairTestConfig()
	backend := &stubBackend{response: "I rewrote it for you, hope that helps!"}
	svc := NewService(cfg, backend, prompt.NewRegistry(), similarity.NewAnalyzer(&cfg.Similarity))

	_, err := svc.Repair(context.Background(), copiedDraft(), repairSourceText)
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeInternalError, common.ErrorCode(err))
}

func TestSplitInstructionsLines(t *testing.T) {
	got := splitInstructions("1. Mix the batter\n2. Pour into the pan\n• Bake until golden")
	require.Len(t, got, 3)
	assert.Equal(t, "Mix the batter", got[0].Text)
	assert.Equal(t, "Pour into the pan", got[1].Text)
	assert.Equal(t, "Bake until golden", got[2].Text)
	assert.Equal(t, 3, got[2].StepNumber)
}

func TestSplitInstructionsSingleLineFallsBackToSentences(t *testing.T) {
	got := splitInstructions("Mix the batter well. Pour into the pan! Bake until golden.")
	require.Len(t, got, 3)
	assert.Equal(t, "Mix the batter well.", got[0].Text)
	assert.Equal(t, "Pour into the pan!", got[1].Text)
	assert.Equal(t, "Bake until golden.", got[2].Text)
}

func TestSplitSentencesKeepsPunctuation(t *testing.T) {
	got := splitSentences("先把蛋打勻。 再加入麵粉。 最後烘烤")
	require.Len(t, got, 3)
	assert.Equal(t, "先把蛋打勻。", got[0])
	assert.Equal(t, "最後烘烤", got[2])
}
