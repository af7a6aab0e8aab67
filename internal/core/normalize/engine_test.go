package normalize

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

type stubBackend struct {
	response    string
	lastRequest *ai.ChatRequest
}

func (b *stubBackend) Chat(_ context.Context, req *ai.ChatRequest) (string, error) {
	b.lastRequest = req
	return b.response, nil
}

func engineTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Extract.MaxInputChars = 20000
	cfg.OpenRouter.Temperature = 0.2
	cfg.OpenRouter.MaxTokens = 2048
	return cfg
}

func noodleRecipe() *common.Recipe {
	return &common.Recipe{
		Name:            "牛肉麵",
		Description:     "湯頭濃郁的紅燒牛肉麵。",
		PrepTimeMinutes: 30,
		CookTimeMinutes: 120,
		Servings:        2,
		Ingredients: []common.Ingredient{
			{Name: "牛腱", Quantity: 600, Unit: "g"},
			{Name: "麵條", Quantity: 2, Unit: "份"},
		},
		Instructions: []common.Instruction{
			{StepNumber: 1, Text: "牛腱汆燙去血水。"},
			{StepNumber: 2, Text: "加入醬油與香料燉煮兩小時。"},
		},
	}
}

func TestNormalizeAppliesOperations(t *testing.T) {
	backend := &stubBackend{response: `{
		"operations": [
			{"path": "/servings", "op": "replace", "value": 4, "rationale": "湯量足夠四人份"},
			{"path": "/ingredients/0/unit", "op": "replace", "value": "公克"}
		]
	}`}
	engine := NewEngine(engineTestConfig(), backend, prompt.NewRegistry())

	result, err := engine.Normalize(context.Background(), noodleRecipe(), nil)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, result.Status)
	assert.Empty(t, result.Failed)
	require.NotNil(t, result.Recipe)
	assert.Equal(t, 4, result.Recipe.Servings)
	assert.Equal(t, "公克", result.Recipe.Ingredients[0].Unit)
	assert.Contains(t, result.Diff, "/servings")

	// 提示中要帶入食譜內容與預設整理重點
	require.NotNil(t, backend.lastRequest)
	assert.Contains(t, backend.lastRequest.Messages[0].Content, "牛肉麵")
	assert.Contains(t, backend.lastRequest.Messages[0].Content, "單位統一")
}

func TestNormalizeFocusAreas(t *testing.T) {
	backend := &stubBackend{response: `{"operations": []}`}
	engine := NewEngine(engineTestConfig(), backend, prompt.NewRegistry())

	result, err := engine.Normalize(context.Background(), noodleRecipe(), []string{"香料名稱", "時間數值"})
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Contains(t, backend.lastRequest.Messages[0].Content, "香料名稱、時間數值")
}

func TestNormalizeNoOperations(t *testing.T) {
	backend := &stubBackend{response: `{"operations": []}`}
	engine := NewEngine(engineTestConfig(), backend, prompt.NewRegistry())

	original := noodleRecipe()
	result, err := engine.Normalize(context.Background(), original, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, original, result.Recipe)
	assert.Equal(t, "（無變更）", result.Diff)
}

func TestNormalizePartialFailure(t *testing.T) {
	backend := &stubBackend{response: `{
		"operations": [
			{"path": "/servings", "op": "replace", "value": 4},
			{"path": "/ingredients/9/unit", "op": "replace", "value": "g"}
		]
	}`}
	engine := NewEngine(engineTestConfig(), backend, prompt.NewRegistry())

	result, err := engine.Normalize(context.Background(), noodleRecipe(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, result.Status)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 4, result.Recipe.Servings)
	assert.Contains(t, result.Diff, "失敗")
}

func TestNormalizeAllFailedKeepsOriginal(t *testing.T) {
	backend := &stubBackend{response: `{
		"operations": [{"path": "/no/such/path", "op": "replace", "value": 1}]
	}`}
	engine := NewEngine(engineTestConfig(), backend, prompt.NewRegistry())

	original := noodleRecipe()
	result, err := engine.Normalize(context.Background(), original, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, original, result.Recipe)
}

func TestNormalizeUnparseableResponse(t *testing.T) {
	backend := &stubBackend{response: "sure, here are my thoughts on this recipe"}
	engine := NewEngine(engineTestConfig(), backend, prompt.NewRegistry())

	_, err := engine.Normalize(context.Background(), noodleRecipe(), nil)
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeLLMExtraction, common.ErrorCode(err))
}

func TestNormalizeRebuildRequiresName(t *testing.T) {
	// 移除名稱會讓重建失敗：整批視為失敗、保留原食譜
	backend := &stubBackend{response: `{
		"operations": [{"path": "/name", "op": "replace", "value": ""}]
	}`}
	engine := NewEngine(engineTestConfig(), backend, prompt.NewRegistry())

	original := noodleRecipe()
	result, err := engine.Normalize(context.Background(), original, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "牛肉麵", result.Recipe.Name)
}

func TestClassifyRiskDefaults(t *testing.T) {
	ops, err := parseOperations(`{"operations": [
		{"path": "/instructions/0", "op": "remove"},
		{"path": "/name", "op": "replace", "value": "x"},
		{"path": "/tags/-", "op": "add", "value": "soup"}
	]}`)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, RiskHigh, ops[0].Risk)
	assert.Equal(t, RiskMedium, ops[1].Risk)
	assert.Equal(t, RiskLow, ops[2].Risk)
}
