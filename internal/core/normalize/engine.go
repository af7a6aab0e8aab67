package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"recipe-ingest/internal/core/ai"
	"recipe-ingest/internal/core/prompt"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// 正規化結果狀態
const (
	StatusApplied = "applied"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// NormalizeResult 正規化結果。Recipe 是套用成功操作後重建的食譜，
// Diff 是給審核人看的逐筆變更說明。
type NormalizeResult struct {
	Status     string            `json:"status"`
	Recipe     *common.Recipe    `json:"recipe"`
	Operations []PatchOperation  `json:"operations"`
	Failed     []FailedOperation `json:"failed,omitempty"`
	Diff       string            `json:"diff"`
}

// Engine 食譜正規化引擎：讓模型產生修正操作，逐筆套用後重建食譜
type Engine struct {
	config  *config.Config
	backend ai.Backend
	prompts prompt.Source
}

// NewEngine 創建正規化引擎
func NewEngine(cfg *config.Config, backend ai.Backend, prompts prompt.Source) *Engine {
	return &Engine{
		config:  cfg,
		backend: backend,
		prompts: prompts,
	}
}

// Normalize 對既有食譜做正規化：
// 1. 模型檢視食譜並回傳修正操作清單
// 2. 操作逐筆套用到通用 JSON 文件上，單筆失敗不中斷
// 3. 套用結果重建為食譜結構
func (e *Engine) Normalize(ctx context.Context, recipe *common.Recipe, focusAreas []string) (*NormalizeResult, error) {
	tmpl, err := e.prompts.Resolve("normalize")
	if err != nil {
		return nil, common.NewError(common.ErrCodeInternalError, "找不到正規化模板", http.StatusInternalServerError, err)
	}

	recipeJSON, err := json.MarshalIndent(recipe, "", "  ")
	if err != nil {
		return nil, common.NewError(common.ErrCodeInternalError, "食譜序列化失敗", http.StatusInternalServerError, err)
	}

	focus := "單位統一、份量數值化、步驟連貫性"
	if len(focusAreas) > 0 {
		focus = strings.Join(focusAreas, "、")
	}

	rendered := prompt.Render(tmpl, map[string]string{
		"focus":       focus,
		"recipe_json": string(recipeJSON),
	}, e.config.Extract.MaxInputChars)

	content, err := e.backend.Chat(ctx, &ai.ChatRequest{
		SystemPrompt: tmpl.System,
		Messages:     []ai.ChatMessage{{Role: "user", Content: rendered}},
		Temperature:  e.config.OpenRouter.Temperature,
		MaxTokens:    e.config.OpenRouter.MaxTokens,
	})
	if err != nil {
		return nil, common.NewError(common.ErrCodeLLMExtraction, "正規化請求失敗", http.StatusBadGateway, err)
	}

	operations, err := parseOperations(content)
	if err != nil {
		return nil, common.NewError(common.ErrCodeLLMExtraction, "正規化操作無法解析", http.StatusBadGateway, err)
	}
	if len(operations) == 0 {
		// 模型認為不需要修正
		return &NormalizeResult{Status: StatusApplied, Recipe: recipe, Diff: "（無變更）"}, nil
	}

	// 在通用文件上套用，避免部分失敗污染原食譜
	var document interface{}
	if err := json.Unmarshal(recipeJSON, &document); err != nil {
		return nil, common.NewError(common.ErrCodeInternalError, "食譜轉換失敗", http.StatusInternalServerError, err)
	}

	patched := ApplyPatch(document, operations)

	result := &NormalizeResult{
		Operations: patched.Applied,
		Failed:     patched.Failed,
		Diff:       renderDiff(patched),
	}
	switch {
	case patched.AllFailed():
		result.Status = StatusFailed
		result.Recipe = recipe
	case patched.Partial():
		result.Status = StatusPartial
	default:
		result.Status = StatusApplied
	}

	if result.Recipe == nil {
		rebuilt, err := rebuildRecipe(patched.Document)
		if err != nil {
			// 套用後的文件不再是合法食譜：整批視為失敗，保留原食譜
			common.LogWarn("正規化結果重建失敗", zap.Error(err))
			result.Status = StatusFailed
			result.Recipe = recipe
		} else {
			result.Recipe = rebuilt
		}
	}

	common.LogInfo("正規化完成",
		zap.String("status", result.Status),
		zap.Int("applied", len(patched.Applied)),
		zap.Int("failed", len(patched.Failed)),
	)
	return result, nil
}

// parseOperations 解析模型回傳的操作清單，補上預設風險等級
func parseOperations(content string) ([]PatchOperation, error) {
	var parsed struct {
		Operations []PatchOperation `json:"operations"`
	}
	if err := common.ParseJSON(common.ExtractJSONObject(content), &parsed); err != nil {
		return nil, err
	}
	for i := range parsed.Operations {
		if parsed.Operations[i].Risk == "" {
			parsed.Operations[i].Risk = classifyRisk(parsed.Operations[i])
		}
	}
	return parsed.Operations, nil
}

// classifyRisk 模型沒給風險等級時的保守分級：
// 移除一律高風險，動到名稱或食材的替換算中風險
func classifyRisk(op PatchOperation) string {
	if op.Op == OpRemove {
		return RiskHigh
	}
	if strings.HasPrefix(op.Path, "/name") || strings.HasPrefix(op.Path, "/ingredients") {
		return RiskMedium
	}
	return RiskLow
}

// rebuildRecipe 把套用後的通用文件轉回食譜結構
func rebuildRecipe(document interface{}) (*common.Recipe, error) {
	data, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}
	var recipe common.Recipe
	if err := json.Unmarshal(data, &recipe); err != nil {
		return nil, err
	}
	if strings.TrimSpace(recipe.Name) == "" {
		return nil, fmt.Errorf("正規化後的食譜缺少名稱")
	}
	return &recipe, nil
}

// renderDiff 產生審核用的逐筆變更說明
func renderDiff(result *PatchResult) string {
	var sb strings.Builder
	for _, op := range result.Applied {
		switch op.Op {
		case OpAdd:
			fmt.Fprintf(&sb, "+ %s = %s", op.Path, formatValue(op.Value))
		case OpReplace:
			fmt.Fprintf(&sb, "~ %s: %s → %s", op.Path, formatValue(op.PriorValue), formatValue(op.Value))
		case OpRemove:
			fmt.Fprintf(&sb, "- %s（原值 %s）", op.Path, formatValue(op.PriorValue))
		}
		if op.Rationale != "" {
			fmt.Fprintf(&sb, "  [%s] %s", op.Risk, op.Rationale)
		}
		sb.WriteString("\n")
	}
	for _, f := range result.Failed {
		fmt.Fprintf(&sb, "! %s %s 失敗: %s\n", f.Operation.Op, f.Operation.Path, f.Reason)
	}
	if sb.Len() == 0 {
		return "（無變更）"
	}
	return sb.String()
}

func formatValue(v interface{}) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(data)
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
