package extract

import (
	"context"
	"fmt"
	"net/http"

	"recipe-ingest/internal/core/ai"
	"recipe-ingest/internal/core/prompt"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// LLMExtractor LLM 後備擷取器，附帶有限次數的 JSON 修復迴圈
type LLMExtractor struct {
	config  *config.Config
	backend ai.Backend
	prompts prompt.Source
}

// NewLLMExtractor 創建 LLM 擷取器
func NewLLMExtractor(cfg *config.Config, backend ai.Backend, prompts prompt.Source) *LLMExtractor {
	return &LLMExtractor{
		config:  cfg,
		backend: backend,
		prompts: prompts,
	}
}

// Extract 以 LLM 從清理後文字擷取食譜。
// 回應無法解析時最多進行 config 設定的修復回合：
// 把無效輸出與解析錯誤回放給模型、要求修正後的 JSON。
// 回傳值 repaired 表示是否動用過修復回合。
func (e *LLMExtractor) Extract(ctx context.Context, text, sourceURL, pageTitle string) (recipe *common.Recipe, repaired bool, err error) {
	tmpl, err := e.prompts.Resolve("extract")
	if err != nil {
		return nil, false, common.NewError(common.ErrCodeLLMExtraction, "找不到擷取模板", http.StatusInternalServerError, err)
	}

	rendered := prompt.Render(tmpl, map[string]string{
		"source_url": sourceURL,
		"page_title": pageTitle,
		"page_text":  text,
	}, e.config.Extract.MaxInputChars)

	messages := []ai.ChatMessage{
		{Role: "user", Content: rendered},
	}

	maxTurns := e.config.Extract.RepairTurns
	if maxTurns < 0 {
		maxTurns = 0
	}

	var lastErr error
	for turn := 0; turn <= maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, false, common.NewError(common.ErrCodeLLMExtraction, "擷取已取消", http.StatusBadGateway, err)
		}

		content, err := e.backend.Chat(ctx, &ai.ChatRequest{
			SystemPrompt: tmpl.System,
			Messages:     messages,
			Temperature:  e.config.OpenRouter.Temperature,
			MaxTokens:    e.config.OpenRouter.MaxTokens,
		})
		if err != nil {
			return nil, false, common.NewError(common.ErrCodeLLMExtraction, "LLM 請求失敗", http.StatusBadGateway, err)
		}

		parsed, parseErr := parseRecipeResponse(content)
		if parseErr == nil {
			return parsed, turn > 0, nil
		}
		lastErr = parseErr

		common.LogWarn("LLM 擷取結果解析失敗",
			zap.Int("turn", turn),
			zap.Int("max_turns", maxTurns),
			zap.Error(parseErr),
		)

		// 修復回合：回放無效輸出與解析錯誤
		messages = append(messages,
			ai.ChatMessage{Role: "assistant", Content: content},
			ai.ChatMessage{Role: "user", Content: fmt.Sprintf(
				"你上一次的輸出無法解析：%v。請只輸出修正後的 JSON，不要加任何其他文字。", parseErr)},
		)
	}

	return nil, false, common.NewError(common.ErrCodeLLMExtraction,
		fmt.Sprintf("修復 %d 回合後仍無法解析", maxTurns), http.StatusBadGateway, lastErr)
}

// parseRecipeResponse 解析模型輸出為標準化食譜
func parseRecipeResponse(content string) (*common.Recipe, error) {
	cleaned := common.ExtractJSONObject(content)
	// 模型偶爾輸出未加引號的鍵
	cleaned = common.QuoteJSONKeys(cleaned)

	var recipe common.Recipe
	if err := common.ParseJSON(cleaned, &recipe); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if recipe.Name == "" {
		return nil, fmt.Errorf("missing recipe name")
	}
	if len(recipe.Ingredients) == 0 {
		return nil, fmt.Errorf("missing ingredients")
	}
	if len(recipe.Instructions) == 0 {
		return nil, fmt.Errorf("missing instructions")
	}

	return &recipe, nil
}
