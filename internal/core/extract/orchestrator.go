package extract

import (
	"context"
	"strings"

	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// Input 擷取輸入
type Input struct {
	SanitizedText string
	RecipeJSONLD  []byte // 可能為 nil
	SourceURL     string
	Metadata      common.PageMetadata
}

// Output 擷取輸出，記錄成功的方法與信心值
type Output struct {
	Recipe     *common.Recipe
	Method     common.ExtractionMethod
	Confidence float64
}

// Orchestrator 擷取協調器：先試結構化資料、失敗才退到 LLM
type Orchestrator struct {
	llm *LLMExtractor
}

// NewOrchestrator 創建擷取協調器
func NewOrchestrator(llm *LLMExtractor) *Orchestrator {
	return &Orchestrator{llm: llm}
}

// Extract 執行兩層擷取策略並回傳標準化結果
func (o *Orchestrator) Extract(ctx context.Context, in *Input) (*Output, error) {
	// 第一層：結構化資料直接映射
	if len(in.RecipeJSONLD) > 0 {
		recipe, err := FromJSONLD(in.RecipeJSONLD)
		if err == nil {
			normalizeRecipe(recipe)
			common.LogInfo("結構化資料擷取成功",
				zap.String("name", recipe.Name),
				zap.Int("ingredients", len(recipe.Ingredients)),
				zap.Int("instructions", len(recipe.Instructions)),
			)
			return &Output{
				Recipe:     recipe,
				Method:     common.ExtractionJSONLD,
				Confidence: common.ExtractionJSONLD.Confidence(),
			}, nil
		}
		common.LogWarn("結構化資料擷取失敗，改用 LLM 擷取",
			zap.Error(err),
		)
	}

	// 第二層：LLM 後備擷取
	recipe, repaired, err := o.llm.Extract(ctx, in.SanitizedText, in.SourceURL, in.Metadata.Title)
	if err != nil {
		return nil, err
	}
	normalizeRecipe(recipe)

	method := common.ExtractionLLM
	if repaired {
		method = common.ExtractionLLMRepaired
	}
	common.LogInfo("LLM 擷取成功",
		zap.String("name", recipe.Name),
		zap.String("method", string(method)),
	)

	return &Output{
		Recipe:     recipe,
		Method:     method,
		Confidence: method.Confidence(),
	}, nil
}

// normalizeRecipe 整理擷取結果：裁字串、夾負值、
// 重新編號步驟、丟棄空項目
func normalizeRecipe(r *common.Recipe) {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Cuisine = strings.TrimSpace(r.Cuisine)

	if r.PrepTimeMinutes < 0 {
		r.PrepTimeMinutes = 0
	}
	if r.CookTimeMinutes < 0 {
		r.CookTimeMinutes = 0
	}
	if r.Servings < 0 {
		r.Servings = 0
	}

	ingredients := r.Ingredients[:0]
	for _, ing := range r.Ingredients {
		ing.Name = strings.TrimSpace(ing.Name)
		if ing.Name == "" {
			continue
		}
		if ing.Quantity < 0 {
			ing.Quantity = 0
		}
		ingredients = append(ingredients, ing)
	}
	r.Ingredients = ingredients

	instructions := r.Instructions[:0]
	for _, ins := range r.Instructions {
		ins.Text = strings.TrimSpace(ins.Text)
		if ins.Text == "" {
			continue
		}
		instructions = append(instructions, ins)
	}
	for i := range instructions {
		instructions[i].StepNumber = i + 1
	}
	r.Instructions = instructions

	tags := r.Tags[:0]
	for _, tag := range r.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	r.Tags = tags
}
