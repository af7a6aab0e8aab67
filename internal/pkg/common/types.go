package common

import (
	"fmt"
	"strings"
	"time"
)

// ExtractionMethod 擷取方法
type ExtractionMethod string

const (
	ExtractionJSONLD      ExtractionMethod = "JsonLd"      // 結構化資料直接映射
	ExtractionLLM         ExtractionMethod = "Llm"         // LLM 擷取（一次成功）
	ExtractionLLMRepaired ExtractionMethod = "LlmRepaired" // LLM 擷取（經過修復回合）
)

// Confidence 回傳擷取方法對應的信心值
func (m ExtractionMethod) Confidence() float64 {
	switch m {
	case ExtractionJSONLD:
		return 0.95
	case ExtractionLLM:
		return 0.75
	case ExtractionLLMRepaired:
		return 0.6
	default:
		return 0
	}
}

// Ingredient 食材
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Notes    string  `json:"notes,omitempty"`
}

// Instruction 食譜步驟
type Instruction struct {
	StepNumber int    `json:"step_number"`
	Text       string `json:"text"`
}

// Nutrition 營養資訊（每份）
type Nutrition struct {
	Calories      float64 `json:"calories,omitempty"`
	ProteinGrams  float64 `json:"protein_grams,omitempty"`
	FatGrams      float64 `json:"fat_grams,omitempty"`
	CarbohydrateG float64 `json:"carbohydrate_grams,omitempty"`
}

// Recipe 標準化食譜
type Recipe struct {
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	PrepTimeMinutes int           `json:"prep_time_minutes"`
	CookTimeMinutes int           `json:"cook_time_minutes"`
	Servings        int           `json:"servings"`
	Ingredients     []Ingredient  `json:"ingredients"`
	Instructions    []Instruction `json:"instructions"`
	Cuisine         string        `json:"cuisine,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	ImageURL        string        `json:"image_url,omitempty"`
	Nutrition       *Nutrition    `json:"nutrition,omitempty"`
}

// InstructionsText 將步驟串接為單一文字（相似度檢查用）
func (r *Recipe) InstructionsText() string {
	var sb strings.Builder
	for i, ins := range r.Instructions {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(ins.Text)
	}
	return sb.String()
}

// PageMetadata 頁面中繼資料
type PageMetadata struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Author       string `json:"author,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	Language     string `json:"language,omitempty"`
}

// SourceInfo 食譜來源紀錄
type SourceInfo struct {
	URL              string           `json:"url"`
	ContentHash      string           `json:"content_hash"`
	SiteName         string           `json:"site_name,omitempty"`
	Author           string           `json:"author,omitempty"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	RetrievedAt      time.Time        `json:"retrieved_at"`
}

// ValidationIssue 驗證問題
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationReport 驗證報告，Errors 阻擋提交、Warnings 僅供參考
type ValidationReport struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// Valid 是否通過阻擋性檢查
func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}

// SimilarityReport 相似度報告，每次分析產生新的報告、不可原地修改
type SimilarityReport struct {
	MaxContiguousTokens int     `json:"max_contiguous_tokens"`
	MaxNgramJaccard     float64 `json:"max_ngram_jaccard"`
	ViolatesPolicy      bool    `json:"violates_policy"`
	Warning             bool    `json:"warning"`
	Detail              string  `json:"detail,omitempty"`
}

// RecipeDraft 管線輸出的食譜草稿，等待人工審核
type RecipeDraft struct {
	Recipe     *Recipe           `json:"recipe"`
	Source     *SourceInfo       `json:"source"`
	Validation *ValidationReport `json:"validation"`
	Similarity *SimilarityReport `json:"similarity,omitempty"`
	Artifacts  []string          `json:"artifacts,omitempty"`
}

// Committable 草稿是否可提交：驗證無錯誤、且相似度報告（若存在）未處於
// 未解決的違規狀態。blockOnWarning 為政策開關，控制警告級相似度是否也阻擋提交。
func (d *RecipeDraft) Committable(blockOnWarning bool) bool {
	if d.Validation == nil || !d.Validation.Valid() {
		return false
	}
	if d.Similarity != nil {
		if d.Similarity.ViolatesPolicy {
			return false
		}
		if blockOnWarning && d.Similarity.Warning {
			return false
		}
	}
	return true
}
