package validate

import (
	"fmt"
	"net/url"
	"strings"

	"recipe-ingest/internal/pkg/common"
)

// 結構檢查的上限
const (
	maxNameLength        = 200
	maxDescriptionLength = 2000
	maxIngredients       = 100
	maxIngredientLength  = 300
	maxInstructions      = 100
	maxInstructionLength = 2000
	maxTagCount          = 30
)

// 業務檢查的合理範圍
const (
	plausibleMaxMinutes  = 24 * 60
	plausibleMaxServings = 100
	minDescriptionLength = 20
	nonTrivialItemCount  = 5
)

// Validate 檢查標準化食譜：結構錯誤阻擋提交、業務警告僅供參考
func Validate(r *common.Recipe) *common.ValidationReport {
	report := &common.ValidationReport{
		Errors:   []common.ValidationIssue{},
		Warnings: []common.ValidationIssue{},
	}

	validateSchema(r, report)
	validateBusiness(r, report)

	return report
}

// validateSchema 結構規則（阻擋性）
func validateSchema(r *common.Recipe, report *common.ValidationReport) {
	addError := func(field, msg string) {
		report.Errors = append(report.Errors, common.ValidationIssue{Field: field, Message: msg})
	}

	name := strings.TrimSpace(r.Name)
	if name == "" {
		addError("name", "名稱不得為空")
	} else if len(name) > maxNameLength {
		addError("name", fmt.Sprintf("名稱超過 %d 字元上限", maxNameLength))
	}

	if len(r.Description) > maxDescriptionLength {
		addError("description", fmt.Sprintf("描述超過 %d 字元上限", maxDescriptionLength))
	}

	if r.PrepTimeMinutes < 0 {
		addError("prep_time_minutes", "準備時間不得為負")
	}
	if r.CookTimeMinutes < 0 {
		addError("cook_time_minutes", "烹調時間不得為負")
	}
	if r.Servings <= 0 {
		addError("servings", "份量必須為正數")
	}

	if len(r.Ingredients) == 0 {
		addError("ingredients", "至少需要一項食材")
	} else if len(r.Ingredients) > maxIngredients {
		addError("ingredients", fmt.Sprintf("食材超過 %d 項上限", maxIngredients))
	}
	for i, ing := range r.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			addError(fmt.Sprintf("ingredients[%d].name", i), "食材名稱不得為空")
		} else if len(ing.Name) > maxIngredientLength {
			addError(fmt.Sprintf("ingredients[%d].name", i), fmt.Sprintf("食材名稱超過 %d 字元上限", maxIngredientLength))
		}
	}

	if len(r.Instructions) == 0 {
		addError("instructions", "至少需要一個步驟")
	} else if len(r.Instructions) > maxInstructions {
		addError("instructions", fmt.Sprintf("步驟超過 %d 個上限", maxInstructions))
	}
	for i, ins := range r.Instructions {
		if strings.TrimSpace(ins.Text) == "" {
			addError(fmt.Sprintf("instructions[%d].text", i), "步驟內容不得為空")
		} else if len(ins.Text) > maxInstructionLength {
			addError(fmt.Sprintf("instructions[%d].text", i), fmt.Sprintf("步驟內容超過 %d 字元上限", maxInstructionLength))
		}
	}

	if len(r.Tags) > maxTagCount {
		addError("tags", fmt.Sprintf("標籤超過 %d 個上限", maxTagCount))
	}

	if r.ImageURL != "" {
		u, err := url.Parse(r.ImageURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			addError("image_url", "圖片網址必須是 http(s) 絕對位址")
		}
	}
}

// validateBusiness 業務啟發式（僅警告）
func validateBusiness(r *common.Recipe, report *common.ValidationReport) {
	addWarning := func(field, msg string) {
		report.Warnings = append(report.Warnings, common.ValidationIssue{Field: field, Message: msg})
	}

	if r.PrepTimeMinutes+r.CookTimeMinutes > plausibleMaxMinutes {
		addWarning("cook_time_minutes", "總時間超過 24 小時，數值可能有誤")
	}
	if r.Servings > plausibleMaxServings {
		addWarning("servings", fmt.Sprintf("份量 %d 不太合理", r.Servings))
	}

	nonTrivial := len(r.Ingredients) >= nonTrivialItemCount || len(r.Instructions) >= nonTrivialItemCount
	if nonTrivial {
		if r.Description == "" {
			addWarning("description", "非簡易食譜缺少描述")
		} else if len(r.Description) < minDescriptionLength {
			addWarning("description", "描述過短")
		}
	}

	if r.Cuisine == "" {
		addWarning("cuisine", "缺少料理類型")
	}
	if len(r.Tags) == 0 {
		addWarning("tags", "缺少標籤")
	}
	if r.ImageURL == "" {
		addWarning("image_url", "缺少圖片")
	}

	// 食材與步驟數量嚴重不成比例時，可能有資料遺漏
	if len(r.Ingredients) > 0 && len(r.Instructions) > 0 {
		if len(r.Ingredients) >= 3*len(r.Instructions) && len(r.Ingredients) >= 6 {
			addWarning("instructions", "步驟數量相對食材明顯偏少，可能有步驟遺漏")
		}
		if len(r.Instructions) >= 3*len(r.Ingredients) && len(r.Instructions) >= 6 {
			addWarning("ingredients", "食材數量相對步驟明顯偏少，可能有食材遺漏")
		}
	}

	// 重複食材
	seen := make(map[string]bool, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		key := strings.ToLower(strings.TrimSpace(ing.Name))
		if key == "" {
			continue
		}
		if seen[key] {
			addWarning("ingredients", fmt.Sprintf("食材 %q 重複出現", ing.Name))
		}
		seen[key] = true
	}

	// 零數量食材
	for i, ing := range r.Ingredients {
		if ing.Quantity == 0 && ing.Unit != "" {
			addWarning(fmt.Sprintf("ingredients[%d].quantity", i), fmt.Sprintf("食材 %q 有單位但數量為零", ing.Name))
		}
	}
}
