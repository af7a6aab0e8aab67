package extract

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"recipe-ingest/internal/pkg/common"
)

// ErrCodeInvalidJSON 結構化資料解析失敗的錯誤代碼
const ErrCodeInvalidJSON = "INVALID_JSON"

// FromJSONLD 將食譜形狀的 JSON-LD 節點直接映射為標準化食譜。
// name 為必要欄位；格式錯誤回傳 INVALID_JSON 類型錯誤、不拋出例外。
func FromJSONLD(snippet []byte) (*common.Recipe, error) {
	var node map[string]interface{}
	if err := json.Unmarshal(snippet, &node); err != nil {
		return nil, common.NewError(ErrCodeInvalidJSON, "JSON-LD 片段格式錯誤", http.StatusUnprocessableEntity, err)
	}

	name := stringValue(node["name"])
	if name == "" {
		return nil, common.NewError(ErrCodeInvalidJSON, "JSON-LD 片段缺少 name 欄位", http.StatusUnprocessableEntity, nil)
	}

	recipe := &common.Recipe{
		Name:        name,
		Description: stringValue(node["description"]),
		Cuisine:     stringValue(node["recipeCuisine"]),
		ImageURL:    imageURL(node["image"]),
	}

	// 時間：prep / cook 分開給定時直接用，
	// 只有 totalTime 時拆分為 prep + cook
	prep := ParseDurationMinutes(stringValue(node["prepTime"]))
	cook := ParseDurationMinutes(stringValue(node["cookTime"]))
	if prep == 0 && cook == 0 {
		if total := ParseDurationMinutes(stringValue(node["totalTime"])); total > 0 {
			prep, cook = SplitTotalTime(total)
		}
	}
	recipe.PrepTimeMinutes = prep
	recipe.CookTimeMinutes = cook

	recipe.Servings = ParseServings(node["recipeYield"])

	// 食材
	switch v := node["recipeIngredient"].(type) {
	case []interface{}:
		for _, item := range v {
			if s := stringValue(item); s != "" {
				recipe.Ingredients = append(recipe.Ingredients, ParseIngredientLine(s))
			}
		}
	case string:
		if v != "" {
			recipe.Ingredients = append(recipe.Ingredients, ParseIngredientLine(v))
		}
	}

	// 步驟：支援字串、字串陣列、HowToStep 與巢狀 HowToSection
	recipe.Instructions = parseInstructions(node["recipeInstructions"])
	for i := range recipe.Instructions {
		recipe.Instructions[i].StepNumber = i + 1
	}

	// 標籤：keywords 可能是逗號分隔字串或陣列
	switch v := node["keywords"].(type) {
	case string:
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				recipe.Tags = append(recipe.Tags, kw)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s := stringValue(item); s != "" {
				recipe.Tags = append(recipe.Tags, s)
			}
		}
	}

	// 營養資訊：容忍單位後綴
	if nut, ok := node["nutrition"].(map[string]interface{}); ok {
		n := &common.Nutrition{
			Calories:      parseNutritionValue(nut["calories"]),
			ProteinGrams:  parseNutritionValue(nut["proteinContent"]),
			FatGrams:      parseNutritionValue(nut["fatContent"]),
			CarbohydrateG: parseNutritionValue(nut["carbohydrateContent"]),
		}
		if n.Calories > 0 || n.ProteinGrams > 0 || n.FatGrams > 0 || n.CarbohydrateG > 0 {
			recipe.Nutrition = n
		}
	}

	if len(recipe.Ingredients) == 0 {
		return nil, common.NewError(ErrCodeInvalidJSON, "JSON-LD 片段沒有可用的食材", http.StatusUnprocessableEntity, nil)
	}
	if len(recipe.Instructions) == 0 {
		return nil, common.NewError(ErrCodeInvalidJSON, "JSON-LD 片段沒有可用的步驟", http.StatusUnprocessableEntity, nil)
	}

	return recipe, nil
}

// AuthorFromJSONLD 從節點取出作者名稱（字串或 {name} 物件）
func AuthorFromJSONLD(snippet []byte) string {
	var node map[string]interface{}
	if err := json.Unmarshal(snippet, &node); err != nil {
		return ""
	}
	switch v := node["author"].(type) {
	case string:
		return v
	case map[string]interface{}:
		return stringValue(v["name"])
	case []interface{}:
		if len(v) > 0 {
			if m, ok := v[0].(map[string]interface{}); ok {
				return stringValue(m["name"])
			}
			return stringValue(v[0])
		}
	}
	return ""
}

// parseInstructions 解析步驟節點
func parseInstructions(v interface{}) []common.Instruction {
	var out []common.Instruction

	var appendText func(text string)
	appendText = func(text string) {
		text = strings.TrimSpace(text)
		if text != "" {
			out = append(out, common.Instruction{Text: text})
		}
	}

	var walk func(item interface{})
	walk = func(item interface{}) {
		switch node := item.(type) {
		case string:
			// 單一字串可能包含多個步驟（以換行分隔）
			for _, line := range strings.Split(node, "\n") {
				appendText(line)
			}
		case []interface{}:
			for _, child := range node {
				walk(child)
			}
		case map[string]interface{}:
			t := stringValue(node["@type"])
			if strings.EqualFold(t, "HowToSection") {
				walk(node["itemListElement"])
				return
			}
			// HowToStep 或未標型別的物件
			if text := stringValue(node["text"]); text != "" {
				appendText(text)
				return
			}
			if name := stringValue(node["name"]); name != "" {
				appendText(name)
			}
		}
	}
	walk(v)

	return out
}

// imageURL 解析 image 欄位：字串、陣列或 ImageObject
func imageURL(v interface{}) string {
	switch node := v.(type) {
	case string:
		return node
	case []interface{}:
		if len(node) > 0 {
			return imageURL(node[0])
		}
	case map[string]interface{}:
		return stringValue(node["url"])
	}
	return ""
}

// stringValue 寬鬆取字串：數字轉為字串表示
func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
