package validate

import (
	"strings"
	"testing"

	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanRecipe() *common.Recipe {
	return &common.Recipe{
		Name:            "Beef Stew",
		Description:     "A slow simmered beef stew with root vegetables.",
		PrepTimeMinutes: 20,
		CookTimeMinutes: 120,
		Servings:        6,
		Cuisine:         "French",
		Tags:            []string{"stew", "winter"},
		ImageURL:        "https://example.com/stew.jpg",
		Ingredients: []common.Ingredient{
			{Name: "beef chuck", Quantity: 1, Unit: "kg"},
			{Name: "carrot", Quantity: 3, Unit: ""},
			{Name: "onion", Quantity: 1, Unit: ""},
		},
		Instructions: []common.Instruction{
			{StepNumber: 1, Text: "Brown the beef in batches."},
			{StepNumber: 2, Text: "Add vegetables and stock."},
			{StepNumber: 3, Text: "Simmer until tender."},
		},
	}
}

func TestValidateCleanRecipe(t *testing.T) {
	report := Validate(cleanRecipe())
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestValidateSchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *common.Recipe)
		field  string
	}{
		{"空名稱", func(r *common.Recipe) { r.Name = "  " }, "name"},
		{"名稱過長", func(r *common.Recipe) { r.Name = strings.Repeat("a", 201) }, "name"},
		{"負的準備時間", func(r *common.Recipe) { r.PrepTimeMinutes = -5 }, "prep_time_minutes"},
		{"負的烹調時間", func(r *common.Recipe) { r.CookTimeMinutes = -1 }, "cook_time_minutes"},
		{"份量為零", func(r *common.Recipe) { r.Servings = 0 }, "servings"},
		{"沒有食材", func(r *common.Recipe) { r.Ingredients = nil }, "ingredients"},
		{"沒有步驟", func(r *common.Recipe) { r.Instructions = nil }, "instructions"},
		{"空白食材名稱", func(r *common.Recipe) { r.Ingredients[0].Name = "" }, "ingredients[0].name"},
		{"空白步驟內容", func(r *common.Recipe) { r.Instructions[1].Text = " " }, "instructions[1].text"},
		{"相對路徑圖片", func(r *common.Recipe) { r.ImageURL = "/images/stew.jpg" }, "image_url"},
		{"非 http 圖片", func(r *common.Recipe) { r.ImageURL = "ftp://example.com/a.jpg" }, "image_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cleanRecipe()
			tt.mutate(r)
			report := Validate(r)
			require.NotEmpty(t, report.Errors)
			found := false
			for _, issue := range report.Errors {
				if issue.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "預期欄位 %s 出現錯誤，實際：%+v", tt.field, report.Errors)
		})
	}
}

func TestValidateBusinessWarnings(t *testing.T) {
	t.Run("總時間超過 24 小時", func(t *testing.T) {
		r := cleanRecipe()
		r.CookTimeMinutes = 25 * 60
		report := Validate(r)
		assert.Empty(t, report.Errors)
		assertWarningField(t, report, "cook_time_minutes")
	})

	t.Run("份量過大", func(t *testing.T) {
		r := cleanRecipe()
		r.Servings = 500
		report := Validate(r)
		assert.Empty(t, report.Errors)
		assertWarningField(t, report, "servings")
	})

	t.Run("非簡易食譜缺描述", func(t *testing.T) {
		r := cleanRecipe()
		r.Description = ""
		r.Ingredients = append(r.Ingredients,
			common.Ingredient{Name: "celery", Quantity: 2},
			common.Ingredient{Name: "thyme", Quantity: 1, Unit: "tsp"},
		)
		report := Validate(r)
		assert.Empty(t, report.Errors)
		assertWarningField(t, report, "description")
	})

	t.Run("重複食材", func(t *testing.T) {
		r := cleanRecipe()
		r.Ingredients = append(r.Ingredients, common.Ingredient{Name: "Onion", Quantity: 2})
		report := Validate(r)
		assertWarningField(t, report, "ingredients")
	})

	t.Run("有單位但數量為零", func(t *testing.T) {
		r := cleanRecipe()
		r.Ingredients[0].Quantity = 0
		report := Validate(r)
		assertWarningField(t, report, "ingredients[0].quantity")
	})

	t.Run("食材遠多於步驟", func(t *testing.T) {
		r := cleanRecipe()
		r.Instructions = r.Instructions[:2]
		for i := 0; i < 6; i++ {
			r.Ingredients = append(r.Ingredients, common.Ingredient{Name: "spice " + strings.Repeat("x", i+1), Quantity: 1})
		}
		report := Validate(r)
		assertWarningField(t, report, "instructions")
	})
}

func assertWarningField(t *testing.T, report *common.ValidationReport, field string) {
	t.Helper()
	for _, issue := range report.Warnings {
		if issue.Field == field {
			return
		}
	}
	t.Errorf("預期欄位 %s 出現警告，實際：%+v", field, report.Warnings)
}
