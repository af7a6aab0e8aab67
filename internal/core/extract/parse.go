package extract

import (
	"regexp"
	"strconv"
	"strings"

	"recipe-ingest/internal/pkg/common"
)

var (
	iso8601Pattern = regexp.MustCompile(`^-?P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
	numberPattern  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	// 數量開頭：整數、小數、分數（1/2）、帶分數（1 1/2）或 unicode 分數
	quantityPattern = regexp.MustCompile(`^(\d+\s+\d+/\d+|\d+/\d+|\d+(?:[.,]\d+)?|[¼½¾⅓⅔⅛⅜⅝⅞])\s*`)
)

// unicode 分數對照
var unicodeFractions = map[string]float64{
	"¼": 0.25, "½": 0.5, "¾": 0.75,
	"⅓": 1.0 / 3, "⅔": 2.0 / 3,
	"⅛": 0.125, "⅜": 0.375, "⅝": 0.625, "⅞": 0.875,
}

// 常見計量單位（英文與常見縮寫）
var knownUnits = map[string]string{
	"cup": "cup", "cups": "cup",
	"tablespoon": "tbsp", "tablespoons": "tbsp", "tbsp": "tbsp", "tbs": "tbsp",
	"teaspoon": "tsp", "teaspoons": "tsp", "tsp": "tsp",
	"gram": "g", "grams": "g", "g": "g",
	"kilogram": "kg", "kilograms": "kg", "kg": "kg",
	"milliliter": "ml", "milliliters": "ml", "ml": "ml",
	"liter": "l", "liters": "l", "l": "l",
	"ounce": "oz", "ounces": "oz", "oz": "oz",
	"pound": "lb", "pounds": "lb", "lb": "lb", "lbs": "lb",
	"pinch": "pinch", "pinches": "pinch",
	"clove": "clove", "cloves": "clove",
	"slice": "slice", "slices": "slice",
	"can": "can", "cans": "can",
	"piece": "piece", "pieces": "piece",
}

// ParseDurationMinutes 解析 ISO 8601 期間格式（PT1H30M 等）為分鐘數。
// 解析失敗時回傳 0。
func ParseDurationMinutes(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	m := iso8601Pattern.FindStringSubmatch(s)
	if m == nil {
		// 退而求其次：取字串中的第一個數字當作分鐘
		if n := firstNumber(s); n > 0 {
			return int(n)
		}
		return 0
	}

	total := 0.0
	if m[1] != "" {
		d, _ := strconv.ParseFloat(m[1], 64)
		total += d * 24 * 60
	}
	if m[2] != "" {
		h, _ := strconv.ParseFloat(m[2], 64)
		total += h * 60
	}
	if m[3] != "" {
		min, _ := strconv.ParseFloat(m[3], 64)
		total += min
	}
	if m[4] != "" {
		sec, _ := strconv.ParseFloat(m[4], 64)
		total += sec / 60
	}
	return int(total)
}

// SplitTotalTime 只有總時間時分配 prep / cook：
// 準備時間取三分之一、其餘算烹調時間
func SplitTotalTime(totalMinutes int) (prep, cook int) {
	if totalMinutes <= 0 {
		return 0, 0
	}
	prep = totalMinutes / 3
	cook = totalMinutes - prep
	return prep, cook
}

// ParseServings 解析份量：數值、數字字串或自由文字（"serves 4-6" 取第一個數字）
func ParseServings(v interface{}) int {
	switch s := v.(type) {
	case float64:
		return int(s)
	case int:
		return s
	case string:
		return int(firstNumber(s))
	case []interface{}:
		for _, item := range s {
			if n := ParseServings(item); n > 0 {
				return n
			}
		}
	}
	return 0
}

// ParseIngredientLine 解析食材行：數量（含分數）+ 單位 + 名稱 + 備註。
// 備註取逗號之後或括號內的文字。
func ParseIngredientLine(line string) common.Ingredient {
	ing := common.Ingredient{}
	rest := strings.TrimSpace(line)

	// 括號內文字視為備註
	if open := strings.Index(rest, "("); open != -1 {
		if close := strings.Index(rest[open:], ")"); close != -1 {
			ing.Notes = strings.TrimSpace(rest[open+1 : open+close])
			rest = strings.TrimSpace(rest[:open] + rest[open+close+1:])
		}
	}

	// 數量
	if m := quantityPattern.FindStringSubmatch(rest); m != nil {
		ing.Quantity = parseQuantity(m[1])
		rest = strings.TrimSpace(rest[len(m[0]):])
	}

	// 單位
	fields := strings.Fields(rest)
	if len(fields) > 1 {
		if unit, ok := knownUnits[strings.ToLower(strings.TrimSuffix(fields[0], "."))]; ok {
			ing.Unit = unit
			rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
		}
	}
	rest = strings.TrimPrefix(rest, "of ")

	// 逗號之後的文字視為備註
	if idx := strings.Index(rest, ","); idx != -1 {
		note := strings.TrimSpace(rest[idx+1:])
		if ing.Notes == "" {
			ing.Notes = note
		} else if note != "" {
			ing.Notes += "; " + note
		}
		rest = strings.TrimSpace(rest[:idx])
	}

	ing.Name = strings.TrimSpace(rest)
	if ing.Name == "" {
		ing.Name = strings.TrimSpace(line)
	}
	return ing
}

// parseQuantity 解析數量：整數、小數、分數、帶分數與 unicode 分數
func parseQuantity(s string) float64 {
	s = strings.TrimSpace(s)

	if v, ok := unicodeFractions[s]; ok {
		return v
	}

	// 帶分數 "1 1/2"
	if parts := strings.Fields(s); len(parts) == 2 {
		whole, err1 := strconv.ParseFloat(parts[0], 64)
		frac := parseFraction(parts[1])
		if err1 == nil && frac > 0 {
			return whole + frac
		}
	}

	if frac := parseFraction(s); frac > 0 {
		return frac
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFraction 解析 "a/b" 形式的分數
func parseFraction(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// firstNumber 取出字串中的第一個數字
func firstNumber(s string) float64 {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseNutritionValue 解析營養數值，容忍單位後綴（"240 calories"、"9 g"）
func parseNutritionValue(v interface{}) float64 {
	switch s := v.(type) {
	case float64:
		return s
	case string:
		return firstNumber(s)
	}
	return 0
}
