package sanitize

import (
	"encoding/json"
	"strings"

	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// FindRecipeBlock 從 JSON-LD 區塊中選出第一個食譜節點。
// 無法解析的區塊只略過；@graph / 頂層陣列會展開後逐一檢查。
// 回傳重新序列化後的節點，找不到時回傳 nil。
func FindRecipeBlock(blocks []string) []byte {
	for _, block := range blocks {
		var raw interface{}
		if err := json.Unmarshal([]byte(block), &raw); err != nil {
			common.LogDebug("略過無法解析的 JSON-LD 區塊",
				zap.Error(err),
			)
			continue
		}

		if node := findRecipeNode(raw); node != nil {
			data, err := json.Marshal(node)
			if err != nil {
				continue
			}
			return data
		}
	}
	return nil
}

// findRecipeNode 遞迴檢查節點：頂層物件、陣列元素、
// 以及 @graph 包裹下的節點
func findRecipeNode(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case map[string]interface{}:
		if isRecipeType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findRecipeNode(graph)
		}
	case []interface{}:
		for _, item := range v {
			if node := findRecipeNode(item); node != nil {
				return node
			}
		}
	}
	return nil
}

// isRecipeType 判斷 @type 是否為食譜類型；@type 可能是字串或字串陣列
func isRecipeType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Recipe")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Recipe") {
				return true
			}
		}
	}
	return false
}
