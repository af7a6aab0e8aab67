package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// 操作類型
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// 風險等級
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// PatchOperation 一筆修正操作，路徑採 JSON Pointer（RFC 6901）
type PatchOperation struct {
	Path       string      `json:"path"`
	Op         string      `json:"op"`
	Value      interface{} `json:"value,omitempty"`
	Risk       string      `json:"risk,omitempty"`
	Rationale  string      `json:"rationale,omitempty"`
	PriorValue interface{} `json:"prior_value,omitempty"`
}

// FailedOperation 失敗的操作和原因
type FailedOperation struct {
	Operation PatchOperation `json:"operation"`
	Reason    string         `json:"reason"`
}

// PatchResult 套用結果。單筆失敗不影響其他操作，
// Document 永遠是套用成功操作後的最佳結果。
type PatchResult struct {
	Document interface{}       `json:"document"`
	Applied  []PatchOperation  `json:"applied"`
	Failed   []FailedOperation `json:"failed"`
}

// AllFailed 所有操作都失敗
func (r *PatchResult) AllFailed() bool {
	return len(r.Applied) == 0 && len(r.Failed) > 0
}

// Partial 部分操作失敗
func (r *PatchResult) Partial() bool {
	return len(r.Applied) > 0 && len(r.Failed) > 0
}

// ApplyPatch 依序套用操作。每筆操作獨立成敗：
// 失敗的操作記錄原因後跳過，不中斷後續操作。
func ApplyPatch(document interface{}, operations []PatchOperation) *PatchResult {
	result := &PatchResult{Document: document}

	for _, op := range operations {
		applied, err := applyOne(&result.Document, op)
		if err != nil {
			result.Failed = append(result.Failed, FailedOperation{Operation: op, Reason: err.Error()})
			continue
		}
		result.Applied = append(result.Applied, applied)
	}
	return result
}

// applyOne 套用單筆操作，回傳含 PriorValue 的操作副本
func applyOne(doc *interface{}, op PatchOperation) (PatchOperation, error) {
	tokens, err := parsePointer(op.Path)
	if err != nil {
		return op, err
	}

	switch op.Op {
	case OpAdd, OpReplace, OpRemove:
	default:
		return op, fmt.Errorf("不支援的操作類型: %q", op.Op)
	}

	if len(tokens) == 0 {
		// 整份文件的操作
		switch op.Op {
		case OpReplace, OpAdd:
			op.PriorValue = *doc
			*doc = op.Value
			return op, nil
		default:
			return op, fmt.Errorf("不能移除整份文件")
		}
	}

	parent, err := walk(*doc, tokens[:len(tokens)-1])
	if err != nil {
		return op, err
	}
	last := tokens[len(tokens)-1]

	switch node := parent.(type) {
	case map[string]interface{}:
		prior, exists := node[last]
		switch op.Op {
		case OpAdd:
			if exists {
				op.PriorValue = prior
			}
			node[last] = op.Value
		case OpReplace:
			if !exists {
				return op, fmt.Errorf("路徑不存在: %s", op.Path)
			}
			op.PriorValue = prior
			node[last] = op.Value
		case OpRemove:
			if !exists {
				return op, fmt.Errorf("路徑不存在: %s", op.Path)
			}
			op.PriorValue = prior
			delete(node, last)
		}
		return op, nil

	case []interface{}:
		// 陣列節點需要就地改寫父容器，所以多走一層
		return applyToArray(doc, tokens, node, op)

	default:
		return op, fmt.Errorf("路徑 %s 的父節點不是物件或陣列", op.Path)
	}
}

// applyToArray 陣列的增刪改。add 在 index == len 時是附加；
// 其他越界索引只讓這筆操作失敗。
func applyToArray(doc *interface{}, tokens []string, arr []interface{}, op PatchOperation) (PatchOperation, error) {
	last := tokens[len(tokens)-1]

	var index int
	if op.Op == OpAdd && last == "-" {
		index = len(arr)
	} else {
		i, err := strconv.Atoi(last)
		if err != nil {
			return op, fmt.Errorf("無效的陣列索引: %q", last)
		}
		index = i
	}

	switch op.Op {
	case OpAdd:
		if index < 0 || index > len(arr) {
			return op, fmt.Errorf("陣列索引 %d 超出範圍（長度 %d）", index, len(arr))
		}
		updated := make([]interface{}, 0, len(arr)+1)
		updated = append(updated, arr[:index]...)
		updated = append(updated, op.Value)
		updated = append(updated, arr[index:]...)
		if err := replaceNode(doc, tokens[:len(tokens)-1], updated); err != nil {
			return op, err
		}
	case OpReplace:
		if index < 0 || index >= len(arr) {
			return op, fmt.Errorf("陣列索引 %d 超出範圍（長度 %d）", index, len(arr))
		}
		op.PriorValue = arr[index]
		arr[index] = op.Value
	case OpRemove:
		if index < 0 || index >= len(arr) {
			return op, fmt.Errorf("陣列索引 %d 超出範圍（長度 %d）", index, len(arr))
		}
		op.PriorValue = arr[index]
		updated := append(append([]interface{}{}, arr[:index]...), arr[index+1:]...)
		if err := replaceNode(doc, tokens[:len(tokens)-1], updated); err != nil {
			return op, err
		}
	}
	return op, nil
}

// replaceNode 把指定路徑的節點換成新值（陣列重建後掛回父容器）
func replaceNode(doc *interface{}, tokens []string, value interface{}) error {
	if len(tokens) == 0 {
		*doc = value
		return nil
	}
	parent, err := walk(*doc, tokens[:len(tokens)-1])
	if err != nil {
		return err
	}
	last := tokens[len(tokens)-1]

	switch node := parent.(type) {
	case map[string]interface{}:
		node[last] = value
		return nil
	case []interface{}:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(node) {
			return fmt.Errorf("無效的陣列索引: %q", last)
		}
		node[i] = value
		return nil
	default:
		return fmt.Errorf("父節點不是物件或陣列")
	}
}

// walk 沿 JSON Pointer 標記往下走
func walk(doc interface{}, tokens []string) (interface{}, error) {
	current := doc
	for _, token := range tokens {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[token]
			if !ok {
				return nil, fmt.Errorf("路徑不存在: /%s", token)
			}
			current = next
		case []interface{}:
			i, err := strconv.Atoi(token)
			if err != nil {
				return nil, fmt.Errorf("無效的陣列索引: %q", token)
			}
			if i < 0 || i >= len(node) {
				return nil, fmt.Errorf("陣列索引 %d 超出範圍（長度 %d）", i, len(node))
			}
			current = node[i]
		default:
			return nil, fmt.Errorf("路徑中間節點不是物件或陣列: /%s", token)
		}
	}
	return current, nil
}

// parsePointer 解析 JSON Pointer。空字串代表整份文件；
// ~1 還原成 /，~0 還原成 ~（順序不能反）。
func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("JSON Pointer 必須以 / 開頭: %q", path)
	}
	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		tokens[i] = t
	}
	return tokens, nil
}
