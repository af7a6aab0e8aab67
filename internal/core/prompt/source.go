package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Template 具名提示模板
type Template struct {
	Name    string // 階段名稱（extract / repair / normalize）
	Version int
	System  string // system prompt，可為空
	Body    string // 使用 {{variable}} 佔位符
}

// Source 提示模板來源：依階段名稱解析當前啟用的模板
type Source interface {
	Resolve(name string) (*Template, error)
}

// Registry 行程內模板註冊表，保存每個名稱的多個版本、最高版本為啟用版本
type Registry struct {
	mu        sync.RWMutex
	templates map[string][]*Template
}

// NewRegistry 創建模板註冊表並載入內建模板
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string][]*Template)}
	for _, t := range builtinTemplates {
		r.Register(t)
	}
	return r
}

// Register 註冊模板版本
func (r *Registry) Register(t *Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = append(r.templates[t.Name], t)
	sort.Slice(r.templates[t.Name], func(i, j int) bool {
		return r.templates[t.Name][i].Version < r.templates[t.Name][j].Version
	})
}

// Resolve 解析啟用中的模板（最高版本）
func (r *Registry) Resolve(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.templates[name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("prompt template not found: %s", name)
	}
	return versions[len(versions)-1], nil
}

// Render 以變數渲染模板。maxChars > 0 時對渲染結果施加字元預算：
// 超出預算時優先截斷最長的變數值，而不是整段裁尾，
// 讓指令部分保持完整。
func Render(t *Template, vars map[string]string, maxChars int) string {
	rendered := substitute(t.Body, vars)
	if maxChars <= 0 || len(rendered) <= maxChars {
		return rendered
	}

	// 超出預算：找出最長的變數值，按超出量縮減後重新渲染
	over := len(rendered) - maxChars
	longestKey := ""
	for k, v := range vars {
		if longestKey == "" || len(v) > len(vars[longestKey]) {
			longestKey = k
		}
	}
	if longestKey != "" && len(vars[longestKey]) > over {
		truncated := make(map[string]string, len(vars))
		for k, v := range vars {
			truncated[k] = v
		}
		val := vars[longestKey]
		truncated[longestKey] = cutAtRuneBoundary(val, len(val)-over) + "…"
		rendered = substitute(t.Body, truncated)
	}

	// 變數縮減仍不足時，退回整段裁尾
	if len(rendered) > maxChars {
		rendered = cutAtRuneBoundary(rendered, maxChars)
	}
	return rendered
}

// cutAtRuneBoundary 以位元組預算裁切，但不切斷多位元組字元
func cutAtRuneBoundary(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// substitute 佔位符替換
func substitute(body string, vars map[string]string) string {
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
