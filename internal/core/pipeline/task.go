package pipeline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"recipe-ingest/internal/pkg/common"
)

// 任務模式
const (
	ModeURL       = "url"
	ModeQuery     = "query"
	ModeNormalize = "normalize"
)

// 管線階段
const (
	PhaseFetch       = "fetch"
	PhaseExtract     = "extract"
	PhaseValidate    = "validate"
	PhaseRepair      = "repair_paraphrase"
	PhaseLoadRecipe  = "load_recipe"
	PhaseNormalize   = "normalize"
	PhaseReviewReady = "review_ready"
)

// TaskPayload 任務輸入，依模式取用不同欄位
type TaskPayload struct {
	URL        string   `json:"url,omitempty"`
	Query      string   `json:"query,omitempty"`
	RecipeID   string   `json:"recipe_id,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// IngestTask 一筆匯入任務
type IngestTask struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"thread_id,omitempty"` // 空值時以任務編號為執行緒
	Mode      string      `json:"mode"`
	Payload   TaskPayload `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

// ValidatePayload 建立任務前的輸入檢查
func (t *IngestTask) ValidatePayload() error {
	switch t.Mode {
	case ModeURL:
		if strings.TrimSpace(t.Payload.URL) == "" {
			return common.NewError(common.ErrCodeMissingURL, "缺少網址", http.StatusBadRequest, nil)
		}
	case ModeQuery:
		if strings.TrimSpace(t.Payload.Query) == "" {
			return common.NewError(common.ErrCodeInvalidPayload, "缺少查詢關鍵字", http.StatusBadRequest, nil)
		}
	case ModeNormalize:
		if strings.TrimSpace(t.Payload.RecipeID) == "" {
			return common.NewError(common.ErrCodeMissingRecipeID, "缺少食譜編號", http.StatusBadRequest, nil)
		}
	default:
		return common.NewError(common.ErrCodeInvalidPayload, "不支援的任務模式: "+t.Mode, http.StatusBadRequest, nil)
	}
	return nil
}

// SearchProvider 查詢模式的網址解析器
type SearchProvider interface {
	// Search 回傳最符合查詢的食譜網址
	Search(ctx context.Context, query string) (string, error)
}

// RecipeStore 已提交食譜的儲存層。
// 提交流程寫入，正規化模式讀出。
type RecipeStore interface {
	Save(ctx context.Context, recipeID string, recipe *common.Recipe) error
	Load(ctx context.Context, recipeID string) (*common.Recipe, error)
}

// ErrRecipeNotFound 食譜不存在
var ErrRecipeNotFound = common.NewError(common.ErrCodeMissingRecipeID, "食譜不存在", http.StatusNotFound, nil)

// MemoryRecipeStore 內存食譜儲存
type MemoryRecipeStore struct {
	mu      sync.RWMutex
	recipes map[string]*common.Recipe
}

// NewMemoryRecipeStore 創建內存食譜儲存
func NewMemoryRecipeStore() *MemoryRecipeStore {
	return &MemoryRecipeStore{recipes: make(map[string]*common.Recipe)}
}

// Save 保存食譜
func (s *MemoryRecipeStore) Save(_ context.Context, recipeID string, recipe *common.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *recipe
	s.recipes[recipeID] = &snapshot
	return nil
}

// Load 讀取食譜
func (s *MemoryRecipeStore) Load(_ context.Context, recipeID string) (*common.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recipe, ok := s.recipes[recipeID]
	if !ok {
		return nil, ErrRecipeNotFound
	}
	snapshot := *recipe
	return &snapshot, nil
}
