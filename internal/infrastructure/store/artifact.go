package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"
)

// 常見成品類型
const (
	ArtifactRawHTML       = "raw_html"
	ArtifactSanitizedText = "sanitized_text"
	ArtifactMetadata      = "metadata"
	ArtifactJSONLD        = "jsonld"
	ArtifactDraft         = "draft"
	ArtifactValidation    = "validation"
	ArtifactSimilarity    = "similarity"
	ArtifactDiff          = "diff"
)

// ArtifactKey 成品鍵：執行緒 / 任務 / 階段 / 類型 四層
type ArtifactKey struct {
	ThreadID string `json:"thread_id"`
	TaskID   string `json:"task_id"`
	Phase    string `json:"phase"`
	Name     string `json:"name"`
}

// Path 鍵的路徑表示，各後端共用
func (k ArtifactKey) Path() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.ThreadID, k.TaskID, k.Phase, k.Name)
}

// ParseArtifactPath 從路徑還原鍵
func ParseArtifactPath(path string) (ArtifactKey, error) {
	parts := strings.SplitN(path, "/", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return ArtifactKey{}, fmt.Errorf("無效的成品路徑: %q", path)
	}
	return ArtifactKey{ThreadID: parts[0], TaskID: parts[1], Phase: parts[2], Name: parts[3]}, nil
}

// ErrArtifactNotFound 成品不存在
var ErrArtifactNotFound = common.NewError("ARTIFACT_NOT_FOUND", "成品不存在", http.StatusNotFound, nil)

// ArtifactStore 各階段中間成品的讀寫層。
// 寫入以執行緒加任務為單位隔離，List 回傳該任務的所有鍵。
type ArtifactStore interface {
	Write(ctx context.Context, key ArtifactKey, data []byte) error
	Read(ctx context.Context, key ArtifactKey) ([]byte, error)
	List(ctx context.Context, threadID, taskID string) ([]ArtifactKey, error)
	DeleteTask(ctx context.Context, threadID, taskID string) error
	Close() error
}

// NewArtifactStore 依配置選擇後端
func NewArtifactStore(ctx context.Context, cfg *config.ArtifactConfig) (ArtifactStore, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "badger":
		return NewBadgerStore(cfg.BadgerPath)
	case "s3":
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("不支援的成品後端: %q", cfg.Backend)
	}
}
