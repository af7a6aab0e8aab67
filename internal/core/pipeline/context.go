package pipeline

import (
	"recipe-ingest/internal/core/sanitize"
	"recipe-ingest/internal/pkg/common"
)

// pipelineContext 單一任務執行期間的工作區。
// 只有執行該任務的工作協程會碰它，不需要鎖。
type pipelineContext struct {
	task *IngestTask

	// 抓取階段產物
	sourceURL   string
	finalURL    string
	contentHash string
	sanitized   *sanitize.Result

	// 擷取階段產物
	draft *common.RecipeDraft

	// 已落地的成品路徑，草稿建立後同步到草稿的成品索引
	artifacts []string

	// 正規化模式產物
	diff string
}
