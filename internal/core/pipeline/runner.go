package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"recipe-ingest/internal/core/extract"
	"recipe-ingest/internal/core/fetch"
	"recipe-ingest/internal/core/normalize"
	"recipe-ingest/internal/core/repair"
	"recipe-ingest/internal/core/sanitize"
	"recipe-ingest/internal/core/similarity"
	"recipe-ingest/internal/core/validate"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/infrastructure/events"
	"recipe-ingest/internal/infrastructure/state"
	"recipe-ingest/internal/infrastructure/store"
	"recipe-ingest/internal/pkg/common"
	"recipe-ingest/internal/pkg/metrics"

	"go.uber.org/zap"
)

// 各階段完成後的累計進度，依模式而異
var ingestProgress = map[string]int{
	PhaseFetch:       30,
	PhaseExtract:     70,
	PhaseValidate:    85,
	PhaseRepair:      95,
	PhaseReviewReady: 100,
}

var normalizeProgress = map[string]int{
	PhaseLoadRecipe:  20,
	PhaseNormalize:   90,
	PhaseReviewReady: 100,
}

// Runner 管線執行器：依任務模式跑完各階段，
// 每個階段結束就更新狀態、發事件、落成品
type Runner struct {
	config     *config.Config
	fetcher    *fetch.Fetcher
	extractor  *extract.Orchestrator
	analyzer   *similarity.Analyzer
	repairer   *repair.Service
	normalizer *normalize.Engine
	states     state.TaskStateStore
	artifacts  store.ArtifactStore
	events     events.Sink
	recipes    RecipeStore
	search     SearchProvider // 查詢模式用，可為 nil
	now        func() time.Time
}

// RunnerDeps 執行器依賴
type RunnerDeps struct {
	Fetcher    *fetch.Fetcher
	Extractor  *extract.Orchestrator
	Analyzer   *similarity.Analyzer
	Repairer   *repair.Service
	Normalizer *normalize.Engine
	States     state.TaskStateStore
	Artifacts  store.ArtifactStore
	Events     events.Sink
	Recipes    RecipeStore
	Search     SearchProvider
}

// NewRunner 創建管線執行器
func NewRunner(cfg *config.Config, deps RunnerDeps) *Runner {
	return &Runner{
		config:     cfg,
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		analyzer:   deps.Analyzer,
		repairer:   deps.Repairer,
		normalizer: deps.Normalizer,
		states:     deps.States,
		artifacts:  deps.Artifacts,
		events:     deps.Events,
		recipes:    deps.Recipes,
		search:     deps.Search,
		now:        time.Now,
	}
}

// Run 執行任務直到審核就緒或失敗。
// 階段錯誤會帶穩定錯誤代碼寫進任務狀態。
func (r *Runner) Run(ctx context.Context, task *IngestTask) {
	if task.ThreadID == "" {
		task.ThreadID = task.ID
	}
	st := &state.TaskState{
		TaskID:    task.ID,
		ThreadID:  task.ThreadID,
		Mode:      task.Mode,
		RecipeID:  task.Payload.RecipeID,
		Status:    state.StatusRunning,
		CreatedAt: task.CreatedAt,
	}
	_ = r.states.Put(ctx, st)

	pc := &pipelineContext{task: task}

	var err error
	switch task.Mode {
	case ModeURL:
		err = r.runIngest(ctx, st, pc, task.Payload.URL)
	case ModeQuery:
		err = r.runQuery(ctx, st, pc)
	case ModeNormalize:
		err = r.runNormalize(ctx, st, pc)
	default:
		err = common.NewPhaseError(PhaseFetch, common.ErrCodeInvalidPayload, "不支援的任務模式: "+task.Mode, nil)
	}

	if err != nil {
		r.fail(ctx, st, err)
		return
	}

	st.Status = state.StatusReviewReady
	st.CurrentPhase = PhaseReviewReady
	st.Progress = 100
	now := r.now()
	st.ReviewReadyAt = &now
	st.Result = pc.draft
	_ = r.states.Put(ctx, st)
	r.emit(task.ID, PhaseReviewReady, 100, "待審核", state.StatusReviewReady)
	metrics.TasksCompleted.WithLabelValues(state.StatusReviewReady).Inc()
}

// runQuery 查詢模式：先解析網址，再走一般匯入流程
func (r *Runner) runQuery(ctx context.Context, st *state.TaskState, pc *pipelineContext) error {
	if r.search == nil {
		return common.NewPhaseError(PhaseFetch, common.ErrCodeInvalidPayload, "查詢模式未配置搜尋來源", nil)
	}
	url, err := r.search.Search(ctx, pc.task.Payload.Query)
	if err != nil {
		return common.NewPhaseError(PhaseFetch, common.ErrCodeInvalidPayload, "查詢解析失敗", err)
	}
	return r.runIngest(ctx, st, pc, url)
}

// runIngest 網址匯入流程：抓取 → 擷取 → 驗證 →（需要時）改寫
func (r *Runner) runIngest(ctx context.Context, st *state.TaskState, pc *pipelineContext, url string) error {
	pc.sourceURL = url

	if err := r.phase(ctx, st, PhaseFetch, ingestProgress, func() error {
		return r.phaseFetch(ctx, pc)
	}); err != nil {
		return err
	}
	if err := r.phase(ctx, st, PhaseExtract, ingestProgress, func() error {
		return r.phaseExtract(ctx, pc)
	}); err != nil {
		return err
	}
	if err := r.phase(ctx, st, PhaseValidate, ingestProgress, func() error {
		return r.phaseValidate(ctx, pc)
	}); err != nil {
		return err
	}

	if r.shouldRepair(pc.draft) {
		if err := r.phase(ctx, st, PhaseRepair, ingestProgress, func() error {
			return r.phaseRepair(ctx, pc)
		}); err != nil {
			return err
		}
	}
	return nil
}

// runNormalize 正規化模式：讀取食譜 → 產生並套用修正
func (r *Runner) runNormalize(ctx context.Context, st *state.TaskState, pc *pipelineContext) error {
	var recipe *common.Recipe

	if err := r.phase(ctx, st, PhaseLoadRecipe, normalizeProgress, func() error {
		loaded, err := r.recipes.Load(ctx, pc.task.Payload.RecipeID)
		if err != nil {
			return common.NewPhaseError(PhaseLoadRecipe, common.ErrCodeMissingRecipeID, "食譜不存在", err)
		}
		recipe = loaded
		return nil
	}); err != nil {
		return err
	}

	return r.phase(ctx, st, PhaseNormalize, normalizeProgress, func() error {
		result, err := r.normalizer.Normalize(ctx, recipe, pc.task.Payload.FocusAreas)
		if err != nil {
			return common.NewPhaseError(PhaseNormalize, common.ErrorCode(err), "正規化失敗", err)
		}
		pc.diff = result.Diff
		pc.draft = &common.RecipeDraft{
			Recipe:     result.Recipe,
			Validation: validate.Validate(result.Recipe),
		}
		r.writeArtifact(ctx, pc, PhaseNormalize, store.ArtifactDiff, []byte(result.Diff))
		r.writeJSONArtifact(ctx, pc, PhaseNormalize, store.ArtifactDraft, pc.draft)
		return nil
	})
}

// phase 統一的階段外殼：取消檢查、計時、狀態與事件更新
func (r *Runner) phase(ctx context.Context, st *state.TaskState, name string, progressTable map[string]int, fn func() error) error {
	select {
	case <-ctx.Done():
		return common.NewPhaseError(name, common.ErrCodeInternalError, "任務已取消", ctx.Err())
	default:
	}

	st.CurrentPhase = name
	_ = r.states.Put(ctx, st)
	r.emit(st.TaskID, name, st.Progress, "", st.Status)

	start := r.now()
	err := fn()
	metrics.PhaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		var phaseErr *common.PhaseError
		if !errors.As(err, &phaseErr) {
			err = common.NewPhaseError(name, common.ErrorCode(err), "階段執行失敗", err)
		}
		return err
	}

	st.Progress = progressTable[name]
	_ = r.states.Put(ctx, st)
	common.LogPhase(st.TaskID, name, st.Progress)
	r.emit(st.TaskID, name, st.Progress, "", st.Status)
	return nil
}

func (r *Runner) phaseFetch(ctx context.Context, pc *pipelineContext) error {
	result, err := r.fetcher.Fetch(ctx, pc.sourceURL)
	if err != nil {
		return common.NewPhaseError(PhaseFetch, common.ErrorCode(err), "抓取失敗", err)
	}
	pc.finalURL = result.FinalURL
	pc.contentHash = common.HashContent([]byte(result.Text))

	sanitized, err := sanitize.Sanitize(result.Text)
	if err != nil {
		return common.NewPhaseError(PhaseFetch, common.ErrCodeInternalError, "頁面清洗失敗", err)
	}
	pc.sanitized = sanitized

	r.writeArtifact(ctx, pc, PhaseFetch, store.ArtifactRawHTML, []byte(result.Text))
	r.writeArtifact(ctx, pc, PhaseFetch, store.ArtifactSanitizedText, []byte(sanitized.Text))
	r.writeJSONArtifact(ctx, pc, PhaseFetch, store.ArtifactMetadata, sanitized.Metadata)
	if sanitized.RecipeJSONLD != nil {
		r.writeArtifact(ctx, pc, PhaseFetch, store.ArtifactJSONLD, sanitized.RecipeJSONLD)
	}
	return nil
}

func (r *Runner) phaseExtract(ctx context.Context, pc *pipelineContext) error {
	out, err := r.extractor.Extract(ctx, &extract.Input{
		SanitizedText: pc.sanitized.Text,
		RecipeJSONLD:  pc.sanitized.RecipeJSONLD,
		SourceURL:     pc.finalURL,
		Metadata:      pc.sanitized.Metadata,
	})
	if err != nil {
		return common.NewPhaseError(PhaseExtract, common.ErrorCode(err), "食譜擷取失敗", err)
	}

	author := pc.sanitized.Metadata.Author
	if author == "" && pc.sanitized.RecipeJSONLD != nil {
		author = extract.AuthorFromJSONLD(pc.sanitized.RecipeJSONLD)
	}

	pc.draft = &common.RecipeDraft{
		Recipe: out.Recipe,
		Source: &common.SourceInfo{
			URL:              pc.finalURL,
			ContentHash:      pc.contentHash,
			SiteName:         pc.sanitized.Metadata.SiteName,
			Author:           author,
			ExtractionMethod: out.Method,
			RetrievedAt:      r.now(),
		},
	}
	r.writeJSONArtifact(ctx, pc, PhaseExtract, store.ArtifactDraft, pc.draft)
	return nil
}

func (r *Runner) phaseValidate(ctx context.Context, pc *pipelineContext) error {
	pc.draft.Validation = validate.Validate(pc.draft.Recipe)
	pc.draft.Similarity = r.analyzer.Analyze(pc.sanitized.Text, map[string]string{
		repair.SectionDescription:  pc.draft.Recipe.Description,
		repair.SectionInstructions: pc.draft.Recipe.InstructionsText(),
	})

	r.writeJSONArtifact(ctx, pc, PhaseValidate, store.ArtifactValidation, pc.draft.Validation)
	r.writeJSONArtifact(ctx, pc, PhaseValidate, store.ArtifactSimilarity, pc.draft.Similarity)
	return nil
}

// phaseRepair 改寫違規段落。改寫本身失敗不讓任務失敗：
// 草稿帶著未解決的違規進入審核，提交時才會被擋下。
func (r *Runner) phaseRepair(ctx context.Context, pc *pipelineContext) error {
	result, err := r.repairer.Repair(ctx, pc.draft, pc.sanitized.Text)
	if err != nil {
		common.LogWarn("改寫失敗，草稿保留原狀",
			zap.String("task_id", pc.task.ID),
			zap.Error(err),
		)
		return nil
	}

	pc.draft = result.Draft
	r.writeJSONArtifact(ctx, pc, PhaseRepair, store.ArtifactDraft, pc.draft)
	r.writeJSONArtifact(ctx, pc, PhaseRepair, store.ArtifactSimilarity, result.Report)
	return nil
}

// shouldRepair 相似度超標且開啟改寫才進入改寫階段
func (r *Runner) shouldRepair(draft *common.RecipeDraft) bool {
	if !r.config.Similarity.RepairEnabled || draft.Similarity == nil {
		return false
	}
	return draft.Similarity.ViolatesPolicy || draft.Similarity.Warning
}

// Commit 審核通過：草稿須可提交，食譜寫入儲存後任務轉為已提交
func (r *Runner) Commit(ctx context.Context, taskID string) (*state.TaskState, error) {
	st, err := r.states.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if st.Status != state.StatusReviewReady {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "任務不在待審核狀態", http.StatusConflict, nil)
	}
	if st.Result == nil || st.Result.Recipe == nil {
		return nil, common.NewError(common.ErrCodeInternalError, "任務缺少審核結果", http.StatusInternalServerError, nil)
	}
	if !st.Result.Committable(r.config.Similarity.BlockOnWarning) {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "草稿有未解決的驗證或相似度問題", http.StatusConflict, nil)
	}

	recipeID := pcRecipeID(st)
	if err := r.recipes.Save(ctx, recipeID, st.Result.Recipe); err != nil {
		return nil, err
	}

	ok, err := r.states.Transition(ctx, taskID, state.StatusReviewReady, state.StatusCommitted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "任務狀態已變更", http.StatusConflict, nil)
	}
	metrics.TasksCompleted.WithLabelValues(state.StatusCommitted).Inc()
	return r.states.Get(ctx, taskID)
}

// Reject 審核退回
func (r *Runner) Reject(ctx context.Context, taskID string) (*state.TaskState, error) {
	ok, err := r.states.Transition(ctx, taskID, state.StatusReviewReady, state.StatusRejected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewError(common.ErrCodeInvalidPayload, "任務不在待審核狀態", http.StatusConflict, nil)
	}
	metrics.TasksCompleted.WithLabelValues(state.StatusRejected).Inc()
	return r.states.Get(ctx, taskID)
}

// pcRecipeID 提交時的食譜編號：正規化任務覆寫原食譜，其他任務用任務編號
func pcRecipeID(st *state.TaskState) string {
	if st.RecipeID != "" {
		return st.RecipeID
	}
	return st.TaskID
}

func (r *Runner) fail(ctx context.Context, st *state.TaskState, err error) {
	st.Status = state.StatusFailed
	st.ErrorCode = common.ErrorCode(err)
	var phaseErr *common.PhaseError
	if errors.As(err, &phaseErr) {
		st.CurrentPhase = phaseErr.Phase
		st.ErrorMessage = phaseErr.Message
	} else {
		st.ErrorMessage = "任務執行失敗"
	}
	_ = r.states.Put(ctx, st)

	common.LogError("任務失敗",
		zap.Error(err),
		zap.String("task_id", st.TaskID),
		zap.String("phase", st.CurrentPhase),
		zap.String("code", st.ErrorCode),
	)
	r.emit(st.TaskID, st.CurrentPhase, st.Progress, st.ErrorMessage, state.StatusFailed)
	metrics.TasksCompleted.WithLabelValues(state.StatusFailed).Inc()
}

func (r *Runner) emit(taskID, phase string, progress int, message, status string) {
	if r.events == nil {
		return
	}
	r.events.Publish(events.Event{
		TaskID:   taskID,
		Phase:    phase,
		Progress: progress,
		Message:  message,
		Status:   status,
	})
}

func (r *Runner) writeArtifact(ctx context.Context, pc *pipelineContext, phase, name string, data []byte) {
	if r.artifacts == nil {
		return
	}
	key := store.ArtifactKey{ThreadID: pc.task.ThreadID, TaskID: pc.task.ID, Phase: phase, Name: name}
	if err := r.artifacts.Write(ctx, key, data); err != nil {
		common.LogWarn("成品寫入失敗",
			zap.String("task_id", pc.task.ID),
			zap.String("artifact", key.Path()),
			zap.Error(err),
		)
		return
	}
	// 草稿可能晚於成品建立，索引累積在工作區、建立後才同步
	pc.artifacts = append(pc.artifacts, key.Path())
	if pc.draft != nil {
		pc.draft.Artifacts = pc.artifacts
	}
}

func (r *Runner) writeJSONArtifact(ctx context.Context, pc *pipelineContext, phase, name string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		common.LogWarn("成品序列化失敗", zap.String("artifact", name), zap.Error(err))
		return
	}
	r.writeArtifact(ctx, pc, phase, name, data)
}
