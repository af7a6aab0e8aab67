package repair

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"recipe-ingest/internal/core/ai"
	"recipe-ingest/internal/core/prompt"
	"recipe-ingest/internal/core/similarity"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// 段落識別名
const (
	SectionDescription  = "description"
	SectionInstructions = "instructions"
)

// Result 改寫結果。部分失敗不拋錯：
// FailedSections 記錄模型沒有改寫到的段落，
// StillViolates 區分「完全失敗」與「有改善但未達標」。
type Result struct {
	Draft          *common.RecipeDraft      // 改寫後的新草稿
	Report         *common.SimilarityReport // 重新評分後的報告
	StillViolates  bool
	FailedSections []string
}

// Service 相似度違規改寫服務
type Service struct {
	config   *config.Config
	backend  ai.Backend
	prompts  prompt.Source
	analyzer *similarity.Analyzer
}

// NewService 創建改寫服務
func NewService(cfg *config.Config, backend ai.Backend, prompts prompt.Source, analyzer *similarity.Analyzer) *Service {
	return &Service{
		config:   cfg,
		backend:  backend,
		prompts:  prompts,
		analyzer: analyzer,
	}
}

// rephrasedSection 模型回傳的改寫段落
type rephrasedSection struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Repair 只改寫違規段落並重新評分。
// 逐段和警告門檻比對來定位違規段落，改寫指示要求保留
// 所有事實內容（份量、溫度、時間）。
func (s *Service) Repair(ctx context.Context, draft *common.RecipeDraft, sourceText string) (*Result, error) {
	offending := s.findOffendingSections(draft.Recipe, sourceText)
	if len(offending) == 0 {
		// 沒有可定位的違規段落：照樣重新評分，讓呼叫端拿到新報告
		offending = map[string]string{
			SectionDescription:  draft.Recipe.Description,
			SectionInstructions: draft.Recipe.InstructionsText(),
		}
	}

	tmpl, err := s.prompts.Resolve("repair")
	if err != nil {
		return nil, common.NewError(common.ErrCodeInternalError, "找不到改寫模板", http.StatusInternalServerError, err)
	}

	var sectionsText strings.Builder
	for id, text := range offending {
		fmt.Fprintf(&sectionsText, "[%s]\n%s\n\n", id, text)
	}

	rendered := prompt.Render(tmpl, map[string]string{
		"sections":    sectionsText.String(),
		"source_text": sourceText,
	}, s.config.Extract.MaxInputChars)

	content, err := s.backend.Chat(ctx, &ai.ChatRequest{
		SystemPrompt: tmpl.System,
		Messages:     []ai.ChatMessage{{Role: "user", Content: rendered}},
		Temperature:  0.7, // 改寫需要一些變化空間
		MaxTokens:    s.config.OpenRouter.MaxTokens,
	})
	if err != nil {
		return nil, common.NewError(common.ErrCodeInternalError, "改寫請求失敗", http.StatusBadGateway, err)
	}

	var parsed struct {
		Sections []rephrasedSection `json:"sections"`
	}
	if err := common.ParseJSON(common.ExtractJSONObject(content), &parsed); err != nil {
		return nil, common.NewError(common.ErrCodeInternalError, "改寫結果無法解析", http.StatusBadGateway, err)
	}

	// 替換回草稿：產生新草稿與新報告，原草稿不動
	repaired := cloneDraft(draft)
	applied := make(map[string]bool, len(parsed.Sections))
	for _, sec := range parsed.Sections {
		text := strings.TrimSpace(sec.Text)
		if text == "" {
			continue
		}
		switch sec.ID {
		case SectionDescription:
			repaired.Recipe.Description = text
			applied[sec.ID] = true
		case SectionInstructions:
			repaired.Recipe.Instructions = splitInstructions(text)
			applied[sec.ID] = true
		}
	}

	var failed []string
	for id := range offending {
		if !applied[id] {
			failed = append(failed, id)
		}
	}

	// 重新評分
	report := s.analyzer.Analyze(sourceText, map[string]string{
		SectionDescription:  repaired.Recipe.Description,
		SectionInstructions: repaired.Recipe.InstructionsText(),
	})
	repaired.Similarity = report

	common.LogInfo("改寫完成",
		zap.Bool("still_violates", report.ViolatesPolicy),
		zap.Bool("warning", report.Warning),
		zap.Strings("failed_sections", failed),
	)

	return &Result{
		Draft:          repaired,
		Report:         report,
		StillViolates:  report.ViolatesPolicy,
		FailedSections: failed,
	}, nil
}

// findOffendingSections 逐段和警告門檻比對，找出需要改寫的段落
func (s *Service) findOffendingSections(recipe *common.Recipe, sourceText string) map[string]string {
	offending := make(map[string]string)

	candidates := map[string]string{
		SectionDescription:  recipe.Description,
		SectionInstructions: recipe.InstructionsText(),
	}
	for id, text := range candidates {
		if strings.TrimSpace(text) == "" {
			continue
		}
		score := s.analyzer.ScoreSection(sourceText, text)
		if score.Contiguous >= s.config.Similarity.WarnContiguous ||
			score.Jaccard >= s.config.Similarity.WarnJaccard {
			offending[id] = text
		}
	}
	return offending
}

var sentenceSplitPattern = regexp.MustCompile(`(?:[.!?。！？])\s+`)

// splitInstructions 把改寫後的步驟文字拆回獨立步驟：
// 優先按行拆分，單行文字退回句子拆分
func splitInstructions(text string) []common.Instruction {
	var parts []string

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "•-*0123456789. "))
		if line != "" {
			parts = append(parts, line)
		}
	}

	// 單行：按句子拆分
	if len(parts) <= 1 && len(parts) > 0 {
		if sentences := splitSentences(parts[0]); len(sentences) > 1 {
			parts = sentences
		}
	}

	instructions := make([]common.Instruction, 0, len(parts))
	for i, p := range parts {
		instructions = append(instructions, common.Instruction{StepNumber: i + 1, Text: p})
	}
	return instructions
}

// splitSentences 句子拆分；保留句尾標點
func splitSentences(text string) []string {
	indices := sentenceSplitPattern.FindAllStringIndex(text, -1)
	if len(indices) == 0 {
		return []string{text}
	}

	var out []string
	start := 0
	for _, idx := range indices {
		// 句尾標點可能是多位元組字元，按 rune 邊界切
		_, size := utf8.DecodeRuneInString(text[idx[0]:])
		sentence := strings.TrimSpace(text[start : idx[0]+size])
		if sentence != "" {
			out = append(out, sentence)
		}
		start = idx[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// cloneDraft 深拷貝草稿（共享不可變的 Source / Validation 指標內容前先複製）
func cloneDraft(d *common.RecipeDraft) *common.RecipeDraft {
	out := &common.RecipeDraft{}

	if d.Recipe != nil {
		r := *d.Recipe
		r.Ingredients = append([]common.Ingredient(nil), d.Recipe.Ingredients...)
		r.Instructions = append([]common.Instruction(nil), d.Recipe.Instructions...)
		r.Tags = append([]string(nil), d.Recipe.Tags...)
		if d.Recipe.Nutrition != nil {
			n := *d.Recipe.Nutrition
			r.Nutrition = &n
		}
		out.Recipe = &r
	}
	if d.Source != nil {
		src := *d.Source
		out.Source = &src
	}
	if d.Validation != nil {
		v := *d.Validation
		v.Errors = append([]common.ValidationIssue(nil), d.Validation.Errors...)
		v.Warnings = append([]common.ValidationIssue(nil), d.Validation.Warnings...)
		out.Validation = &v
	}
	out.Artifacts = append([]string(nil), d.Artifacts...)

	return out
}
