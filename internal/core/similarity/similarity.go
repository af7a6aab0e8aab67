package similarity

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"
	"recipe-ingest/internal/pkg/metrics"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize 轉小寫後取出文字/數字連續段，捨棄低於最小長度的 token
func Tokenize(s string, minLength int) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(s), -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) >= minLength {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// MaxContiguousOverlap 最長連續 token 重疊：
// 先按值索引來源位置，再對擷取序列的每個位置沿匹配的來源段往前走，
// 追蹤最長匹配長度。等同 token 字母表上的最長公共子字串，
// 不需要完整 DP，複雜度 O(n·k)、k 為平均重複次數。
func MaxContiguousOverlap(source, extracted []string) int {
	if len(source) == 0 || len(extracted) == 0 {
		return 0
	}

	positions := make(map[string][]int, len(source))
	for i, tok := range source {
		positions[tok] = append(positions[tok], i)
	}

	best := 0
	for i := range extracted {
		for _, p := range positions[extracted[i]] {
			length := 0
			for i+length < len(extracted) && p+length < len(source) &&
				extracted[i+length] == source[p+length] {
				length++
			}
			if length > best {
				best = length
			}
		}
	}
	return best
}

// NgramJaccard 固定長度 token n-gram 集合的 Jaccard 相似度。
// 任一序列短於 n 時回傳 0。
func NgramJaccard(a, b []string, n int) float64 {
	if n <= 0 || len(a) < n || len(b) < n {
		return 0
	}

	gramsA := ngramSet(a, n)
	gramsB := ngramSet(b, n)

	intersection := 0
	for g := range gramsA {
		if gramsB[g] {
			intersection++
		}
	}
	union := len(gramsA) + len(gramsB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func ngramSet(tokens []string, n int) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for i := 0; i+n <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+n], "\x00")] = true
	}
	return set
}

// Analyzer 相似度守門器
type Analyzer struct {
	config *config.SimilarityConfig
}

// NewAnalyzer 創建相似度守門器
func NewAnalyzer(cfg *config.SimilarityConfig) *Analyzer {
	return &Analyzer{config: cfg}
}

// SectionScore 單一段落的相似度分數
type SectionScore struct {
	Contiguous int
	Jaccard    float64
}

// ScoreSection 對單一段落評分（修復服務定位違規段落用）
func (a *Analyzer) ScoreSection(sourceText, sectionText string) SectionScore {
	src := Tokenize(sourceText, a.config.MinTokenLength)
	sec := Tokenize(sectionText, a.config.MinTokenLength)
	return SectionScore{
		Contiguous: MaxContiguousOverlap(src, sec),
		Jaccard:    NgramJaccard(src, sec, a.config.NgramSize),
	}
}

// Analyze 對來源文字與多個擷取段落評分，回傳全新的報告。
// 報告永不原地修改：修復後重新呼叫本方法產生新報告。
func (a *Analyzer) Analyze(sourceText string, sections map[string]string) *common.SimilarityReport {
	src := Tokenize(sourceText, a.config.MinTokenLength)

	report := &common.SimilarityReport{}
	worstSection := ""

	// 固定順序走訪，讓 Detail 輸出可重現
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		text := sections[name]
		if strings.TrimSpace(text) == "" {
			continue
		}
		sec := Tokenize(text, a.config.MinTokenLength)

		if c := MaxContiguousOverlap(src, sec); c > report.MaxContiguousTokens {
			report.MaxContiguousTokens = c
			worstSection = name
		}
		if j := NgramJaccard(src, sec, a.config.NgramSize); j > report.MaxNgramJaccard {
			report.MaxNgramJaccard = j
			if worstSection == "" {
				worstSection = name
			}
		}
	}

	report.ViolatesPolicy = report.MaxContiguousTokens >= a.config.ViolationContiguous ||
		report.MaxNgramJaccard >= a.config.ViolationJaccard
	report.Warning = !report.ViolatesPolicy &&
		(report.MaxContiguousTokens >= a.config.WarnContiguous ||
			report.MaxNgramJaccard >= a.config.WarnJaccard)

	switch {
	case report.ViolatesPolicy:
		report.Detail = fmt.Sprintf("段落 %q 與來源過於相似：連續 %d token、jaccard %.2f",
			worstSection, report.MaxContiguousTokens, report.MaxNgramJaccard)
		metrics.SimilarityViolations.Inc()
	case report.Warning:
		report.Detail = fmt.Sprintf("段落 %q 與來源相似度偏高：連續 %d token、jaccard %.2f",
			worstSection, report.MaxContiguousTokens, report.MaxNgramJaccard)
	}

	return report
}
