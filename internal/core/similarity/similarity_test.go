package similarity

import (
	"strings"
	"testing"

	"recipe-ingest/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
)

func testSimilarityConfig() *config.SimilarityConfig {
	return &config.SimilarityConfig{
		NgramSize:           5,
		MinTokenLength:      2,
		WarnContiguous:      10,
		ViolationContiguous: 20,
		WarnJaccard:         0.3,
		ViolationJaccard:    0.5,
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Mix the flour, sugar & 2 eggs!", 2)
	assert.Equal(t, []string{"mix", "the", "flour", "sugar", "eggs"}, tokens)

	// minLength 1 保留單字元 token
	tokens = Tokenize("a b cd", 1)
	assert.Equal(t, []string{"a", "b", "cd"}, tokens)

	assert.Empty(t, Tokenize("", 2))
	assert.Empty(t, Tokenize("!!! ...", 2))
}

func TestMaxContiguousOverlap(t *testing.T) {
	source := strings.Fields("preheat the oven to 350 degrees and grease the pan")

	// 完全相同：重疊長度等於全長
	assert.Equal(t, len(source), MaxContiguousOverlap(source, source))

	// 完全不同：0
	other := strings.Fields("chop onions finely then saute until golden")
	assert.Equal(t, 0, MaxContiguousOverlap(source, other))

	// 部分重疊：中段四個 token 連續相同
	partial := strings.Fields("first preheat the oven to something else entirely")
	assert.Equal(t, 4, MaxContiguousOverlap(source, partial))

	// 重複 token 不會誇大結果
	repeats := strings.Fields("the the the the")
	assert.Equal(t, 1, MaxContiguousOverlap(source, repeats))

	assert.Equal(t, 0, MaxContiguousOverlap(nil, source))
	assert.Equal(t, 0, MaxContiguousOverlap(source, nil))
}

func TestNgramJaccard(t *testing.T) {
	a := strings.Fields("one two three four five six")

	// 相同序列：1.0
	assert.Equal(t, 1.0, NgramJaccard(a, a, 5))

	// 任一序列短於 n：0
	short := strings.Fields("one two three")
	assert.Equal(t, 0.0, NgramJaccard(a, short, 5))
	assert.Equal(t, 0.0, NgramJaccard(short, a, 5))

	// 完全不同：0
	b := strings.Fields("seven eight nine ten eleven twelve")
	assert.Equal(t, 0.0, NgramJaccard(a, b, 5))

	// 部分重疊介於 0 與 1 之間
	c := strings.Fields("one two three four five seven")
	j := NgramJaccard(a, c, 5)
	assert.Greater(t, j, 0.0)
	assert.Less(t, j, 1.0)
}

func TestAnalyzeViolation(t *testing.T) {
	a := NewAnalyzer(testSimilarityConfig())

	source := "Preheat the oven to 350 degrees. In a large bowl, whisk together flour, sugar, baking powder and salt. Add the eggs and melted butter, then stir until just combined. Pour the batter into the greased pan and bake for 30 minutes."

	// 逐字照抄：連續重疊遠超違規門檻
	report := a.Analyze(source, map[string]string{
		"instructions": source,
	})
	assert.True(t, report.ViolatesPolicy)
	assert.False(t, report.Warning)
	assert.GreaterOrEqual(t, report.MaxContiguousTokens, 20)
	assert.Contains(t, report.Detail, "instructions")
}

func TestAnalyzeCleanRewrite(t *testing.T) {
	a := NewAnalyzer(testSimilarityConfig())

	source := "Preheat the oven to 350 degrees. In a large bowl, whisk together flour, sugar, baking powder and salt."
	rewrite := "Warm your oven ahead of time. Combine all dry components thoroughly inside a roomy mixing vessel."

	report := a.Analyze(source, map[string]string{
		"description": rewrite,
	})
	assert.False(t, report.ViolatesPolicy)
	assert.False(t, report.Warning)
	assert.Empty(t, report.Detail)
}

func TestAnalyzeWarningBand(t *testing.T) {
	cfg := testSimilarityConfig()
	cfg.WarnContiguous = 4
	cfg.ViolationContiguous = 50
	cfg.WarnJaccard = 0.9
	cfg.ViolationJaccard = 0.95
	a := NewAnalyzer(cfg)

	source := "preheat the oven to 350 degrees and grease the baking pan carefully"
	section := "you should preheat the oven to 350 then do something different with onions"

	report := a.Analyze(source, map[string]string{"description": section})
	assert.False(t, report.ViolatesPolicy)
	assert.True(t, report.Warning)
	assert.GreaterOrEqual(t, report.MaxContiguousTokens, 4)
}

func TestAnalyzeSkipsEmptySections(t *testing.T) {
	a := NewAnalyzer(testSimilarityConfig())
	report := a.Analyze("some source text here", map[string]string{
		"description":  "",
		"instructions": "   ",
	})
	assert.Equal(t, 0, report.MaxContiguousTokens)
	assert.False(t, report.ViolatesPolicy)
	assert.False(t, report.Warning)
}
