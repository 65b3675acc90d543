package scorer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"Lowercases and strips punctuation", "Best Espresso-Machines!", []string{"best", "espresso", "machines"}},
		{"Drops short tokens", "is a $500 to go", []string{"500"}},
		{"Empty", "   ", []string{}},
		{"Unicode letters kept", "Café crème", []string{"café", "crème"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestLexicalScorer_Formula(t *testing.T) {
	s := NewLexicalScorer()

	// question tokens: best, espresso, machines, under, 500 -> 5 distinct, denominator 15
	res := s.Score("Espresso machines reviewed. Prices under 500 dollars.", "best espresso machines under $500")
	assert.InDelta(t, 4.0/15.0, res.RelevanceScore, 1e-9)
	require.NotNil(t, res.Excerpt)
	assert.Equal(t, "Espresso machines reviewed.", *res.Excerpt)
	assert.True(t, strings.HasPrefix(res.Notes, "moderate overlap: 4 of 5"), res.Notes)
}

func TestLexicalScorer_MinimumDenominator(t *testing.T) {
	s := NewLexicalScorer()

	// one question token, denominator is max(6, 3) = 6
	res := s.Score("Grinders matter.", "grinders")
	assert.InDelta(t, 1.0/6.0, res.RelevanceScore, 1e-9)
	assert.Contains(t, res.Notes, "weak overlap")
}

func TestLexicalScorer_ExcerptFallsBackToFirstSentence(t *testing.T) {
	s := NewLexicalScorer()

	res := s.Score("Nothing related here. Still nothing.", "espresso grinder")
	assert.Equal(t, 0.0, res.RelevanceScore)
	require.NotNil(t, res.Excerpt)
	assert.Equal(t, "Nothing related here.", *res.Excerpt)
	assert.Contains(t, res.Notes, "none of 2 question terms")
}

func TestLexicalScorer_Degenerate(t *testing.T) {
	s := NewLexicalScorer()

	tests := []struct {
		name     string
		text     string
		question string
		notes    string
	}{
		{"Empty question", "Some text here.", "a b ?", "no scorable terms in sub-question"},
		{"Empty text", "!! ..", "espresso machines", "no scorable terms in source text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Score(tt.text, tt.question)
			assert.Equal(t, 0.0, res.RelevanceScore)
			assert.Nil(t, res.Excerpt)
			assert.Equal(t, tt.notes, res.Notes)
		})
	}
}

func TestLexicalScorer_DeterministicAndBounded(t *testing.T) {
	s := NewLexicalScorer()
	text := strings.Repeat("espresso machine grinder boiler pressure steam milk ", 20)
	question := "espresso machine"

	first := s.Score(text, question)
	for i := 0; i < 10; i++ {
		again := s.Score(text, question)
		assert.Equal(t, first.RelevanceScore, again.RelevanceScore)
		assert.Equal(t, *first.Excerpt, *again.Excerpt)
		assert.Equal(t, first.Notes, again.Notes)
	}
	assert.GreaterOrEqual(t, first.RelevanceScore, 0.0)
	assert.LessOrEqual(t, first.RelevanceScore, 1.0)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First one. Second one?\nThird line v1.2 stays whole")
	assert.Equal(t, []string{"First one.", "Second one?", "Third line v1.2 stays whole"}, got)
}
