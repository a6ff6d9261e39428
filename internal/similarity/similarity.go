// Package similarity scores how closely two texts agree using keyword
// frequency vectors. It is used to attach a confidence score to each
// individual summary that contributed to a composite summary.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

// Scorer computes a confidence score between two texts.
type Scorer interface {
	// Similarity returns a deterministic score in [0, 100].
	Similarity(a, b string) float64
}

// CosineScorer implements Scorer with cosine similarity over term-frequency
// vectors built after stop-word filtering.
type CosineScorer struct{}

// NewCosineScorer creates a CosineScorer.
func NewCosineScorer() CosineScorer {
	return CosineScorer{}
}

// Similarity returns 100 × cosine(tf(a), tf(b)).
func (CosineScorer) Similarity(a, b string) float64 {
	return Similarity(a, b)
}

// Similarity is the package-level form of CosineScorer.Similarity. When
// neither text has a keyword left after stop-word removal, the unfiltered
// tokens are compared instead, so a non-empty text always scores 100 against
// itself. Two empty texts score 0.
func Similarity(a, b string) float64 {
	ra, rb := split(a), split(b)
	va, vb := frequencies(dropStopWords(ra)), frequencies(dropStopWords(rb))

	if len(va) == 0 && len(vb) == 0 {
		if len(ra) > 0 && len(rb) > 0 {
			return cosine(frequencies(ra), frequencies(rb))
		}
		if ta := strings.TrimSpace(a); ta != "" && ta == strings.TrimSpace(b) {
			return 100
		}
		return 0
	}
	return cosine(va, vb)
}

func cosine(va, vb map[string]float64) float64 {
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for term, fa := range va {
		normA += fa * fa
		if fb, ok := vb[term]; ok {
			dot += fa * fb
		}
	}
	for _, fb := range vb {
		normB += fb * fb
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := 100 * dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Float error can push identical vectors a hair past 100.
	score = math.Round(score*1e4) / 1e4
	return math.Max(0, math.Min(100, score))
}

// Tokenize lowercases text and splits it into keyword tokens, dropping stop
// words. Runs of Han, Hiragana and Katakana are split into overlapping
// bigrams because those scripts do not separate words with spaces.
func Tokenize(text string) []string {
	return dropStopWords(split(text))
}

func split(text string) []string {
	var (
		tokens []string
		word   []rune
		cjk    []rune
	)
	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, string(word))
			word = word[:0]
		}
	}
	flushCJK := func() {
		switch {
		case len(cjk) == 1:
			tokens = append(tokens, string(cjk))
		case len(cjk) > 1:
			for i := 0; i+1 < len(cjk); i++ {
				tokens = append(tokens, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, r)
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()
	return tokens
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana)
}

func dropStopWords(tokens []string) []string {
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return kept
}

func frequencies(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf
}
