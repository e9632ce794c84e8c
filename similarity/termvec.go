package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// vectorizer turns unit index text into L2-normalized TF-IDF vectors.
// Terms are word n-grams (1 to 3), stop words removed, and the vocabulary
// is restricted to terms appearing in at least minDocFreq documents and at
// most maxDocRatio of all documents, capped at maxVocabulary entries.
type vectorizer struct {
	MinDocFreq    int
	MaxDocRatio   float64
	MaxVocabulary int
	NGramMax      int
}

func newVectorizer() *vectorizer {
	return &vectorizer{
		MinDocFreq:    2,
		MaxDocRatio:   0.8,
		MaxVocabulary: 5000,
		NGramMax:      3,
	}
}

// stopWords is the fixed English stop-word list applied before n-gram
// expansion. Kept short on purpose: domain terms must survive.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "which": {}, "will": {}, "with": {},
}

// tokenize lowercases, splits on non-alphanumeric runes, and drops stop
// words and single-character tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// terms expands tokens into word n-grams of length 1..NGramMax.
func (v *vectorizer) terms(text string) []string {
	tokens := tokenize(text)
	out := make([]string, 0, len(tokens)*v.NGramMax)
	for n := 1; n <= v.NGramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// Vectors computes an L2-normalized TF-IDF vector per document. A corpus of
// fewer than two documents has no usable document-frequency statistics and
// yields nil vectors; callers treat that as "no similarity information".
func (v *vectorizer) Vectors(docs []string) [][]float32 {
	if len(docs) < 2 {
		return nil
	}

	// Term frequencies per document and document frequencies.
	termCounts := make([]map[string]int, len(docs))
	docFreq := make(map[string]int)
	for i, doc := range docs {
		counts := make(map[string]int)
		for _, term := range v.terms(doc) {
			counts[term]++
		}
		termCounts[i] = counts
		for term := range counts {
			docFreq[term]++
		}
	}

	// Vocabulary selection: df bounds, then cap by (df desc, term asc) so
	// the cut is deterministic.
	maxDF := int(v.MaxDocRatio * float64(len(docs)))
	if maxDF < v.MinDocFreq {
		maxDF = v.MinDocFreq
	}
	candidates := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df >= v.MinDocFreq && df <= maxDF {
			candidates = append(candidates, term)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if docFreq[candidates[i]] != docFreq[candidates[j]] {
			return docFreq[candidates[i]] > docFreq[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > v.MaxVocabulary {
		candidates = candidates[:v.MaxVocabulary]
	}

	vocab := make(map[string]int, len(candidates))
	for i, term := range candidates {
		vocab[term] = i
	}

	vectors := make([][]float32, len(docs))
	n := float64(len(docs))
	for i, counts := range termCounts {
		vec := make([]float32, len(vocab))
		for term, tf := range counts {
			col, ok := vocab[term]
			if !ok {
				continue
			}
			idf := math.Log((1+n)/(1+float64(docFreq[term]))) + 1
			vec[col] = float32(float64(tf) * idf)
		}
		vectors[i] = l2Normalize(vec)
	}
	return vectors
}

// l2Normalize scales vec to unit length. A zero vector is returned as is.
func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
