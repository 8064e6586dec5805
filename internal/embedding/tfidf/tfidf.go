// Package tfidf is an offline embedder: smoothed TF-IDF over the knowledge corpus, L2-normalised.
package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	errNotPrepared = errors.New("tfidf embedder not prepared")
	errEmptyCorpus = errors.New("empty corpus for TF-IDF prepare")
	errNoTokens    = errors.New("no tokens found in corpus")
)

// Letters and digits, so model numbers like "x200" survive.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// space is one prepared vector space. It is replaced whole, never edited.
type space struct {
	index map[string]int
	idf   []float64
}

// Embedder's vector space comes from the corpus passed to Prepare; queries are
// only comparable with passages embedded against the same space.
type Embedder struct {
	mu    sync.RWMutex
	space *space
}

func NewEmbedder() *Embedder { return &Embedder{} }

func (e *Embedder) Name() string { return "tfidf" }

// Prepare builds the vocabulary, sorted for determinism, and IDF weights.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errEmptyCorpus
	}
	df := make(map[string]int)
	for _, text := range corpus {
		for tok := range termCounts(text) {
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errNoTokens
	}
	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	s := &space{index: make(map[string]int, len(terms)), idf: make([]float64, len(terms))}
	n := float64(len(corpus))
	for i, t := range terms {
		s.index[t] = i
		s.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	e.mu.Lock()
	e.space = s
	e.mu.Unlock()
	return nil
}

func (e *Embedder) Dimension() int {
	s := e.current()
	if s == nil {
		return 0
	}
	return len(s.idf)
}

// Embed returns the unit-length TF-IDF vector of text. Terms outside the
// vocabulary are ignored, so unrelated text gives the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	s := e.current()
	if s == nil {
		return nil, errNotPrepared
	}
	vec := make([]float64, len(s.idf))
	counts := termCounts(text)
	total := 0
	for tok, c := range counts {
		if _, ok := s.index[tok]; ok {
			total += c
		}
	}
	if total == 0 {
		return vec, nil
	}
	var sq float64
	for tok, c := range counts {
		i, ok := s.index[tok]
		if !ok {
			continue
		}
		w := float64(c) / float64(total) * s.idf[i]
		vec[i] = w
		sq += w * w
	}
	norm := math.Sqrt(sq)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (e *Embedder) current() *space {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.space
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[tok]; !stop {
			counts[tok]++
		}
	}
	return counts
}

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`
		query passage q
		a an the and or but if then else for to of in on at by with as
		is are was were be been being it this that these those from
		up down over under again further than so such into about between
		through during before after above below out off own same too very
		can will just don should now
		i me my you your we our us do does did what which how`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
