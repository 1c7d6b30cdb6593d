package embedder

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

// TFIDFEmbedder is an offline vectorizer. Every Embed call builds its own
// vocabulary and IDF table from the texts it receives, so vectors from one
// call are comparable with each other and with nothing else. The ranker
// embeds a goal and all of its blocks in one call, which is exactly that
// contract. Output vectors are L2-normalised.
type TFIDFEmbedder struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewTFIDFEmbedder constructs a TFIDFEmbedder with an English stopword list.
func NewTFIDFEmbedder() *TFIDFEmbedder {
	return &TFIDFEmbedder{
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name identifies the backend in traces and logs.
func (e *TFIDFEmbedder) Name() string { return "tfidf" }

// Embed vectorizes texts against a vocabulary built from texts themselves.
// Texts with no known terms map to the zero vector.
func (e *TFIDFEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([][]string, len(texts))
	df := make(map[string]int)
	for i, text := range texts {
		docs[i] = e.tokenize(text)
		seen := make(map[string]struct{}, len(docs[i]))
		for _, tok := range docs[i] {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return nil, errors.New("tfidf embedder: no tokens found in input")
	}

	// Sorted terms keep vector layout deterministic across runs.
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(texts))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	out := make([][]float32, len(texts))
	for i, tokens := range docs {
		out[i] = vectorize(tokens, vocab, idf)
	}
	return out, nil
}

// vectorize computes one L2-normalised TF-IDF vector.
func vectorize(tokens []string, vocab map[string]int, idf []float64) []float32 {
	vec := make([]float64, len(idf))
	for _, tok := range tokens {
		if idx, ok := vocab[tok]; ok {
			vec[idx]++
		}
	}

	norm := 0.0
	for idx, count := range vec {
		if count == 0 {
			continue
		}
		vec[idx] = count / float64(len(tokens)) * idf[idx]
		norm += vec[idx] * vec[idx]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *TFIDFEmbedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so",
		"such", "into", "about", "between", "through", "during", "before", "after", "above", "below",
		"out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"i", "me", "my", "we", "our", "you", "your", "need", "find", "most", "help", "task",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
