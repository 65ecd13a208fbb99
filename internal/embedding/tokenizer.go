package embedding

import (
	"strings"
	"unicode"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsToken = 101
	sepToken = 102
	// vocabSize bounds hashed word IDs to the model's embedding table.
	vocabSize        = 30000
	defaultMaxTokens = 256
)

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (for testing or fallback).
type SimpleTokenizer struct{}

// Tokenize lays out [CLS] words... [SEP] padded to maxTokens. Words past the
// limit are dropped.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = defaultMaxTokens
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	ids := []int64{clsToken}
	for _, w := range SplitWords(text) {
		if len(ids) == maxTokens-1 {
			break
		}
		ids = append(ids, int64(HashString(w)%vocabSize))
	}
	ids = append(ids, sepToken)

	copy(inputIDs, ids)
	for i := range ids {
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords lowercases text and splits it on anything that is not a letter
// or digit, so "A41/B4100" yields "a41" and "b4100". Returns nil when text has
// no words.
func SplitWords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
