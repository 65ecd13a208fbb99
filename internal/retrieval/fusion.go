package retrieval

import (
	"sort"

	"github.com/bicesterbug/bbug-planning-reporter/internal/keyword"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
)

// FusedResult holds a chunk with its fused keyword and semantic scores.
type FusedResult struct {
	models.SearchResult
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores scales raw keyword scores into [0,1] by the top score.
func NormalizeKeywordScores(results []keyword.Result) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ChunkID] = r.Score / maxScore
		} else {
			normalized[r.ChunkID] = 0
		}
	}
	return normalized
}

// Fuse merges keyword and semantic hits with weights, highest fused score first.
// Ties keep chunk ID order so output is deterministic.
func Fuse(keywordHits []keyword.Result, semanticHits []models.SearchResult, keywordWeight, semanticWeight float64) []FusedResult {
	keywordScores := NormalizeKeywordScores(keywordHits)
	byID := make(map[string]*FusedResult, len(keywordHits)+len(semanticHits))
	for _, h := range keywordHits {
		byID[h.ChunkID] = &FusedResult{
			SearchResult: models.SearchResult{ChunkID: h.ChunkID, Text: h.Text, Metadata: h.Metadata},
			KeywordScore: keywordScores[h.ChunkID],
		}
	}
	for _, h := range semanticHits {
		if r, ok := byID[h.ChunkID]; ok {
			r.SemanticScore = h.RelevanceScore
			continue
		}
		byID[h.ChunkID] = &FusedResult{
			SearchResult:  models.SearchResult{ChunkID: h.ChunkID, Text: h.Text, Metadata: h.Metadata},
			SemanticScore: h.RelevanceScore,
		}
	}

	results := make([]FusedResult, 0, len(byID))
	for _, r := range byID {
		r.RelevanceScore = keywordWeight*r.KeywordScore + semanticWeight*r.SemanticScore
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}
