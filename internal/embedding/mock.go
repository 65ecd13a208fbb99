package embedding

import (
	"context"
	"sync/atomic"

	"github.com/bicesterbug/bbug-planning-reporter/pkg/utils"
)

// MockBackend is a deterministic backend for tests. Each word is hashed into one
// dimension, so texts sharing words get similar vectors and identical texts get
// identical vectors.
type MockBackend struct {
	dimensions int
	calls      atomic.Int64
	inputs     atomic.Int64
	// Err, if set, is returned by every EmbedBatch call.
	Err error
}

// NewMockBackend returns a mock producing vectors of the given dimensions.
func NewMockBackend(dimensions int) *MockBackend {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockBackend{dimensions: dimensions}
}

// EmbedBatch embeds each text independently.
func (m *MockBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	m.inputs.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *MockBackend) vector(text string) []float32 {
	emb := make([]float32, m.dimensions)
	words := SplitWords(text)
	for _, w := range words {
		emb[uint(HashString(w))%uint(m.dimensions)]++
	}
	if len(words) == 0 {
		emb[uint(HashString(text))%uint(m.dimensions)] = 1
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the vector length.
func (m *MockBackend) Dimensions() int {
	return m.dimensions
}

// Close is a no-op.
func (m *MockBackend) Close() error {
	return nil
}

// Calls returns how many times EmbedBatch was invoked.
func (m *MockBackend) Calls() int64 {
	return m.calls.Load()
}

// Inputs returns how many texts have been embedded.
func (m *MockBackend) Inputs() int64 {
	return m.inputs.Load()
}
