//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXBackend stub type when built without CGO (see onnx.go for the real implementation).
type ONNXBackend struct{}

// ONNXLoader returns a Loader that always fails: ONNX needs CGO.
func ONNXLoader(_ string, _, _ int) Loader {
	return func(context.Context) (Backend, error) {
		return nil, errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
	}
}

// NewONNXBackend returns an error when built without CGO.
func NewONNXBackend(_ string, _, _ int) (*ONNXBackend, error) {
	return nil, errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}
