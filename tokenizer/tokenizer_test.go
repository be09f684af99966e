package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator(t *testing.T) {
	var e Estimator
	assert.Equal(t, 0, e.Count(""))
	assert.Equal(t, 1, e.Count("abc"))
	assert.Equal(t, 3, e.Count("abcdefgh"))
	assert.Equal(t, 5, e.Count("żó"))
}

func TestEstimatorMonotonic(t *testing.T) {
	var e Estimator
	short := e.Count(strings.Repeat("word ", 10))
	long := e.Count(strings.Repeat("word ", 100))
	assert.Less(t, short, long)
}

func TestBPE(t *testing.T) {
	bpe, err := New(DefaultEncoding)
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}

	assert.Equal(t, 0, bpe.Count(""))
	assert.Equal(t, 2, bpe.Count("hello world"))

	marker := "<|start_header_id|>user<|end_header_id|>\n\nhi<|eot_id|>"
	require.NotPanics(t, func() { bpe.Count(marker) })
	assert.Greater(t, bpe.Count(marker), 5)
}

func TestNewWithFallback(t *testing.T) {
	counter := NewWithFallback("no_such_encoding")
	_, isEstimator := counter.(Estimator)
	assert.True(t, isEstimator, "unknown encodings should fall back to the estimator")
}
