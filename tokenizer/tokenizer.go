// Package tokenizer counts model tokens for prompt budgeting.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"abbas/config"
	"abbas/model"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// allSpecial lets chat-protocol markers through the encoder as ordinary text.
var allSpecial = []string{"all"}

// BPE counts tokens with a tiktoken encoding.
type BPE struct {
	enc *tiktoken.Tiktoken
}

// New loads the named encoding.
func New(encoding string) (*BPE, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &BPE{enc: enc}, nil
}

func (b *BPE) Count(text string) int {
	return len(b.enc.Encode(text, allSpecial, nil))
}

// Estimator approximates token counts when no encoding is available.
// ASCII text averages about four characters per token, other scripts
// closer to two tokens per character.
type Estimator struct{}

func (Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	ascii, nonASCII := 0, 0
	for _, r := range text {
		if r <= 127 {
			ascii++
		} else {
			nonASCII++
		}
	}
	return ascii/4 + nonASCII*2 + 1
}

var fallbackOnce sync.Once

// NewWithFallback loads the named encoding, falling back to Estimator when
// the encoding cannot be loaded (for example when offline).
func NewWithFallback(encoding string) model.Tokenizer {
	bpe, err := New(encoding)
	if err == nil {
		return bpe
	}
	fallbackOnce.Do(func() {
		if config.Debug && config.DebugLog != nil {
			config.DebugLog.Printf("[Tokenizer] Token counting will use estimates: %v", err)
		}
	})
	return Estimator{}
}
