package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter counts prompt tokens with tiktoken, falling back to a
// chars/4 estimate when the encoding cannot be initialized (tiktoken may
// need to fetch encoding data on first use).
type tokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

func newTokenCounter(model string) *tokenCounter {
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = "cl100k_base"
	}
	return &tokenCounter{encoding: encoding}
}

func (t *tokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// count returns the token count for text, or an estimate when tiktoken is
// unavailable.
func (t *tokenCounter) count(text string) int {
	if err := t.init(); err != nil {
		return len(text) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}
