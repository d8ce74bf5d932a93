package tokens

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	DefaultModelEncoding = "gpt-3.5-turbo"
	DefaultMaxTokens     = 4000
)

var ErrUnknownModel = errors.New("unknown tokenizer model")

// Counter - считает токены в строке
type Counter interface {
	Count(text string) (int, error)
}

type CounterFunc func(text string) (int, error)

func (f CounterFunc) Count(text string) (int, error) {
	return f(text)
}

// Tiktoken - Counter на основе BPE словаря модели
type Tiktoken struct {
	model string
	enc   *tiktoken.Tiktoken
}

var loaderOnce sync.Once

// NewTiktoken builds a counter for the encoding used by the given model name
// (for example "gpt-3.5-turbo" resolves to cl100k_base). Vocabularies are loaded
// from the embedded offline loader, so no network access is needed.
func NewTiktoken(model string) (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownModel, model, err)
	}
	return &Tiktoken{model: model, enc: enc}, nil
}

func (t *Tiktoken) Model() string {
	return t.model
}

// Count treats special-token text such as "<|endoftext|>" as ordinary text.
func (t *Tiktoken) Count(text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Truncate returns the longest prefix of text made of at most maxTokens tokens.
// A multi-byte character split by the token boundary is dropped.
func (t *Tiktoken) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return strings.ToValidUTF8(t.enc.Decode(ids[:maxTokens]), "")
}

var (
	defaultOnce    sync.Once
	defaultCounter *Tiktoken
	defaultErr     error
)

// Default returns a shared counter for DefaultModelEncoding.
func Default() (*Tiktoken, error) {
	defaultOnce.Do(func() {
		defaultCounter, defaultErr = NewTiktoken(DefaultModelEncoding)
	})
	return defaultCounter, defaultErr
}
