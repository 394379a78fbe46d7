package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoJSON is the fallback reason when the text holds no JSON document.
var ErrNoJSON = errors.New("no JSON found in response")

// FallbackReason explains why ParseStructured returned its fallback.
type FallbackReason struct {
	Err error
}

func (r *FallbackReason) Error() string {
	return "using fallback: " + r.Err.Error()
}

func (r *FallbackReason) Unwrap() error {
	return r.Err
}

// ParseStructured extracts a JSON document from text with extract
// (llm.ExtractJSON or llm.ExtractJSONArray), decodes it into T and checks
// it with valid. Any failure returns fallback together with the reason;
// a nil reason means the parsed value is used.
func ParseStructured[T any](text string, extract func(string) string, valid func(T) error, fallback T) (T, *FallbackReason) {
	raw := extract(text)
	if raw == "" {
		return fallback, &FallbackReason{Err: ErrNoJSON}
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fallback, &FallbackReason{Err: fmt.Errorf("decode: %w", err)}
	}
	if valid != nil {
		if err := valid(v); err != nil {
			return fallback, &FallbackReason{Err: err}
		}
	}
	return v, nil
}
