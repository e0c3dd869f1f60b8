package cache

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// Encode marshals v as JSON and snappy-compresses the result.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode reverses Encode into v.
func Decode(data []byte, v any) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("decompress cache value: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode cache value: %w", err)
	}
	return nil
}
