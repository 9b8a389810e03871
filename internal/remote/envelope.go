package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeEnvelope unmarshals raw into out, accepting either a bare value or an
// object envelope. The "data" key is tried first, then altKeys in order; an
// object with none of them is decoded as the value itself.
func DecodeEnvelope(raw []byte, out any, altKeys ...string) error {
	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		for _, key := range append([]string{"data"}, altKeys...) {
			value, ok := fields[key]
			if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				continue
			}
			if err := json.Unmarshal(value, out); err != nil {
				return fmt.Errorf("decode envelope %q: %w", key, err)
			}
			return nil
		}
	}

	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extractMessage pulls a human readable message out of an error body.
func extractMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
