package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec validates and renders the structured configuration format.
// It exists to let the validator and recovery manager distinguish
// "missing" from "corrupted" from "valid" without owning a format.
type Codec interface {
	// Validate returns an error when payload is not well-formed.
	Validate(payload string) error
	// Marshal renders v as a payload that Validate accepts.
	Marshal(v any) (string, error)
}

// JSON is the codec for JSON configuration files.
type JSON struct{}

func (JSON) Validate(payload string) error {
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not well-formed JSON")
	}
	return nil
}

func (JSON) Marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}
	return buf.String(), nil
}
