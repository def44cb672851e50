package api

import (
	"encoding/json"
	"fmt"
)

// JSONCodec lets connect carry the plain Go request and response structs of
// this package. It replaces connect's protojson codec under the same name.
type JSONCodec struct{}

// Name implements connect.Codec
func (JSONCodec) Name() string {
	return "json"
}

// Marshal implements connect.Codec
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements connect.Codec
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}
