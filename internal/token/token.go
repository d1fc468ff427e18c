// Package token encodes the difficulty-to-share-token map that rides on quiz
// routes as an opaque path segment.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeMap packs a difficulty->token map into a URL-safe route segment.
func EncodeMap(tokens map[string]string) (string, error) {
	data, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("encode token map: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeMap unpacks a route segment produced by EncodeMap. A corrupted
// segment yields an empty map alongside the error, so callers can log and
// fall back to the token-less route variant.
func DecodeMap(segment string) (map[string]string, error) {
	data, err := base64.URLEncoding.DecodeString(segment)
	if err != nil {
		return map[string]string{}, fmt.Errorf("decode token segment: %w", err)
	}
	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return map[string]string{}, fmt.Errorf("decode token map: %w", err)
	}
	if tokens == nil {
		tokens = map[string]string{}
	}
	return tokens, nil
}
