// Package jsonx is the module's single JSON touchpoint. Tool payloads and
// LLM wire traffic dominate the hot path, so goccy/go-json backs the aliases;
// it is drop-in compatible with encoding/json and swapping it back means
// touching only this file.
package jsonx

import "github.com/goccy/go-json"

var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
)

// Aliased so callers never import the implementation directly.
type (
	RawMessage = json.RawMessage
	Number     = json.Number
)
