// Package fingerprint computes the content hashes used for change detection.
//
// A fingerprint is the hex MD5 of a canonical JSON encoding: map keys are
// sorted, HTML characters are left unescaped, and tag order is normalized.
// Two structurally equal payloads always produce the same fingerprint.
// The format is internal to this tool and is not meant to be shared with
// other implementations.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Template is one card template: the front and back format strings.
type Template struct {
	Front string `json:"Front"`
	Back  string `json:"Back"`
}

// Of hashes an arbitrary payload. Maps are encoded with sorted keys, so
// insertion order never affects the result.
func Of(payload any) (string, error) {
	data, err := json.MarshalWithOption(payload, json.DisableHTMLEscape())
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Note fingerprints a note's semantic content. The tag slice is copied
// before sorting; the caller's slice is left untouched.
func Note(deck string, tags []string, fields map[string]string) string {
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)

	if fields == nil {
		fields = map[string]string{}
	}

	// Only strings, slices and maps are encoded; this cannot fail.
	h, _ := Of(map[string]any{
		"deck":   deck,
		"tags":   sorted,
		"fields": fields,
	})
	return h
}

// Model fingerprints a note type's structure: its stylesheet with
// surrounding whitespace trimmed, and its templates keyed by name.
func Model(css string, templates map[string]Template) string {
	if templates == nil {
		templates = map[string]Template{}
	}
	h, _ := Of(map[string]any{
		"css":       strings.TrimSpace(css),
		"templates": templates,
	})
	return h
}
