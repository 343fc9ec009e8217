package genclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"sitebuilder/pkg/faults"
)

// Extract returns exactly one structured payload from generator output.
//
// A fenced block (```json, falling back to a bare ```) is tried first; if there is none, or it does
// not hold a JSON object or array, the whole trimmed text is tried. Anything else is a
// non-retryable faults.TypeMalformedResponse.
func Extract(text string) (json.RawMessage, error) {
	if block, ok := fencedBlock(text); ok {
		if payload, ok := structured(block); ok {
			return payload, nil
		}
	}

	if payload, ok := structured(text); ok {
		return payload, nil
	}

	return nil, faults.Malformed(nil, fmt.Sprintf("no JSON payload in generator output (%d chars): %s",
		len(text), preview(text, 120)))
}

// Decode extracts the payload from text and unmarshals it into v.
func Decode(text string, v any) error {
	payload, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return faults.Malformed(err, "payload does not match the expected shape")
	}
	return nil
}

// fencedBlock returns the body of the first ```json block, or of the first bare ``` block.
func fencedBlock(text string) (string, bool) {
	const fence = "```"

	start := strings.Index(text, fence+"json")
	if start == -1 {
		start = strings.Index(text, fence)
	}
	if start == -1 {
		return "", false
	}

	// Skip the opening fence line (which may carry a language tag).
	bodyStart := strings.IndexByte(text[start:], '\n')
	if bodyStart == -1 {
		return "", false
	}
	body := text[start+bodyStart+1:]

	end := strings.Index(body, fence)
	if end == -1 {
		return "", false
	}
	return body[:end], true
}

// structured reports whether s (trimmed) is a JSON object or array.
func structured(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
