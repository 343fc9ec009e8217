package genclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/faults"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "json fence",
			text: "Sure thing.\n```json\n{\"a\": 1}\n```\nAnything else?",
			want: `{"a": 1}`,
		},
		{
			name: "bare fence",
			text: "```\n[1, 2, 3]\n```",
			want: `[1, 2, 3]`,
		},
		{
			name: "json fence preferred over earlier bare fence",
			text: "```\nnot json\n```\n```json\n{\"b\": true}\n```",
			want: `{"b": true}`,
		},
		{
			name: "whole trimmed text",
			text: "  \n {\"c\": \"x\"} \n",
			want: `{"c": "x"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Extract(tt.text)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(payload))
		})
	}
}

func TestExtractMalformed(t *testing.T) {
	for _, text := range []string{
		"",
		"I could not do that.",
		"```json\n{broken\n```",
		"42",
		`"just a string"`,
	} {
		_, err := Extract(text)
		require.Error(t, err, "input %q", text)
		assert.True(t, faults.Is(err, faults.TypeMalformedResponse))
		assert.False(t, faults.IsRetryable(err))
	}
}

func TestExtractRoundTrip(t *testing.T) {
	text := "```json\n{\"pages\":[{\"slug\":\"home\",\"sections\":[\"hero\"]}],\"n\":1.5}\n```"

	payload, err := Extract(text)
	require.NoError(t, err)

	var first any
	require.NoError(t, json.Unmarshal(payload, &first))

	reserialized, err := json.Marshal(first)
	require.NoError(t, err)

	again, err := Extract(string(reserialized))
	require.NoError(t, err)

	var second any
	require.NoError(t, json.Unmarshal(again, &second))
	assert.Equal(t, first, second)
}

func TestDecode(t *testing.T) {
	var out struct {
		Confidence float64 `json:"confidence"`
	}
	require.NoError(t, Decode("```json\n{\"confidence\": 0.9}\n```", &out))
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)

	var wrong struct {
		Confidence string `json:"confidence"`
	}
	err := Decode(`{"confidence": 0.9}`, &wrong)
	assert.True(t, faults.Is(err, faults.TypeMalformedResponse))
}
