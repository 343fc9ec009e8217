package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/genclient/internal/classify"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", "gpt-test", classify.Options{Temperature: 0.2, MaxTokens: 256},
		option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
}

func responseBody(text string) string {
	quoted, _ := json.Marshal(text)
	return fmt.Sprintf(`{"id":"resp_1","object":"response","created_at":1,"model":"gpt-test","status":"completed",`+
		`"output":[{"type":"message","id":"msg_1","role":"assistant","status":"completed",`+
		`"content":[{"type":"output_text","text":%s,"annotations":[]}]}]}`, quoted)
}

func TestGenerateReturnsText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, "hello", body["input"])
		assert.Equal(t, "be brief", body["instructions"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responseBody(`{"ok":true}`)))
	})

	text, err := client.Generate(context.Background(), "hello", "be brief")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
}

func TestGenerateClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   faults.Type
	}{
		{http.StatusUnauthorized, faults.TypeAuthentication},
		{http.StatusForbidden, faults.TypeAuthentication},
		{http.StatusBadRequest, faults.TypeAPI},
		{http.StatusNotFound, faults.TypeAPI},
		{http.StatusUnprocessableEntity, faults.TypeAPI},
		{http.StatusTooManyRequests, faults.TypeNetwork},
		{http.StatusInternalServerError, faults.TypeNetwork},
		{http.StatusServiceUnavailable, faults.TypeNetwork},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"rejected","type":"invalid_request_error"}}`))
			})
			_, err := client.Generate(context.Background(), "hello", "")
			require.Error(t, err)
			assert.True(t, faults.Is(err, tt.want), "status %d: %v", tt.status, err)
		})
	}
}

func TestGenerateEmptyResponseIsMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responseBody("  ")))
	})

	_, err := client.Generate(context.Background(), "hello", "")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.TypeMalformedResponse), "got %v", err)
}

func TestGenerateTransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/"
	srv.Close()

	client := New("test-key", "gpt-test", classify.Options{MaxTokens: 16},
		option.WithBaseURL(url), option.WithMaxRetries(0))
	_, err := client.Generate(context.Background(), "hello", "")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.TypeNetwork), "got %v", err)
}
