package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"sitebuilder/pkg/faults"
)

func TestStatus(t *testing.T) {
	cause := errors.New("provider said no")
	tests := []struct {
		status int
		want   faults.Type
	}{
		{401, faults.TypeAuthentication},
		{403, faults.TypeAuthentication},
		{429, faults.TypeNetwork},
		{500, faults.TypeNetwork},
		{503, faults.TypeNetwork},
		{400, faults.TypeAPI},
		{404, faults.TypeAPI},
		{422, faults.TypeAPI},
	}
	for _, tt := range tests {
		err := Status("anthropic", tt.status, cause, `{"error":"x"}`)
		got, ok := faults.TypeOf(err)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "status %d", tt.status)
		assert.ErrorIs(t, err, cause)
	}
}

func TestTransport(t *testing.T) {
	assert.NoError(t, Transport("ollama", nil))
	assert.True(t, faults.Is(Transport("ollama", context.DeadlineExceeded), faults.TypeNetwork))
	assert.True(t, faults.Is(Transport("ollama", errors.New("dial tcp: connection refused")), faults.TypeNetwork))
	assert.True(t, faults.Is(Transport("openai", errors.New("invalid api key")), faults.TypeAuthentication))
}

func TestEmpty(t *testing.T) {
	assert.True(t, faults.Is(Empty("google"), faults.TypeMalformedResponse))
}
