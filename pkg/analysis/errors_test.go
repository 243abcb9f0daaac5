package analysis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		scope Scope
		want  string
	}{
		{"rejected video", rejected(500, "model crashed"), ScopeVideo, "Server Error: 500 - model crashed"},
		{"rejected without message", rejected(502, ""), ScopeVideo, "Server Error: 502 - Unknown error"},
		{"rejected live", rejected(500, "boom"), ScopeLive, "Live analysis error. Server Error: 500 - boom"},
		{"no response video", noResponse(errors.New("dial tcp")), ScopeVideo, "No response from backend for video analysis. Is the backend server running?"},
		{"no response live", noResponse(errors.New("timeout")), ScopeLive, "No response from backend for live analysis. Is the backend server running?"},
		{"client error", clientError("failed to create request", errors.New("bad url")), ScopeVideo, "Request Error for video analysis: failed to create request: bad url"},
		{"wrapped", fmt.Errorf("tick 4: %w", noResponse(nil)), ScopeLive, "No response from backend for live analysis. Is the backend server running?"},
		{"foreign video", errors.New("???"), ScopeVideo, "An unexpected error occurred during video analysis."},
		{"foreign live", errors.New("???"), ScopeLive, "Live analysis error. Check backend console."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.err, tt.scope))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := noResponse(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "no response")
}
