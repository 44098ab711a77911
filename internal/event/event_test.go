package event

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherFansOutAndFiltersDecline(t *testing.T) {
	var mu sync.Mutex
	var got []Type

	accept := &CallbackBroadcaster{
		Fn: func(ctx context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, e.Type)
			return nil
		},
	}
	decline := &CallbackBroadcaster{
		Accept: func(e Event) bool { return false },
		Fn: func(ctx context.Context, e Event) error {
			t.Fatal("declined broadcaster must not receive events")
			return nil
		},
	}

	d := NewDispatcher(nil, accept, decline)
	d.Dispatch(context.Background(), Event{Type: AgentStarted})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
}

func TestBroadcasterFailureDoesNotPanic(t *testing.T) {
	failing := &CallbackBroadcaster{
		Fn: func(ctx context.Context, e Event) error {
			return assert.AnError
		},
	}
	d := NewDispatcher(nil, failing)
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Event{Type: ToolFailed})
		time.Sleep(10 * time.Millisecond)
	})
}

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	s := NewSanitizer()
	e := Event{Fields: map[string]any{"api_key": "sk-123", "name": "ok"}}
	out := s.Sanitize(e)
	assert.Equal(t, "[REDACTED]", out.Fields["api_key"])
	assert.Equal(t, "ok", out.Fields["name"])
}

func TestSanitizeTruncatesPreview(t *testing.T) {
	s := NewSanitizer()
	long := strings.Repeat("a", 150)
	e := Event{Fields: map[string]any{"preview": long}}
	out := s.Sanitize(e)
	assert.True(t, strings.HasSuffix(out.Fields["preview"].(string), "..."))
	assert.Len(t, out.Fields["preview"].(string), 103)
}

func TestSanitizeRedactsTextPatterns(t *testing.T) {
	s := NewSanitizer()
	e := Event{Fields: map[string]any{"preview": "contact me at a@b.com"}}
	out := s.Sanitize(e)
	assert.Contains(t, out.Fields["preview"], "[EMAIL]")
}

func TestSanitizeLeavesNonSensitiveStructureIntact(t *testing.T) {
	s := NewSanitizer()
	e := Event{Fields: map[string]any{"count": 3, "nested": map[string]any{"ok": "fine"}}}
	out := s.Sanitize(e)
	assert.Equal(t, 3, out.Fields["count"])
	assert.Equal(t, "fine", out.Fields["nested"].(map[string]any)["ok"])
}
