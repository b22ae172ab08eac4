package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-systems/vigil/audit"
)

func TestSanitizeStringPatterns(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "password assignment",
			input: "login with password=hunter2 failed",
			want:  "login with password=" + RedactedMarker + " failed",
		},
		{
			name:  "password colon form",
			input: `{"password": "hunter2"}`,
			want:  `{"password=` + RedactedMarker + `"}`,
		},
		{
			name:  "credit card",
			input: "card 4111 1111 1111 1111 declined",
			want:  "card ****-****-****-XXXX declined",
		},
		{
			name:  "credit card dashed",
			input: "4111-1111-1111-1111",
			want:  "****-****-****-XXXX",
		},
		{
			name:  "ssn",
			input: "ssn 123-45-6789 on file",
			want:  "ssn ***-**-XXXX on file",
		},
		{
			name:  "api key",
			input: "api_key=xk_live_abcdef1234567890abcdef",
			want:  "api_key=" + RedactedMarker,
		},
		{
			name:  "token",
			input: "token: abcdefghijklmnopqrstuvwxyz123456",
			want:  "token=" + RedactedMarker,
		},
		{
			name:  "email",
			input: "notify alice@example.com please",
			want:  "notify " + EmailRedactedMarker + " please",
		},
		{
			name:  "clean text untouched",
			input: "SELECT id FROM users WHERE active = true",
			want:  "SELECT id FROM users WHERE active = true",
		},
		{
			name:  "short token value kept",
			input: "token=abc123",
			want:  "token=abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SanitizeString(tt.input))
		})
	}
}

func TestSanitizeMapSensitiveKeys(t *testing.T) {
	s := New()

	got := s.SanitizeMap(map[string]any{
		"username":      "alice",
		"password":      "hunter2",
		"user_token":    "abc",
		"API_KEY":       "xyz",
		"Authorization": "Bearer something",
		"count":         5,
	})

	assert.Equal(t, "alice", got["username"])
	assert.Equal(t, RedactedMarker, got["password"])
	assert.Equal(t, RedactedMarker, got["user_token"])
	assert.Equal(t, RedactedMarker, got["API_KEY"])
	assert.Equal(t, RedactedMarker, got["Authorization"])
	assert.Equal(t, 5, got["count"])
}

func TestSanitizeMapNested(t *testing.T) {
	s := New()

	got := s.SanitizeMap(map[string]any{
		"request": map[string]any{
			"password": "deep-secret",
			"emails":   []any{"bob@example.com", "plain text"},
		},
	})

	request := got["request"].(map[string]any)
	assert.Equal(t, RedactedMarker, request["password"])

	emails := request["emails"].([]any)
	assert.Equal(t, EmailRedactedMarker, emails[0])
	assert.Equal(t, "plain text", emails[1])
}

func TestSanitizeMapDepthBound(t *testing.T) {
	s := New(WithMaxDepth(3))

	deep := map[string]any{}
	cursor := deep
	for i := 0; i < 10; i++ {
		next := map[string]any{}
		cursor["nested"] = next
		cursor = next
	}

	got := s.SanitizeMap(deep)

	var sawMarker bool
	node := any(got)
	for i := 0; i < 12; i++ {
		m, ok := node.(map[string]any)
		if !ok {
			break
		}
		if v, ok := m["_truncated"]; ok {
			assert.Equal(t, DepthExceededMarker, v)
			sawMarker = true
			break
		}
		node = m["nested"]
	}
	assert.True(t, sawMarker, "expected depth marker in nested tree")
}

func TestSanitizeEvent(t *testing.T) {
	s := New()

	event := audit.NewEvent()
	event.Action.Type = "READ"
	event.Action.Category = "DATABASE"
	event.Action.Operation = "select_users"
	event.Action.Parameters = map[string]any{
		"password": "hunter2",
		"query":    "email = 'carol@example.com'",
	}
	event.Actor = &audit.ActorContext{Email: "dave@example.com"}
	event.Custom = map[string]any{"secret": "value"}
	event.Metadata = map[string]any{"note": "password=abc"}
	event.Error = &audit.ErrorInfo{
		Occurred:   true,
		Message:    "failed for eve@example.com",
		StackTrace: "at login password=oops",
	}

	got := s.SanitizeEvent(event)
	require.Same(t, event, got)

	assert.Equal(t, RedactedMarker, got.Action.Parameters["password"])
	assert.Contains(t, got.Action.Parameters["query"], EmailRedactedMarker)
	assert.Equal(t, EmailRedactedMarker, got.Actor.Email)
	assert.Equal(t, RedactedMarker, got.Custom["secret"])
	assert.Contains(t, got.Metadata["note"], RedactedMarker)
	assert.Contains(t, got.Error.Message, EmailRedactedMarker)
	assert.Contains(t, got.Error.StackTrace, RedactedMarker)
}

func TestSanitizeEventNil(t *testing.T) {
	assert.Nil(t, New().SanitizeEvent(nil))
}

func TestAddRule(t *testing.T) {
	t.Run("custom rule applied", func(t *testing.T) {
		s := New()
		base := s.Rules()
		require.NoError(t, s.AddRule(`\bACCT-\d{8}\b`, "ACCT-XXXXXXXX", "account_number"))
		assert.Equal(t, base+1, s.Rules())
		assert.Equal(t, "ref ACCT-XXXXXXXX ok", s.SanitizeString("ref ACCT-12345678 ok"))
	})

	t.Run("invalid pattern rejected", func(t *testing.T) {
		s := New()
		err := s.AddRule(`[unclosed`, "x", "bad")
		var perr *audit.ProcessingError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "sanitize", perr.Stage)
	})

	t.Run("empty pattern rejected", func(t *testing.T) {
		err := New().AddRule("", "x", "empty")
		assert.Error(t, err)
	})
}

func TestSanitizeMapNonStringValuesPassThrough(t *testing.T) {
	s := New()
	got := s.SanitizeMap(map[string]any{
		"count":   7,
		"ratio":   0.5,
		"enabled": true,
		"null":    nil,
	})
	assert.Equal(t, 7, got["count"])
	assert.Equal(t, 0.5, got["ratio"])
	assert.Equal(t, true, got["enabled"])
	assert.Nil(t, got["null"])
}
