package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-key", "demo-model", WithTimeout(5*time.Second)), &calls
}

func testRepo() models.Repository {
	desc := "A fast HTTP proxy"
	return models.Repository{ID: "R_1", FullName: "acme/proxy", Description: &desc}
}

func TestClassifyParsesProseWrappedPayload(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		msgs := req["messages"].([]any)
		user := msgs[1].(map[string]any)["content"].(string)
		assert.Contains(t, user, "acme/proxy")
		assert.Contains(t, user, "Existing lists: Backend, Media")

		_ = json.NewEncoder(w).Encode(completion(
			"Sure! Here you go:\n{\"matched_list\": \"Backend\", \"confidence\": 0.9, \"create_new\": false, \"reason\": \"server\"}\nHope that helps.",
		))
	})

	s, err := client.Classify(context.Background(), testRepo(), []string{"Backend", "Media"})
	require.NoError(t, err)
	assert.Equal(t, "Backend", s.MatchedCategory)
	assert.InDelta(t, 0.9, s.Confidence, 1e-9)
	assert.False(t, s.ProposeNew)
	assert.Equal(t, "server", s.Rationale)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClassifyRepairsTruncatedPayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completion(
			"```json\n{\"matched_list\": null, \"confidence\": 0.7, \"create_new\": true, \"new_list_name\": \"proxy tools\", \"reason\": \"It is a proxy that",
		))
	})

	s, err := client.Classify(context.Background(), testRepo(), nil)
	require.NoError(t, err)
	assert.True(t, s.ProposeNew)
	assert.Equal(t, "proxy tools", s.NewCategoryName)
	assert.Empty(t, s.MatchedCategory)
	assert.Empty(t, s.Rationale)
}

func TestClassifyRateLimitedWithRetryAfter(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "slow down", "type": "rate_limit"},
		})
	})

	_, err := client.Classify(context.Background(), testRepo(), nil)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
	assert.EqualValues(t, 1, calls.Load(), "client must not retry on its own")
}

func TestClassifyRateLimitedWithoutHeader(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("too many requests"))
	})

	_, err := client.Classify(context.Background(), testRepo(), nil)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Zero(t, rl.RetryAfter)
}

func TestClassifyHTMLErrorPageIsNotJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><body>Bad Gateway</body></html>"))
	})

	_, err := client.Classify(context.Background(), testRepo(), nil)
	var mr *MalformedResponseError
	require.ErrorAs(t, err, &mr)
	assert.Equal(t, NotJSON, mr.Kind)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, "check the LLM endpoint URL", mr.Hint())
}

func TestClassifyHTMLWithOKStatusIsNotJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<!doctype html><title>Login</title>"))
	})

	_, err := client.Classify(context.Background(), testRepo(), nil)
	var mr *MalformedResponseError
	require.ErrorAs(t, err, &mr)
	assert.Equal(t, NotJSON, mr.Kind)
}

func TestClassifyUnrepairableContentIsInvalidJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completion(`{"confidence": "very high", "matched_list": "Backend"}`))
	})

	_, err := client.Classify(context.Background(), testRepo(), nil)
	var mr *MalformedResponseError
	require.ErrorAs(t, err, &mr)
	assert.Equal(t, InvalidJSON, mr.Kind)
	assert.Equal(t, "check the LLM model and prompt", mr.Hint())
}

func TestClassifyServerErrorIsTransport(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "boom", "type": "server_error"},
		})
	})

	_, err := client.Classify(context.Background(), testRepo(), nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
}

func TestClassifyConnectionFailureIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, "k", "m", WithTimeout(time.Second))
	_, err := client.Classify(context.Background(), testRepo(), nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
}

func TestClassifyRequiresFullName(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.Classify(context.Background(), models.Repository{}, nil)
	require.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestDecodeSuggestion(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.Suggestion
		kind    MalformedKind
		wantErr bool
	}{
		{
			name:    "plain",
			content: `{"matched_list":"AI","confidence":1.4,"create_new":false,"reason":" ok "}`,
			want:    models.Suggestion{MatchedCategory: "AI", Confidence: 1, Rationale: "ok"},
		},
		{
			name:    "missing trailing brace",
			content: `{"matched_list": "none", "create_new": true, "new_list_name": "DevOps", "confidence": 0.8`,
			want:    models.Suggestion{ProposeNew: true, NewCategoryName: "DevOps", Confidence: 0.8},
		},
		{
			name:    "dangling key",
			content: `{"create_new": true, "new_list_name": "Editor", "reason":`,
			want:    models.Suggestion{ProposeNew: true, NewCategoryName: "Editor"},
		},
		{
			name:    "trailing comma",
			content: `{"create_new": true, "new_list_name": "Editor",`,
			want:    models.Suggestion{ProposeNew: true, NewCategoryName: "Editor"},
		},
		{
			name:    "braces in leading prose",
			content: `Using the {schema} you gave, here it is: {"matched_list":"Backend","confidence":0.9,"create_new":false,"reason":"api"}`,
			want:    models.Suggestion{MatchedCategory: "Backend", Confidence: 0.9, Rationale: "api"},
		},
		{
			name:    "braces in leading prose with truncated object",
			content: `Per {format}: {"create_new": true, "new_list_name": "Editor",`,
			want:    models.Suggestion{ProposeNew: true, NewCategoryName: "Editor"},
		},
		{
			name:    "prose only",
			content: "I think this is a proxy.",
			kind:    NotJSON,
			wantErr: true,
		},
		{
			name:    "empty",
			content: "   ",
			kind:    NotJSON,
			wantErr: true,
		},
		{
			name:    "html",
			content: "<html>oops</html>",
			kind:    NotJSON,
			wantErr: true,
		},
		{
			name:    "cut before first field completes",
			content: `{"matched_list": "Back`,
			kind:    InvalidJSON,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSuggestion(tt.content)
			if tt.wantErr {
				var mr *MalformedResponseError
				require.True(t, errors.As(err, &mr), "got %v", err)
				assert.Equal(t, tt.kind, mr.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMalformedResponseErrorSkipsEmptySnippet(t *testing.T) {
	err := &MalformedResponseError{Kind: NotJSON, Err: errors.New("html")}
	assert.EqualError(t, err, "malformed response (not json): html")

	err = &MalformedResponseError{Kind: InvalidJSON, Snippet: "{\"a\""}
	assert.EqualError(t, err, `malformed response (invalid json): {"a"`)
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("120")
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, d)

	d, ok = parseRetryAfter("1.5")
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)
	_, ok = parseRetryAfter("-3")
	assert.False(t, ok)
	_, ok = parseRetryAfter("soon")
	assert.False(t, ok)

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d, ok = parseRetryAfter(future)
	assert.True(t, ok)
	assert.InDelta(t, float64(30*time.Second), float64(d), float64(2*time.Second))
}

func TestUserPromptWithoutLists(t *testing.T) {
	p := userPrompt(models.Repository{FullName: "a/b", Topics: []string{"go", "cli"}}, nil)
	assert.True(t, strings.HasSuffix(p, "Existing lists: (none yet)"))
	assert.Contains(t, p, "Topics: go, cli")
}
