package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kevinmichaelchen/star-lists/internal/models"
	"github.com/kevinmichaelchen/star-lists/internal/taxonomy"
)

const defaultTimeout = 60 * time.Second

// Client classifies repositories through an OpenAI-compatible chat endpoint.
type Client struct {
	client    *openai.Client
	model     string
	locale    taxonomy.Locale
	maxTokens int
}

// Option customizes the client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	locale     taxonomy.Locale
	maxTokens  int
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. It is the only bound on a hung
// call; the batch scheduler never aborts in-flight requests.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLocale sets the language canonical category names are offered in.
func WithLocale(l taxonomy.Locale) Option {
	return func(o *clientOptions) { o.locale = l }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// NewClient returns a Client for model at baseURL.
func NewClient(baseURL, apiKey, model string, opts ...Option) *Client {
	o := clientOptions{timeout: defaultTimeout, locale: taxonomy.LocaleEN, maxTokens: 400}
	for _, opt := range opts {
		opt(&o)
	}
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: o.timeout}
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	cfg.HTTPClient = &retryAfterRecorder{client: hc}
	return &Client{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		locale:    o.locale,
		maxTokens: o.maxTokens,
	}
}

// Classify asks the model where repo belongs, given the user's existing list
// names. It makes exactly one request and never retries; failures are a
// *RateLimitedError, *MalformedResponseError or *TransportError.
func (c *Client) Classify(ctx context.Context, repo models.Repository, existing []string) (models.Suggestion, error) {
	if strings.TrimSpace(repo.FullName) == "" {
		return models.Suggestion{}, errors.New("classify: repository full name required")
	}

	var retryAfter time.Duration
	callCtx := context.WithValue(ctx, retryAfterKey{}, &retryAfter)

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(c.locale)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(repo, existing)},
		},
		// No ResponseFormat: not every model supports json_object mode, so
		// the system prompt asks for bare JSON instead.
		Temperature: 0.3,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return models.Suggestion{}, fmt.Errorf("classifying %s: %w", repo.FullName, classifyError(err, retryAfter))
	}

	if len(resp.Choices) == 0 {
		return models.Suggestion{}, fmt.Errorf("classifying %s: %w", repo.FullName,
			&MalformedResponseError{Kind: InvalidJSON, Snippet: "<no choices>"})
	}

	s, err := decodeSuggestion(resp.Choices[0].Message.Content)
	if err != nil {
		return models.Suggestion{}, fmt.Errorf("classifying %s: %w", repo.FullName, err)
	}
	return s, nil
}

// classifyError sorts a go-openai error into the client's failure kinds.
func classifyError(err error, retryAfter time.Duration) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &RateLimitedError{RetryAfter: retryAfter}
		}
		return &TransportError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &RateLimitedError{RetryAfter: retryAfter}
		}
		var syntaxErr *json.SyntaxError
		if errors.As(reqErr.Err, &syntaxErr) {
			// Error page that is not JSON, typically HTML from a wrong URL.
			return &MalformedResponseError{Kind: NotJSON, Snippet: fmt.Sprintf("http %d", reqErr.HTTPStatusCode), Err: reqErr.Err}
		}
		return &TransportError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	// A 200 whose body is not a chat completion at all.
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &MalformedResponseError{Kind: NotJSON, Snippet: "<response body>", Err: err}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &MalformedResponseError{Kind: InvalidJSON, Snippet: "<response body>", Err: err}
	}

	return &TransportError{Err: err}
}

type retryAfterKey struct{}

// retryAfterRecorder stores the Retry-After header of a 429 into the slot
// carried by the request context. go-openai does not expose headers on
// error responses.
type retryAfterRecorder struct {
	client *http.Client
}

func (r *retryAfterRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if slot, ok := req.Context().Value(retryAfterKey{}).(*time.Duration); ok {
			if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
				*slot = d
			}
		}
	}
	return resp, nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds * float64(time.Second)), true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
