package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecrew/ralph/internal/config"
)

func fakeProvider(t *testing.T, handler http.HandlerFunc) (*httptest.Server, config.Snapshot) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, config.Snapshot{Provider: config.ProviderLMStudio, LMStudioBase: srv.URL, Model: "test-model"}
}

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func jsonOKResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
	})
	return string(body)
}

func TestCompleteEnrichesDeveloperRoleAndReturnsUsage(t *testing.T) {
	var gotBody map[string]any
	srv, snap := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer local", r.Header.Get("Authorization"))
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(jsonOKResponse("ok")))
	})
	_ = srv

	c := New(snap, fastRetryConfig())
	resp, err := c.Complete(context.Background(), RoleDeveloper, "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)

	messages := gotBody["messages"].([]any)
	content := messages[0].(map[string]any)["content"].(string)
	assert.Contains(t, content, "do the thing")
	assert.Contains(t, content, "PROMISE_MET")
	assert.Equal(t, 0.1, gotBody["temperature"])
}

func TestCompleteRetriesOn503ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv, snap := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("503 service unavailable"))
			return
		}
		w.Write([]byte(jsonOKResponse("REVIEW_PASSED")))
	})
	_ = srv

	c := New(snap, fastRetryConfig())
	resp, err := c.Complete(context.Background(), RoleReviewer, "review this")
	require.NoError(t, err)
	assert.Equal(t, "REVIEW_PASSED", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteDoesNotRetryOn400(t *testing.T) {
	var calls atomic.Int32
	srv, snap := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("400 bad request"))
	})
	_ = srv

	c := New(snap, fastRetryConfig())
	_, err := c.Complete(context.Background(), RoleJSON, "give me json")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitBreakerOpensAfterSustainedFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Hour)
	assert.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 1, time.Millisecond)
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestIsRetriableErrorClassification(t *testing.T) {
	assert.True(t, isRetriableError(errString("provider returned 503: boom")))
	assert.True(t, isRetriableError(errString("rate limit exceeded")))
	assert.False(t, isRetriableError(errString("provider returned 400: bad request")))
	assert.False(t, isRetriableError(nil))
}

type errString string

func (e errString) Error() string { return string(e) }

func TestExtractFileBlocksParsesMultipleBlocks(t *testing.T) {
	response := "some preamble\n" +
		"### FILE: src/a.go\n```go\npackage a\n```\n" +
		"more text\n" +
		"### FILE: progress.txt\n```\nPROMISE_MET\n```\n"

	blocks := ExtractFileBlocks(response)
	require.Len(t, blocks, 2)
	assert.Equal(t, "src/a.go", blocks[0].Path)
	assert.Equal(t, "package a\n", blocks[0].Content)
	assert.Equal(t, "progress.txt", blocks[1].Path)
	assert.Equal(t, "PROMISE_MET\n", blocks[1].Content)
}

func TestApplyFileBlocksWritesUnderRoot(t *testing.T) {
	root := t.TempDir()
	response := "### FILE: nested/dir/out.txt\n```\nhello\n```\n"

	applied, err := ApplyFileBlocks(root, response)
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/dir/out.txt"}, applied)
}

func TestApplyFileBlocksRefusesEscapingPath(t *testing.T) {
	root := t.TempDir()
	response := "### FILE: ../../etc/passwd\n```\npwned\n```\n"

	applied, err := ApplyFileBlocks(root, response)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestExtractJSONDirectParse(t *testing.T) {
	raw, err := ExtractJSON(`  {"a": 1}  `)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestExtractJSONRecoversFromSurroundingProse(t *testing.T) {
	response := "Here is the plan:\n" + `{"stages": [{"name": "S"}]}` + "\nLet me know if you need changes."
	raw, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stages": [{"name": "S"}]}`, string(raw))
}

func TestExtractJSONRecoversArrayFromProse(t *testing.T) {
	response := "subtasks:\n" + `["a", "b", "c"]` + "\nthanks"
	raw, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, string(raw))
}

func TestExtractJSONSkipsOverEmbeddedBraceThenFindsValidClose(t *testing.T) {
	response := `{"note": "see {example} above", "ok": true} trailing garbage`
	raw, err := ExtractJSON(response)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["ok"])
}

func TestExtractJSONFailsWithPrefixOnGarbage(t *testing.T) {
	_, err := ExtractJSON("no json anywhere in this response")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no json anywhere")
}

func TestParseJSONDecodesIntoStruct(t *testing.T) {
	type subtask struct {
		Title string `json:"title"`
	}
	type plan struct {
		Subtasks []subtask `json:"subtasks"`
	}

	response := "Sure, here:\n" + `{"subtasks":[{"title":"a"},{"title":"b"}]}`
	out, err := ParseJSON[plan](response)
	require.NoError(t, err)
	require.Len(t, out.Subtasks, 2)
	assert.Equal(t, "a", out.Subtasks[0].Title)
}

func TestJSONExtractorIsIdempotent(t *testing.T) {
	response := "wrapper text " + `{"x": [1,2,3]}` + " trailing"
	first, err := ExtractJSON(response)
	require.NoError(t, err)
	second, err := ExtractJSON(string(first))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestFileBlockRoundTrip(t *testing.T) {
	original := map[string]string{
		"a.txt": "alpha\ncontent\n",
		"b.txt": "beta\n",
	}

	var b strings.Builder
	for _, path := range []string{"a.txt", "b.txt"} {
		b.WriteString("### FILE: " + path + "\n```\n" + original[path] + "```\n")
	}

	blocks := ExtractFileBlocks(b.String())
	require.Len(t, blocks, 2)
	got := map[string]string{}
	for _, blk := range blocks {
		got[blk.Path] = blk.Content
	}
	assert.Equal(t, original, got)
}
