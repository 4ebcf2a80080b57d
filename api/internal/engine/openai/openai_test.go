package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, h http.HandlerFunc) *Engine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	e := New("sk-test", "gpt-4o-mini", "")
	e.BaseURL = srv.URL
	return e
}

func TestIdentify_ReturnsContentVerbatim(t *testing.T) {
	var got map[string]any
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"genus\\\":\\\"Rosa\\\"}\\n```" + `"}}]}`))
	})

	out, err := e.Identify(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "```json\n{\"genus\":\"Rosa\"}\n```", out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)["content"].([]any)
	img := user[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(img, "data:image/jpeg;base64,"))
}

func TestIdentify_HTTPError(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	_, err := e.Identify(context.Background(), []byte{1}, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestIdentify_Refusal(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot help"}}]}`))
	})
	_, err := e.Identify(context.Background(), []byte{1}, "image/png")
	assert.ErrorContains(t, err, "cannot help")
}

func TestIdentify_NoKey(t *testing.T) {
	_, err := New("", "m", "").Identify(context.Background(), []byte{1}, "image/png")
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestIdentify_ZeroValueEngineConcurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	t.Cleanup(srv.Close)

	e := &Engine{APIKey: "sk-test", Model: "m", BaseURL: srv.URL}
	assert.Same(t, defaultClient, e.client())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Identify(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Nil(t, e.httpc)
}
