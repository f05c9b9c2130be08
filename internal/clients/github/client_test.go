package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{
		BaseURL: server.URL,
		Owner:   "family",
		Repo:    "ledger",
		Branch:  "main",
		Timeout: 2 * time.Second,
	}, zerolog.Nop())
}

func TestGetContent_DecodesBase64(t *testing.T) {
	body := []byte(`{"records":[]}`)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/family/ledger/contents/data/data.json", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		assert.Equal(t, "token secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))

		encoded := base64.StdEncoding.EncodeToString(body)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":     "data/data.json",
			"sha":      "abc123",
			"encoding": "base64",
			"content":  encoded[:4] + "\n" + encoded[4:],
		})
	}).WithToken("secret-token")

	content, err := client.GetContent(context.Background(), "data/data.json")
	require.NoError(t, err)
	assert.Equal(t, "abc123", content.SHA)
	assert.Equal(t, body, content.Content)
}

func TestGetContent_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	_, err := client.GetContent(context.Background(), "data/data.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	sha, err := client.GetSHA(context.Background(), "data/data.json")
	require.NoError(t, err)
	assert.Empty(t, sha)
}

func TestGetContent_LargeFileUsesDownloadURL(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/raw/data.json" {
			_, _ = w.Write([]byte(`[1,2,3]`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sha": "big", "encoding": "none", "content": "", "download_url": serverURL + "/raw/data.json",
		})
	}))
	defer server.Close()
	serverURL = server.URL

	client := NewClient(Options{BaseURL: server.URL, Owner: "o", Repo: "r"}, zerolog.Nop())
	content, err := client.GetContent(context.Background(), "data.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2,3]`), content.Content)
}

func TestPutContent_SendsShaAndBranch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "old-sha", body["sha"])
		assert.Equal(t, "main", body["branch"])
		assert.Equal(t, "update", body["message"])
		decoded, err := base64.StdEncoding.DecodeString(body["content"])
		require.NoError(t, err)
		assert.Equal(t, "hello", string(decoded))

		_, _ = w.Write([]byte(`{"content":{"sha":"new-sha"},"commit":{"sha":"c1"}}`))
	})

	res, err := client.PutContent(context.Background(), "data.json", PutRequest{
		Message: "update", Content: []byte("hello"), SHA: "old-sha",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-sha", res.SHA)
	assert.Equal(t, "c1", res.CommitSHA)
}

func TestPutContent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    error
	}{
		{"conflict", http.StatusConflict, "data.json does not match abc", ErrConflict},
		{"sha mismatch", http.StatusUnprocessableEntity, "data.json does not match abc", ErrConflict},
		{"unauthorized", http.StatusUnauthorized, "Bad credentials", ErrUnauthorized},
		{"forbidden", http.StatusForbidden, "Resource not accessible", ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": tt.message})
			})
			_, err := client.PutContent(context.Background(), "data.json", PutRequest{Content: []byte("x")})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestServerErrorIsNotSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := client.GetContent(context.Background(), "data.json")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestCurrentUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		_, _ = w.Write([]byte(`{"login":"octocat","name":"Mona"}`))
	}).WithToken("t")

	user, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octocat", user.Login)
}

func TestDeleteContent(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sha1", body["sha"])
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.DeleteContent(context.Background(), "secrets/token.enc", "sha1", "remove"))
	assert.True(t, called)
}

func TestTimeoutIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Owner: "o", Repo: "r", Timeout: 50 * time.Millisecond}, zerolog.Nop())
	_, err := client.GetContent(context.Background(), "data.json")
	assert.Error(t, err)
}
