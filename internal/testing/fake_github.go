package testing

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeGitHub is an in-memory implementation of the repository contents API.
type FakeGitHub struct {
	Server *httptest.Server

	mu       sync.Mutex
	files    map[string]fakeFile
	failWith int           // status returned for every request when non-zero
	delay    time.Duration // applied before every response
	login    string
	puts     int
	commits  int
	// BeforePut runs (unlocked) before a PUT is applied; tests use it to simulate concurrent writers.
	BeforePut func(path string)
}

type fakeFile struct {
	content []byte
	sha     string
}

// NewFakeGitHub starts a fake server that is closed when the test ends.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{files: make(map[string]fakeFile), login: "octocat"}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API base URL.
func (f *FakeGitHub) URL() string { return f.Server.URL }

// SetFile stores content at path as if it had been committed.
func (f *FakeGitHub) SetFile(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = fakeFile{content: content, sha: blobSHA(content, f.commits)}
	f.commits++
}

// File returns the content at path.
func (f *FakeGitHub) File(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	return file.content, ok
}

// FailWith makes every request return status (0 restores normal behaviour).
func (f *FakeGitHub) FailWith(status int) {
	f.mu.Lock()
	f.failWith = status
	f.mu.Unlock()
}

// Delay makes every response wait d.
func (f *FakeGitHub) Delay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// Puts returns how many writes succeeded.
func (f *FakeGitHub) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func (f *FakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	failWith, delay := f.failWith, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failWith != 0 {
		writeJSON(w, failWith, map[string]string{"message": http.StatusText(failWith)})
		return
	}

	if r.URL.Path == "/user" {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "token ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Requires authentication"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"login": f.login})
		return
	}

	// /repos/{owner}/{repo}/contents/{path}
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 5)
	if len(parts) < 5 || parts[0] != "repos" || parts[3] != "contents" {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	path := parts[4]

	switch r.Method {
	case http.MethodGet:
		f.mu.Lock()
		file, ok := f.files[path]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"path":     path,
			"sha":      file.sha,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(file.content),
		})

	case http.MethodPut:
		var body struct {
			Message string `json:"message"`
			Content string `json:"content"`
			SHA     string `json:"sha"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		if f.BeforePut != nil {
			f.BeforePut(path)
		}
		content, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid base64"})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		current, exists := f.files[path]
		if exists && body.SHA != current.sha {
			writeJSON(w, http.StatusConflict, map[string]string{"message": path + " does not match " + body.SHA})
			return
		}
		if !exists && body.SHA != "" {
			writeJSON(w, http.StatusConflict, map[string]string{"message": path + " does not match " + body.SHA})
			return
		}
		sha := blobSHA(content, f.commits)
		f.commits++
		f.files[path] = fakeFile{content: content, sha: sha}
		f.puts++
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"content": map[string]string{"sha": sha},
			"commit":  map[string]string{"sha": "commit-" + sha[:8]},
		})

	case http.MethodDelete:
		var body struct {
			SHA string `json:"sha"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		current, exists := f.files[path]
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		if body.SHA != current.sha {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
			return
		}
		delete(f.files, path)
		writeJSON(w, http.StatusOK, map[string]interface{}{})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func blobSHA(content []byte, generation int) string {
	h := sha1.New()
	h.Write(content)
	h.Write([]byte{byte(generation)})
	return hex.EncodeToString(h.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
