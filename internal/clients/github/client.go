// Package github is a small client for the GitHub repository contents API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var (
	// ErrNotFound is returned when the file (or repository) does not exist.
	ErrNotFound = errors.New("github: not found")
	// ErrConflict is returned when the supplied sha no longer matches the remote file.
	ErrConflict = errors.New("github: sha conflict")
	// ErrUnauthorized is returned for 401/403 responses.
	ErrUnauthorized = errors.New("github: unauthorized")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(e.Message), "does not match") || strings.Contains(e.Message, "sha") {
			return ErrConflict
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Owner   string
	Repo    string
	Branch  string
	Timeout time.Duration
}

// Client talks to one repository on one branch.
type Client struct {
	baseURL string
	owner   string
	repo    string
	branch  string
	timeout time.Duration
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates an unauthenticated client. Use WithToken to authenticate.
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.github.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		owner:   opts.Owner,
		repo:    opts.Repo,
		branch:  opts.Branch,
		timeout: opts.Timeout,
		client:  &http.Client{Timeout: opts.Timeout},
		log:     log.With().Str("client", "github").Logger(),
	}
}

// WithToken returns a copy of the client that authenticates every request with token.
// An empty token yields an anonymous client.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	if token == "" {
		clone.client = &http.Client{Timeout: c.timeout}
		return &clone
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = c.timeout
	clone.client = httpClient
	return &clone
}

// Repository returns owner/repo.
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// Branch returns the branch all reads and writes target.
func (c *Client) Branch() string {
	return c.branch
}

// Content is a decoded file from the repository.
type Content struct {
	Path    string
	SHA     string
	Content []byte
}

type contentResponse struct {
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

// GetContent fetches and decodes a file. A missing file returns ErrNotFound.
func (c *Client) GetContent(ctx context.Context, path string) (*Content, error) {
	endpoint := c.contentsURL(path) + "?ref=" + url.QueryEscape(c.branch)

	var resp contentResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	var data []byte
	switch resp.Encoding {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("github: failed to decode %s: %w", path, err)
		}
		data = decoded
	case "none", "":
		// Files above 1MB come back without inline content
		raw, err := c.download(ctx, resp.DownloadURL)
		if err != nil {
			return nil, err
		}
		data = raw
	default:
		return nil, fmt.Errorf("github: unsupported encoding %q for %s", resp.Encoding, path)
	}

	return &Content{Path: resp.Path, SHA: resp.SHA, Content: data}, nil
}

// GetSHA returns the blob sha of path, or "" when the file does not exist yet.
func (c *Client) GetSHA(ctx context.Context, path string) (string, error) {
	content, err := c.GetContent(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return content.SHA, nil
}

// PutRequest describes a create or update of a file.
type PutRequest struct {
	Message string
	Content []byte
	SHA     string // empty creates the file
}

// PutResult carries the new blob and commit identifiers.
type PutResult struct {
	SHA       string
	CommitSHA string
}

// PutContent creates or updates a file. A stale SHA returns ErrConflict.
func (c *Client) PutContent(ctx context.Context, path string, req PutRequest) (*PutResult, error) {
	body := map[string]string{
		"message": req.Message,
		"content": base64.StdEncoding.EncodeToString(req.Content),
		"branch":  c.branch,
	}
	if req.SHA != "" {
		body["sha"] = req.SHA
	}

	var resp struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.do(ctx, http.MethodPut, c.contentsURL(path), body, &resp); err != nil {
		return nil, err
	}

	c.log.Debug().Str("path", path).Str("commit", resp.Commit.SHA).Msg("Wrote remote file")
	return &PutResult{SHA: resp.Content.SHA, CommitSHA: resp.Commit.SHA}, nil
}

// DeleteContent removes a file at the given sha.
func (c *Client) DeleteContent(ctx context.Context, path, sha, message string) error {
	body := map[string]string{
		"message": message,
		"sha":     sha,
		"branch":  c.branch,
	}
	return c.do(ctx, http.MethodDelete, c.contentsURL(path), body, nil)
}

// User is the authenticated account.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// CurrentUser returns the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segments, "/"))
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("github: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "famledger")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("github: file has no inline content and no download url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("github: failed to build download request: %w", err)
	}
	req.Header.Set("User-Agent", "famledger")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = strings.TrimSpace(string(raw))
	}
	return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
}
