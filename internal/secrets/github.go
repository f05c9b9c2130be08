package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/famledger/internal/clients/github"
)

// GitHubMirror keeps the encrypted envelope in a repository file.
type GitHubMirror struct {
	client *github.Client
	path   string
}

// NewGitHubMirror mirrors to path in the client's repository.
func NewGitHubMirror(client *github.Client, path string) *GitHubMirror {
	return &GitHubMirror{client: client, path: path}
}

// Push creates or updates the mirrored envelope.
func (g *GitHubMirror) Push(ctx context.Context, token string, envelope []byte) error {
	c := g.client.WithToken(token)
	sha, err := c.GetSHA(ctx, g.path)
	if err != nil {
		return fmt.Errorf("failed to look up mirrored secret: %w", err)
	}
	_, err = c.PutContent(ctx, g.path, github.PutRequest{
		Message: "Update encrypted token - " + time.Now().UTC().Format(time.RFC3339),
		Content: envelope,
		SHA:     sha,
	})
	return err
}

// Pull fetches the mirrored envelope. An empty token reads anonymously.
func (g *GitHubMirror) Pull(ctx context.Context, token string) ([]byte, error) {
	content, err := g.client.WithToken(token).GetContent(ctx, g.path)
	if err != nil {
		return nil, err
	}
	return content.Content, nil
}

// Remove deletes the mirrored envelope if it exists.
func (g *GitHubMirror) Remove(ctx context.Context, token string) error {
	c := g.client.WithToken(token)
	sha, err := c.GetSHA(ctx, g.path)
	if err != nil {
		return err
	}
	if sha == "" {
		return nil
	}
	return c.DeleteContent(ctx, g.path, sha, "Remove encrypted token")
}

// GitHubVerifier checks tokens with GET /user.
type GitHubVerifier struct {
	client *github.Client
}

// NewGitHubVerifier creates a verifier using client's base URL and timeout.
func NewGitHubVerifier(client *github.Client) *GitHubVerifier {
	return &GitHubVerifier{client: client}
}

// Verify returns the login of the account that owns token.
func (v *GitHubVerifier) Verify(ctx context.Context, token string) (string, error) {
	user, err := v.client.WithToken(token).CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return user.Login, nil
}
