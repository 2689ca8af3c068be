package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"taskagent/internal/browser"
	"taskagent/internal/logging"
	"taskagent/internal/perception"
	"taskagent/internal/tactile"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// download GETs rawURL and returns the body. Non-200 responses fail.
func (s *Set) download(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := s.deps.HTTP.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		return nil, Failf("request to %s failed: %v", rawURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, Failf("request to %s returned status %d", rawURL, resp.StatusCode())
	}
	body := resp.Body()
	if limit := s.cfg.HTTP.MaxBodyBytes; limit > 0 && int64(len(body)) > limit {
		return nil, Failf("response from %s exceeds %d bytes", rawURL, limit)
	}
	logging.Get(logging.CategoryHandlers).Debug("downloaded",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)))
	return body, nil
}

func (s *Set) fetchAPI(ctx context.Context, p perception.Bundle) (string, error) {
	body, err := s.download(ctx, p.Get(perception.FieldURL))
	if err != nil {
		return "", err
	}
	if err := s.writeFile(p.Get(perception.FieldDestination), body); err != nil {
		return "", err
	}
	return done(perception.IntentFetchAPI, "API data saved."), nil
}

func (s *Set) cloneRepo(ctx context.Context, p perception.Bundle) (string, error) {
	repoURL := p.Get(perception.FieldRepoURL)
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return "", Failf("invalid repository URL %q", repoURL)
	}
	name := strings.TrimSuffix(path.Base(u.Path), ".git")
	if name == "" || name == "." || name == "/" {
		return "", Failf("cannot derive a directory name from %q", repoURL)
	}

	dir, err := s.Resolve(filepath.Join("repos", name))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err == nil {
		return "", Failf("clone target %s already exists", dir)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return "", Failf("failed to create %s: %v", filepath.Dir(dir), err)
	}

	if _, err := s.run(ctx, tactile.Command{Binary: "git", Arguments: []string{"clone", "--depth", "1", repoURL, dir}}); err != nil {
		return "", err
	}

	message := p.GetOr(perception.FieldCommitMessage, "Automated commit")
	if err := os.WriteFile(filepath.Join(dir, "taskagent.txt"), []byte(message+"\n"), 0644); err != nil {
		return "", Failf("failed to write marker file: %v", err)
	}

	git := func(args ...string) error {
		full := append([]string{"-c", "user.name=taskagent", "-c", "user.email=taskagent@localhost"}, args...)
		_, err := s.run(ctx, tactile.Command{Binary: "git", Arguments: full, WorkingDirectory: dir})
		return err
	}
	if err := git("add", "."); err != nil {
		return "", err
	}
	if err := git("commit", "-m", message); err != nil {
		return "", err
	}
	return done(perception.IntentCloneRepo, "Repository cloned into %s and committed.", dir), nil
}

func (s *Set) scrapeWebsite(ctx context.Context, p perception.Bundle) (string, error) {
	target := p.Get(perception.FieldURL)

	page, err := s.deps.Renderer.Render(ctx, target)
	switch {
	case err == nil:
	case errors.Is(err, browser.ErrRenderingDisabled):
		body, derr := s.download(ctx, target)
		if derr != nil {
			return "", derr
		}
		page = string(body)
	default:
		return "", Fail(fmt.Errorf("failed to render %s: %w", target, err))
	}

	text, err := visibleText(page)
	if err != nil {
		return "", Failf("failed to parse %s: %v", target, err)
	}
	if err := s.writeFile(p.Get(perception.FieldDestination), []byte(text)); err != nil {
		return "", err
	}
	return done(perception.IntentScrapeWebsite, "Website scraped."), nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// visibleText returns the text content of an HTML document, one text run
// per line.
func visibleText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(lines, "\n"), nil
}
