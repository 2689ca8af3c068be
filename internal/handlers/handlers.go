// Package handlers implements the automation behind every task intent.
// Each handler receives the extracted parameter bundle, confines every
// path it touches to the data root, and returns a short status message.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taskagent/internal/browser"
	"taskagent/internal/config"
	"taskagent/internal/dispatch"
	"taskagent/internal/logging"
	"taskagent/internal/oracle"
	"taskagent/internal/perception"
	"taskagent/internal/tactile"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrOutsideDataRoot is returned for a path that escapes the data root.
var ErrOutsideDataRoot = errors.New("path is outside the data root")

// Fail wraps err as a handler failure shown to the caller verbatim.
func Fail(err error) error {
	return &dispatch.HandlerError{Err: err}
}

// Failf formats a handler failure.
func Failf(format string, args ...any) error {
	return &dispatch.HandlerError{Err: fmt.Errorf(format, args...)}
}

// Deps are the collaborators handlers call out to. Nil fields are filled
// from the config by New.
type Deps struct {
	Oracle   oracle.Oracle
	Exec     tactile.Executor
	HTTP     *resty.Client
	Renderer browser.Renderer
}

// Set holds the handlers and their shared collaborators.
type Set struct {
	cfg  *config.Config
	root string
	deps Deps
}

// New builds the handler set for cfg.
func New(cfg *config.Config, deps Deps) (*Set, error) {
	root, err := filepath.Abs(cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid data root: %w", err)
	}

	if deps.Oracle == nil {
		deps.Oracle = oracle.Unconfigured{}
	}
	if deps.Exec == nil {
		deps.Exec = tactile.NewDirectExecutorWithConfig(tactile.ConfigFrom(cfg))
	}
	if deps.HTTP == nil {
		deps.HTTP = NewHTTPClient(cfg)
	}
	if deps.Renderer == nil {
		if cfg.Scraper.UseBrowser {
			deps.Renderer = browser.NewRodRenderer(browser.ConfigFrom(cfg))
		} else {
			deps.Renderer = browser.Disabled{}
		}
	}

	return &Set{cfg: cfg, root: filepath.Clean(root), deps: deps}, nil
}

// NewHTTPClient returns the resty client used for downloads and API calls.
func NewHTTPClient(cfg *config.Config) *resty.Client {
	return resty.New().
		SetTimeout(cfg.GetHTTPTimeout()).
		SetHeader("User-Agent", cfg.HTTP.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
}

// Close releases long-lived collaborators such as a launched browser.
func (s *Set) Close() error {
	return s.deps.Renderer.Close()
}

// Register binds every handler to its intent.
func (s *Set) Register(reg *dispatch.Registry) error {
	table := map[perception.TaskIntent]dispatch.HandlerFunc{
		perception.IntentRunDatagen:         s.runDatagen,
		perception.IntentFormatMarkdown:     s.formatMarkdown,
		perception.IntentCountWeekday:       s.countWeekday,
		perception.IntentSortContacts:       s.sortContacts,
		perception.IntentRecentLogs:         s.recentLogs,
		perception.IntentIndexDocs:          s.indexDocs,
		perception.IntentExtractEmailSender: s.extractEmailSender,
		perception.IntentExtractCardNumber:  s.extractCardNumber,
		perception.IntentSimilarComments:    s.similarComments,
		perception.IntentTicketSales:        s.ticketSales,
		perception.IntentFetchAPI:           s.fetchAPI,
		perception.IntentCloneRepo:          s.cloneRepo,
		perception.IntentRunSQLQuery:        s.runSQLQuery,
		perception.IntentScrapeWebsite:      s.scrapeWebsite,
		perception.IntentResizeImage:        s.resizeImage,
		perception.IntentTranscribeAudio:    s.transcribeAudio,
		perception.IntentMarkdownToHTML:     s.markdownToHTML,
		perception.IntentFilterCSV:          s.filterCSV,
	}
	for _, intent := range perception.AllIntents() {
		if err := reg.Register(intent, table[intent]); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry builds a handler set and a registry holding all of it.
func NewRegistry(cfg *config.Config, deps Deps) (*dispatch.Registry, *Set, error) {
	s, err := New(cfg, deps)
	if err != nil {
		return nil, nil, err
	}
	reg := dispatch.NewRegistry()
	if err := s.Register(reg); err != nil {
		return nil, nil, err
	}
	return reg, s, nil
}

// Resolve maps p onto the data root. Relative paths are taken relative to
// the root; absolute paths must already lie inside it.
func (s *Set) Resolve(p string) (string, error) {
	if p == "" {
		return "", Failf("empty path")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", Fail(fmt.Errorf("%w: %s", ErrOutsideDataRoot, p))
	}
	return p, nil
}

// checkOutput fails when the bundle's output file resolves to the same path
// as its source field, so a handler never overwrites what it reads.
func (s *Set) checkOutput(p perception.Bundle, source string) error {
	out := p.Get(perception.FieldOutputFile)
	if out == "" || p.Get(source) == "" {
		return nil
	}
	outPath, err := s.Resolve(out)
	if err != nil {
		return err
	}
	srcPath, err := s.Resolve(p.Get(source))
	if err != nil {
		return err
	}
	if outPath == srcPath {
		return Failf("output file %s is the same as the %s", outPath, strings.ReplaceAll(source, "_", " "))
	}
	return nil
}

func (s *Set) readFile(p string) ([]byte, error) {
	path, err := s.Resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Failf("file not found: %s", path)
		}
		return nil, Failf("failed to read %s: %v", path, err)
	}
	return data, nil
}

func (s *Set) writeFile(p string, data []byte) error {
	path, err := s.Resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Failf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Failf("failed to write %s: %v", path, err)
	}
	logging.Get(logging.CategoryHandlers).Debug("wrote file", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func done(intent perception.TaskIntent, format string, args ...any) string {
	return fmt.Sprintf("Task %s completed: %s", intent.Code(), fmt.Sprintf(format, args...))
}

func (s *Set) run(ctx context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
	res, err := s.deps.Exec.Execute(ctx, cmd)
	if err != nil {
		return nil, Fail(err)
	}
	if res.Killed {
		return res, Failf("%s %s", cmd.CommandString(), res.KillReason)
	}
	if res.ExitCode != 0 {
		return res, Failf("%s exited with status %d: %s", cmd.CommandString(), res.ExitCode, res.Tail(500))
	}
	return res, nil
}
