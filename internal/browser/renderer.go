// Package browser renders pages in headless Chromium for scraping sites
// that build their content client-side.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskagent/internal/config"
	"taskagent/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// ConfigFrom maps the scraper section of the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		DebuggerURL:       cfg.Scraper.ControlURL,
		Headless:          cfg.Scraper.Headless,
		NavigationTimeout: cfg.GetNavigationTimeout(),
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Renderer returns the serialized DOM of a page after it loads.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// RodRenderer drives Chromium through go-rod. The browser is started on
// first use and shared by later renders; each render gets its own
// incognito page.
type RodRenderer struct {
	cfg Config

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

// NewRodRenderer creates a renderer. No browser is launched yet.
func NewRodRenderer(cfg Config) *RodRenderer {
	return &RodRenderer{cfg: cfg}
}

// start connects to an existing Chrome or launches a new one.
func (r *RodRenderer) start(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return r.browser, nil
		}
		logging.Get(logging.CategoryBrowser).Warn("stale browser connection, reconnecting")
		_ = r.browser.Close()
		r.browser = nil
	}

	controlURL := r.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(r.cfg.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("no debugger url and failed to launch: %w", err)
		}
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	r.browser = b
	r.controlURL = controlURL
	logging.Get(logging.CategoryBrowser).Info("browser connected", zap.String("control_url", controlURL))
	return b, nil
}

// Render implements Renderer.
func (r *RodRenderer) Render(ctx context.Context, url string) (string, error) {
	b, err := r.start(ctx)
	if err != nil {
		return "", err
	}

	incognito, err := b.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             r.cfg.GetViewportWidth(),
		Height:            r.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		logging.Get(logging.CategoryBrowser).Debug("failed to set viewport", zap.Error(err))
	}

	p := page.Context(ctx).Timeout(r.cfg.GetNavigationTimeout())
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for load: %w", err)
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read DOM: %w", err)
	}
	logging.Get(logging.CategoryBrowser).Debug("rendered", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, nil
}

// ControlURL returns the WebSocket debugger URL, empty before first use.
func (r *RodRenderer) ControlURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controlURL
}

// Close shuts the browser down if one was started.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	r.controlURL = ""
	return err
}

// ErrRenderingDisabled is returned by Disabled.
var ErrRenderingDisabled = errors.New("browser rendering disabled")

// Disabled is the renderer used when scraper.use_browser is off.
type Disabled struct{}

func (Disabled) Render(context.Context, string) (string, error) { return "", ErrRenderingDisabled }
func (Disabled) Close() error                                   { return nil }
