// Package logging provides categorized zap loggers for taskagent.
// The CLI builds the root zap.Logger and hands it to Initialize; every
// package then asks for a child logger by category. Until Initialize is
// called all loggers are no-ops, so library code and tests stay silent.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryDispatch Category = "dispatch" // Dispatch pipeline and stage transitions
	CategoryClassify Category = "classify" // Rule evaluation
	CategoryExtract  Category = "extract"  // Parameter extraction
	CategoryHandlers Category = "handlers" // Handler execution
	CategoryOracle   Category = "oracle"   // Text/image oracle calls
	CategoryStore    Category = "store"    // SQLite access
	CategoryBrowser  Category = "browser"  // Browser-rendered scraping
	CategoryExec     Category = "exec"     // Subprocess execution
	CategoryInbox    Category = "inbox"    // Inbox directory watcher
	CategoryAudit    Category = "audit"    // Per-request audit trail
)

// AllCategories lists every known category in display order.
var AllCategories = []Category{
	CategoryBoot,
	CategoryDispatch,
	CategoryClassify,
	CategoryExtract,
	CategoryHandlers,
	CategoryOracle,
	CategoryStore,
	CategoryBrowser,
	CategoryExec,
	CategoryInbox,
	CategoryAudit,
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*zap.Logger)
)

// Initialize installs the root logger and the per-category toggles.
// A category missing from the map is enabled.
func Initialize(l *zap.Logger, cats map[string]bool) {
	if l == nil {
		l = zap.NewNop()
	}

	mu.Lock()
	defer mu.Unlock()

	root = l
	categories = make(map[string]bool, len(cats))
	for k, v := range cats {
		categories[k] = v
	}
	loggers = make(map[Category]*zap.Logger)
}

// Reset restores the no-op state.
func Reset() {
	Initialize(nil, nil)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return isEnabledLocked(category)
}

func isEnabledLocked(category Category) bool {
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	var l *zap.Logger
	if isEnabledLocked(category) {
		l = root.Named(string(category))
	} else {
		l = zap.NewNop()
	}
	loggers[category] = l
	return l
}

// Root returns the logger passed to Initialize.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}
