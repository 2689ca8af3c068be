package perception

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"taskagent/internal/logging"

	"go.uber.org/zap"
)

// ErrNoParameterSpec is returned by Extract for an intent without a
// ParameterSpec.
var ErrNoParameterSpec = errors.New("no parameter spec for intent")

// MissingParameterError reports a required field whose pattern did not
// match the task text.
type MissingParameterError struct {
	Intent TaskIntent
	Field  string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q for %s", e.Field, e.Intent)
}

// Bundle maps field names to extracted values. It is created per request
// and owned by the handler that receives it.
type Bundle map[string]string

// Get returns the value of a field, or "" when absent.
func (b Bundle) Get(field string) string { return b[field] }

// GetOr returns the value of a field, or def when absent or empty.
func (b Bundle) GetOr(field, def string) string {
	if v := b[field]; v != "" {
		return v
	}
	return def
}

// Has reports whether the field is present.
func (b Bundle) Has(field string) bool {
	_, ok := b[field]
	return ok
}

// Keys returns the field names in sorted order.
func (b Bundle) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Extractor interprets the ParameterSpec table for a fixed data root.
// It is immutable after construction and safe for concurrent use.
type Extractor struct {
	root   string
	specs  map[TaskIntent][]compiledField
	fields map[TaskIntent][]Field
}

// NewExtractor compiles DefaultSpecs against dataRoot.
func NewExtractor(dataRoot string) (*Extractor, error) {
	return NewExtractorWithSpecs(dataRoot, DefaultSpecs())
}

// NewExtractorWithSpecs compiles the given table against dataRoot.
func NewExtractorWithSpecs(dataRoot string, specs []ParameterSpec) (*Extractor, error) {
	if dataRoot == "" {
		return nil, errors.New("data root is required")
	}
	compiled, err := compileSpecs(specs, dataRoot)
	if err != nil {
		return nil, err
	}
	fields := make(map[TaskIntent][]Field, len(specs))
	for _, s := range specs {
		fields[s.Intent] = append([]Field(nil), s.Fields...)
	}
	return &Extractor{root: strings.TrimRight(dataRoot, "/"), specs: compiled, fields: fields}, nil
}

// DataRoot returns the root every path field is anchored to.
func (e *Extractor) DataRoot() string { return e.root }

// Fields returns the declared fields for an intent in extraction order.
func (e *Extractor) Fields(intent TaskIntent) []Field {
	return append([]Field(nil), e.fields[intent]...)
}

// Extract walks the intent's fields in order. A required field that does
// not match fails with *MissingParameterError; an optional field falls back
// to its default, or is left out when it has none.
func (e *Extractor) Extract(text string, intent TaskIntent) (Bundle, error) {
	fields, ok := e.specs[intent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoParameterSpec, intent)
	}

	log := logging.Get(logging.CategoryExtract)
	bundle := make(Bundle, len(fields))
	for _, f := range fields {
		if v, found := f.find(text); found {
			bundle[f.Name] = v
			continue
		}
		if f.Required {
			log.Debug("required field not found",
				zap.String("intent", intent.String()),
				zap.String("field", f.Name))
			return nil, &MissingParameterError{Intent: intent, Field: f.Name}
		}
		if f.def != "" {
			bundle[f.Name] = f.def
		}
	}

	log.Debug("parameters bound",
		zap.String("intent", intent.String()),
		zap.Strings("fields", bundle.Keys()))
	return bundle, nil
}

func (f compiledField) find(text string) (string, bool) {
	var m []string
	if f.Last {
		if all := f.re.FindAllStringSubmatch(text, -1); len(all) > 0 {
			m = all[len(all)-1]
		}
	} else {
		m = f.re.FindStringSubmatch(text)
	}
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if f.Kind == KindPath || f.Kind == KindURL {
		v = strings.TrimRight(v, ".,;:!?)]}")
	}
	return v, v != ""
}
