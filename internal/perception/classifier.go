package perception

import (
	"errors"
	"fmt"
	"strings"

	"taskagent/internal/logging"

	"go.uber.org/zap"
)

// ErrRuleOverlap is returned by NewClassifier when two rules can match the
// same exemplar.
var ErrRuleOverlap = errors.New("classification rules overlap")

// OverlapError names the exemplar and the rules it satisfies.
type OverlapError struct {
	Owner    TaskIntent
	Other    TaskIntent
	Exemplar string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s exemplar also matches %s: %q", e.Owner, e.Other, e.Exemplar)
}

func (e *OverlapError) Unwrap() error { return ErrRuleOverlap }

// Classification is the outcome of Explain.
type Classification struct {
	Intent  TaskIntent
	Matched bool
	Rank    int    // 1-based position of the winning rule
	Fired   []Term // terms of the satisfied clause
}

// Classifier evaluates an ordered rule table. It holds no mutable state and
// is safe for concurrent use.
type Classifier struct {
	rules []ClassificationRule
}

// NewClassifier validates the rule table and returns a classifier.
// Every exemplar must satisfy its own rule and no other rule, and an intent
// may own only one rule.
func NewClassifier(rules []ClassificationRule) (*Classifier, error) {
	seen := make(map[TaskIntent]bool, len(rules))
	for _, r := range rules {
		if !r.Intent.Valid() {
			return nil, fmt.Errorf("rule with invalid intent %d", int(r.Intent))
		}
		if seen[r.Intent] {
			return nil, fmt.Errorf("duplicate rule for %s", r.Intent)
		}
		seen[r.Intent] = true
		if len(r.Predicate) == 0 {
			return nil, fmt.Errorf("rule %s has an empty predicate", r.Intent)
		}
	}

	for _, owner := range rules {
		for _, ex := range owner.Exemplars {
			lower := strings.ToLower(ex)
			if ok, _ := owner.Predicate.Match(ex, lower); !ok {
				return nil, fmt.Errorf("%s exemplar does not match its own rule: %q", owner.Intent, ex)
			}
			for _, other := range rules {
				if other.Intent == owner.Intent {
					continue
				}
				if ok, _ := other.Predicate.Match(ex, lower); ok {
					return nil, &OverlapError{Owner: owner.Intent, Other: other.Intent, Exemplar: ex}
				}
			}
		}
	}

	rs := make([]ClassificationRule, len(rules))
	copy(rs, rules)
	return &Classifier{rules: rs}, nil
}

// MustClassifier is NewClassifier for static tables.
func MustClassifier(rules []ClassificationRule) *Classifier {
	c, err := NewClassifier(rules)
	if err != nil {
		panic(err)
	}
	return c
}

var shared = MustClassifier(DefaultRules())

// Default returns the classifier over DefaultRules, validated at init.
func Default() *Classifier {
	return shared
}

// Classify returns the intent of the first rule the text satisfies.
// ok is false when no rule matches.
func (c *Classifier) Classify(text string) (intent TaskIntent, ok bool) {
	cl := c.Explain(text)
	return cl.Intent, cl.Matched
}

// Explain is Classify plus the rank and the literal terms that fired.
func (c *Classifier) Explain(text string) Classification {
	if strings.TrimSpace(text) == "" {
		return Classification{Intent: IntentNone}
	}

	lower := strings.ToLower(text)
	for i, r := range c.rules {
		if ok, fired := r.Predicate.Match(text, lower); ok {
			logging.Get(logging.CategoryClassify).Debug("rule matched",
				zap.String("intent", r.Intent.String()),
				zap.Int("rank", i+1),
				zap.Strings("terms", termStrings(fired)))
			return Classification{Intent: r.Intent, Matched: true, Rank: i + 1, Fired: fired}
		}
	}

	logging.Get(logging.CategoryClassify).Debug("no rule matched", zap.Int("rules", len(c.rules)))
	return Classification{Intent: IntentNone}
}

// Rules returns a copy of the rule table in precedence order.
func (c *Classifier) Rules() []ClassificationRule {
	out := make([]ClassificationRule, len(c.rules))
	copy(out, c.rules)
	return out
}

func termStrings(terms []Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.String()
	}
	return out
}
