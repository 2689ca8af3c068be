package perception

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules_CoverEveryIntent(t *testing.T) {
	covered := make(map[TaskIntent]bool)
	for _, r := range Default().Rules() {
		covered[r.Intent] = true
		assert.NotEmpty(t, r.Exemplars, "%s has no exemplars", r.Intent)
	}
	for _, intent := range AllIntents() {
		assert.True(t, covered[intent], "no rule for %s", intent)
	}
}

func TestClassify_ExemplarsMatchOwnIntent(t *testing.T) {
	c := Default()
	for _, r := range c.Rules() {
		for _, ex := range r.Exemplars {
			got, ok := c.Classify(ex)
			require.True(t, ok, "no match for %q", ex)
			assert.Equal(t, r.Intent, got, "exemplar %q", ex)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := Default()
	text := "Sort the array of contacts in /data/contacts.json by last_name"
	first, ok := c.Classify(text)
	require.True(t, ok)
	for i := 0; i < 50; i++ {
		got, _ := c.Classify(text)
		assert.Equal(t, first, got)
	}
}

func TestClassify_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		text string
		want TaskIntent
	}{
		{"contacts", "Sort the array of contacts in /data/contacts.json by last_name", IntentSortContacts},
		{"fetch", "Fetch data from API https://api.example.com/data and write to /data/out.json", IntentFetchAPI},
		{"resize", "Resize image", IntentResizeImage},
		{"compress", "Compress /data/big.jpg and write to /data/small.jpg", IntentResizeImage},
		{"weekday count", "Count the # of Thursdays in the list", IntentCountWeekday},
		{"duckdb", "Run this query against DuckDB", IntentRunSQLQuery},
		{"card by keyword", "Read the credit card in /data/card.png", IntentExtractCardNumber},
		{"datagen by uv", "Please install uv first", IntentRunDatagen},
		{"contacts without sort", "Order the contacts in /data/contacts.json by last_name and write them to /data/ordered.json", IntentSortContacts},
		{"logs without extension", "Write the first line of the 10 most recent log files in /data/logs/ to /data/first-lines.txt", IntentRecentLogs},
		{"docs without index", "Find all Markdown files in /data/docs/ and map each filename to its H1 title", IntentIndexDocs},
	}
	c := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Classify(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_NoMatch(t *testing.T) {
	c := Default()
	for _, text := range []string{"", "   \n\t", "Make me a sandwich", "fetch the newspaper"} {
		got, ok := c.Classify(text)
		assert.False(t, ok, "%q", text)
		assert.Equal(t, IntentNone, got)
	}
}

func TestClassify_RawTermsAreCaseSensitive(t *testing.T) {
	// ".db" is a raw term; ".DB" does not satisfy it.
	_, ok := Default().Classify("query the file /data/APP.DB")
	assert.False(t, ok)
}

func TestExplain_ReportsFiredTerms(t *testing.T) {
	cl := Default().Explain("FETCH the weather API")
	require.True(t, cl.Matched)
	assert.Equal(t, IntentFetchAPI, cl.Intent)
	assert.Equal(t, 11, cl.Rank)
	assert.Equal(t, []string{"~fetch", "~api"}, termStrings(cl.Fired))
}

func TestNewClassifier_DetectsOverlap(t *testing.T) {
	rules := []ClassificationRule{
		{
			Intent:    IntentMarkdownToHTML,
			Predicate: anyOf(all(fold("markdown"))),
			Exemplars: []string{"Convert markdown to html"},
		},
		{
			Intent:    IntentFormatMarkdown,
			Predicate: anyOf(all(fold("format"))),
			Exemplars: []string{"Format the markdown file"},
		},
	}
	_, err := NewClassifier(rules)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleOverlap))

	var overlap *OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, IntentFormatMarkdown, overlap.Owner)
	assert.Equal(t, IntentMarkdownToHTML, overlap.Other)
	assert.Equal(t, "Format the markdown file", overlap.Exemplar)
}

func TestNewClassifier_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name  string
		rules []ClassificationRule
	}{
		{"invalid intent", []ClassificationRule{
			{Intent: IntentNone, Predicate: anyOf(all(fold("x")))},
		}},
		{"duplicate intent", []ClassificationRule{
			{Intent: IntentFetchAPI, Predicate: anyOf(all(fold("a")))},
			{Intent: IntentFetchAPI, Predicate: anyOf(all(fold("b")))},
		}},
		{"empty predicate", []ClassificationRule{
			{Intent: IntentFetchAPI},
		}},
		{"exemplar misses own rule", []ClassificationRule{
			{Intent: IntentFetchAPI, Predicate: anyOf(all(fold("fetch"))), Exemplars: []string{"download it"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.rules)
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrRuleOverlap))
		})
	}
}

func TestMustClassifier_PanicsOnOverlap(t *testing.T) {
	rules := []ClassificationRule{
		{Intent: IntentCloneRepo, Predicate: anyOf(all(fold("git"))), Exemplars: []string{"git clone"}},
		{Intent: IntentRunDatagen, Predicate: anyOf(all(fold("clone"))), Exemplars: []string{"clone it"}},
	}
	assert.Panics(t, func() { MustClassifier(rules) })
}

func TestClassifier_RulesReturnsCopy(t *testing.T) {
	c := Default()
	rules := c.Rules()
	rules[0].Intent = IntentFilterCSV
	assert.Equal(t, IntentRunDatagen, c.Rules()[0].Intent)
}
