// Package perception turns a free-text task description into a TaskIntent
// and the parameter bundle that intent's handler needs.
//
// Classification is rule based: every intent owns a predicate over the raw
// and lowercased text built from substring checks, and rules are evaluated
// in declaration order. Extraction is table driven: every intent owns a
// ParameterSpec and one generic routine interprets it.
package perception

import (
	"fmt"
	"strings"
)

// TaskIntent is the closed set of automations a task description can request.
type TaskIntent int

const (
	IntentNone TaskIntent = iota

	// Operations tasks
	IntentRunDatagen         // A1
	IntentFormatMarkdown     // A2
	IntentCountWeekday       // A3
	IntentSortContacts       // A4
	IntentRecentLogs         // A5
	IntentIndexDocs          // A6
	IntentExtractEmailSender // A7
	IntentExtractCardNumber  // A8
	IntentSimilarComments    // A9
	IntentTicketSales        // A10

	// Business tasks
	IntentFetchAPI        // B3
	IntentCloneRepo       // B4
	IntentRunSQLQuery     // B5
	IntentScrapeWebsite   // B6
	IntentResizeImage     // B7
	IntentTranscribeAudio // B8
	IntentMarkdownToHTML  // B9
	IntentFilterCSV       // B10
)

type intentInfo struct {
	name string
	code string
}

var intentTable = map[TaskIntent]intentInfo{
	IntentRunDatagen:         {"RUN_DATAGEN", "A1"},
	IntentFormatMarkdown:     {"FORMAT_MARKDOWN", "A2"},
	IntentCountWeekday:       {"COUNT_WEEKDAY", "A3"},
	IntentSortContacts:       {"SORT_CONTACTS", "A4"},
	IntentRecentLogs:         {"RECENT_LOGS", "A5"},
	IntentIndexDocs:          {"INDEX_DOCS", "A6"},
	IntentExtractEmailSender: {"EXTRACT_EMAIL_SENDER", "A7"},
	IntentExtractCardNumber:  {"EXTRACT_CARD_NUMBER", "A8"},
	IntentSimilarComments:    {"SIMILAR_COMMENTS", "A9"},
	IntentTicketSales:        {"TICKET_SALES", "A10"},
	IntentFetchAPI:           {"FETCH_API", "B3"},
	IntentCloneRepo:          {"CLONE_REPO", "B4"},
	IntentRunSQLQuery:        {"RUN_SQL_QUERY", "B5"},
	IntentScrapeWebsite:      {"SCRAPE_WEBSITE", "B6"},
	IntentResizeImage:        {"RESIZE_IMAGE", "B7"},
	IntentTranscribeAudio:    {"TRANSCRIBE_AUDIO", "B8"},
	IntentMarkdownToHTML:     {"MARKDOWN_TO_HTML", "B9"},
	IntentFilterCSV:          {"FILTER_CSV", "B10"},
}

// AllIntents returns every TaskIntent in declaration order.
func AllIntents() []TaskIntent {
	out := make([]TaskIntent, 0, len(intentTable))
	for i := IntentRunDatagen; i <= IntentFilterCSV; i++ {
		out = append(out, i)
	}
	return out
}

// String returns the intent tag, e.g. "SORT_CONTACTS".
func (i TaskIntent) String() string {
	if i == IntentNone {
		return "NONE"
	}
	if info, ok := intentTable[i]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown(%d)", int(i))
}

// Code returns the short task code, e.g. "A4".
func (i TaskIntent) Code() string {
	return intentTable[i].code
}

// Valid reports whether i is one of the known intents.
func (i TaskIntent) Valid() bool {
	_, ok := intentTable[i]
	return ok
}

// ParseTaskIntent resolves a tag ("sort_contacts", "SORT_CONTACTS") or a
// task code ("A4") to its intent.
func ParseTaskIntent(s string) (TaskIntent, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for intent, info := range intentTable {
		if info.name == want || info.code == want {
			return intent, nil
		}
	}
	return IntentNone, fmt.Errorf("unknown task intent %q", s)
}
