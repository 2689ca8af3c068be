package perception

import (
	"fmt"
	"regexp"
	"strings"
)

// Field names shared by handlers.
const (
	FieldInputFile       = "input_file"
	FieldOutputFile      = "output_file"
	FieldDestination     = "destination"
	FieldURL             = "url"
	FieldRepoURL         = "repo_url"
	FieldCommitMessage   = "commit_message"
	FieldDatabase        = "database"
	FieldQuery           = "query"
	FieldFilterColumn    = "filter_column"
	FieldFilterValue     = "filter_value"
	FieldWeekday         = "weekday"
	FieldTicketType      = "ticket_type"
	FieldLogsDir         = "logs_dir"
	FieldDocsDir         = "docs_dir"
	FieldCount           = "count"
	FieldScale           = "scale"
	FieldScriptURL       = "script_url"
	FieldUserEmail       = "user_email"
	FieldPrettierVersion = "prettier_version"
)

// FieldKind controls post-processing of a matched value.
type FieldKind int

const (
	KindText FieldKind = iota // trimmed of surrounding whitespace only
	KindPath                  // trailing sentence punctuation removed
	KindURL                   // trailing sentence punctuation removed
)

// Field is one named parameter with its extraction pattern. The pattern's
// first capture group is the value. Default may reference {root}. Last
// binds the final match instead of the first.
type Field struct {
	Name     string
	Kind     FieldKind
	Pattern  string
	Required bool
	Default  string
	Last     bool
}

// ParameterSpec is the ordered field list for one intent.
type ParameterSpec struct {
	Intent TaskIntent
	Fields []Field
}

// Pattern fragments. {root} is replaced with the quoted data root.
const (
	pathToken = `({root}/[^\s"'<>|]+)`
	urlToken  = `(https?://[A-Za-z0-9.-]+(?::\d+)?(?:/[^\s"'<>]*)?)`

	// destination: the literal "write to" marker, then a rooted path
	destMarker = `(?i)\bwrite\s+to\s+`
	// output: "to|into <path>", or "write ... in <path>" within a few
	// words of the verb; the last match in the text wins
	outputMarker = `(?i)\b(?:to|into|(?:write|save)\s+(?:\S+\s+){0,3}?in)\s+`
)

func rooted(ext string) string {
	if ext == "" {
		return pathToken
	}
	return `({root}/[^\s"'<>|]+\.(?:` + ext + `))\b`
}

func destination(ext string) Field {
	return Field{Name: FieldDestination, Kind: KindPath, Pattern: destMarker + rooted(ext), Required: true}
}

func output(def string) Field {
	return Field{Name: FieldOutputFile, Kind: KindPath, Pattern: outputMarker + pathToken, Default: def, Last: true}
}

// DefaultSpecs returns the parameter table for every intent.
func DefaultSpecs() []ParameterSpec {
	return []ParameterSpec{
		{IntentRunDatagen, []Field{
			{Name: FieldScriptURL, Kind: KindURL, Pattern: `(https?://\S+?datagen\.py)`},
			{Name: FieldUserEmail, Kind: KindText, Pattern: `([A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+)`},
		}},
		{IntentFormatMarkdown, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("md"), Default: "{root}/format.md"},
			{Name: FieldPrettierVersion, Kind: KindText, Pattern: `prettier@(\d+\.\d+\.\d+)`},
		}},
		{IntentCountWeekday, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("txt"), Default: "{root}/dates.txt"},
			{Name: FieldWeekday, Kind: KindText, Pattern: `(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)s?\b`, Default: "wednesday"},
			output(""),
		}},
		{IntentSortContacts, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("json"), Default: "{root}/contacts.json"},
			output("{root}/contacts-sorted.json"),
		}},
		{IntentRecentLogs, []Field{
			{Name: FieldLogsDir, Kind: KindPath, Pattern: `({root}/[\w.-]*logs)/`, Default: "{root}/logs"},
			{Name: FieldCount, Kind: KindText, Pattern: `(?i)\b(\d+)\s+most\s+recent`, Default: "10"},
			output("{root}/logs-recent.txt"),
		}},
		{IntentIndexDocs, []Field{
			{Name: FieldDocsDir, Kind: KindPath, Pattern: `({root}/[\w.-]*docs)\b`, Default: "{root}/docs"},
			{Name: FieldOutputFile, Kind: KindPath, Pattern: rooted("json"), Default: "{root}/docs/index.json"},
		}},
		{IntentExtractEmailSender, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("txt"), Default: "{root}/email.txt"},
			output("{root}/email-sender.txt"),
		}},
		{IntentExtractCardNumber, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("png|jpe?g"), Default: "{root}/credit-card.png"},
			output("{root}/credit-card.txt"),
		}},
		{IntentSimilarComments, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("txt"), Default: "{root}/comments.txt"},
			output("{root}/comments-similar.txt"),
		}},
		{IntentTicketSales, []Field{
			{Name: FieldDatabase, Kind: KindPath, Pattern: rooted("db"), Default: "{root}/ticket-sales.db"},
			{Name: FieldTicketType, Kind: KindText, Pattern: `["“']([A-Za-z][\w -]*)["”']\s+tickets?\b`, Default: "Gold"},
			output("{root}/ticket-sales-gold.txt"),
		}},
		{IntentFetchAPI, []Field{
			{Name: FieldURL, Kind: KindURL, Pattern: urlToken, Required: true},
			destination(""),
		}},
		{IntentCloneRepo, []Field{
			{Name: FieldRepoURL, Kind: KindURL, Pattern: `(https?://\S+?\.git)\b`, Required: true},
			{Name: FieldCommitMessage, Kind: KindText, Pattern: `(?i)\bmessage\s+["“']([^"”']+)["”']`, Default: "Automated commit"},
		}},
		{IntentRunSQLQuery, []Field{
			{Name: FieldDatabase, Kind: KindPath, Pattern: rooted(`db|sqlite3?|duckdb`), Required: true},
			{Name: FieldQuery, Kind: KindText, Pattern: `(?i)query\s*:\s*(.+)`, Required: true},
			destination(""),
		}},
		{IntentScrapeWebsite, []Field{
			{Name: FieldURL, Kind: KindURL, Pattern: urlToken, Required: true},
			destination(""),
		}},
		{IntentResizeImage, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("png|jpe?g"), Required: true},
			destination("png|jpe?g"),
			{Name: FieldScale, Kind: KindText, Pattern: `\b(\d{1,3})\s*%`, Default: "50"},
		}},
		{IntentTranscribeAudio, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("mp3"), Required: true},
			destination("txt"),
		}},
		{IntentMarkdownToHTML, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("md"), Required: true},
			destination("html?"),
		}},
		{IntentFilterCSV, []Field{
			{Name: FieldInputFile, Kind: KindPath, Pattern: rooted("csv"), Required: true},
			{Name: FieldFilterColumn, Kind: KindText, Pattern: `(?i)\bcolumn\s+["']?([\w-]+)["']?\s+equals\b`},
			{Name: FieldFilterValue, Kind: KindText, Pattern: `(?i)\bequals\s+["']?([^\s"',]+)`, Required: true},
			destination(""),
		}},
	}
}

// compiledField is a Field with its pattern bound to a data root.
type compiledField struct {
	Field
	re  *regexp.Regexp
	def string
}

func compileSpecs(specs []ParameterSpec, root string) (map[TaskIntent][]compiledField, error) {
	root = strings.TrimRight(root, "/")
	quoted := regexp.QuoteMeta(root)

	out := make(map[TaskIntent][]compiledField, len(specs))
	for _, spec := range specs {
		if _, dup := out[spec.Intent]; dup {
			return nil, fmt.Errorf("duplicate parameter spec for %s", spec.Intent)
		}
		fields := make([]compiledField, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			re, err := regexp.Compile(strings.ReplaceAll(f.Pattern, "{root}", quoted))
			if err != nil {
				return nil, fmt.Errorf("%s field %s: %w", spec.Intent, f.Name, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("%s field %s: pattern has no capture group", spec.Intent, f.Name)
			}
			fields = append(fields, compiledField{
				Field: f,
				re:    re,
				def:   strings.ReplaceAll(f.Default, "{root}", root),
			})
		}
		out[spec.Intent] = fields
	}
	return out, nil
}
