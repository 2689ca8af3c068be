package perception

import (
	"strings"
)

// Term is a single substring check. Folded terms are matched against the
// lowercased text; raw terms against the text as given.
type Term struct {
	Text string
	Fold bool
}

func raw(s string) Term  { return Term{Text: s} }
func fold(s string) Term { return Term{Text: strings.ToLower(s), Fold: true} }

func (t Term) String() string {
	if t.Fold {
		return "~" + t.Text
	}
	return t.Text
}

// Clause is a conjunction: every term must be present.
type Clause []Term

// Predicate is a disjunction of clauses.
type Predicate []Clause

// all builds a single-clause predicate.
func all(terms ...Term) Clause { return Clause(terms) }

// anyOf builds a predicate from clauses.
func anyOf(clauses ...Clause) Predicate { return Predicate(clauses) }

// Match reports whether the predicate holds and returns the terms of the
// first satisfied clause.
func (p Predicate) Match(text, lower string) (bool, []Term) {
	for _, clause := range p {
		if clause.holds(text, lower) {
			return true, clause
		}
	}
	return false, nil
}

func (c Clause) holds(text, lower string) bool {
	if len(c) == 0 {
		return false
	}
	for _, t := range c {
		hay := text
		if t.Fold {
			hay = lower
		}
		if !strings.Contains(hay, t.Text) {
			return false
		}
	}
	return true
}

// ClassificationRule binds an intent to its predicate. Exemplars are task
// descriptions that must satisfy this rule and no other; NewClassifier
// checks them to detect overlapping rules.
type ClassificationRule struct {
	Intent    TaskIntent
	Predicate Predicate
	Exemplars []string
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func weekdayClauses() []Clause {
	clauses := make([]Clause, 0, len(weekdays)*2)
	for _, day := range weekdays {
		clauses = append(clauses, all(raw("dates.txt"), fold(day)))
	}
	for _, day := range weekdays {
		clauses = append(clauses, all(fold("# of "+day+"s")))
	}
	return clauses
}

// DefaultRules returns the rule table in precedence order. Earlier rules
// win; the A-series rules key on their fixed file names and therefore sit
// ahead of the keyword-driven B-series rules.
func DefaultRules() []ClassificationRule {
	return []ClassificationRule{
		{
			Intent:    IntentRunDatagen,
			Predicate: anyOf(all(raw("datagen.py")), all(fold("install uv"))),
			Exemplars: []string{
				"Install uv (if required) and run https://raw.githubusercontent.com/sanand0/tools-in-data-science-public/tds-2025-01/project-1/datagen.py with user@example.com as the only argument",
			},
		},
		{
			Intent:    IntentFormatMarkdown,
			Predicate: anyOf(all(fold("prettier"))),
			Exemplars: []string{
				"Format the contents of /data/format.md using prettier@3.4.2, updating the file in-place",
			},
		},
		{
			Intent:    IntentCountWeekday,
			Predicate: anyOf(weekdayClauses()...),
			Exemplars: []string{
				"The file /data/dates.txt contains a list of dates, one per line. Count the number of Wednesdays in the list, and write just the number to /data/dates-wednesdays.txt",
				"How many Sundays are listed in /data/dates.txt?",
			},
		},
		{
			Intent:    IntentSortContacts,
			Predicate: anyOf(all(raw("contacts.json"))),
			Exemplars: []string{
				"Sort the array of contacts in /data/contacts.json by last_name, then first_name, and write the result to /data/contacts-sorted.json",
			},
		},
		{
			Intent: IntentRecentLogs,
			Predicate: anyOf(
				all(raw("/logs"), fold(".log")),
				all(raw("/logs/"), fold("recent")),
				all(raw("/logs/"), fold("first line")),
			),
			Exemplars: []string{
				"Write the first line of the 10 most recent .log file in /data/logs/ to /data/logs-recent.txt, most recent first",
			},
		},
		{
			Intent: IntentIndexDocs,
			Predicate: anyOf(
				all(raw("/docs"), fold("index")),
				all(raw("/docs/"), fold("h1")),
				all(raw("/docs/"), fold("title")),
			),
			Exemplars: []string{
				"Find all Markdown (.md) files in /data/docs/. For each file, extract the first occurrence of each H1. Create an index file /data/docs/index.json that maps each filename to its title",
			},
		},
		{
			Intent:    IntentExtractEmailSender,
			Predicate: anyOf(all(raw("email.txt"), fold("sender"))),
			Exemplars: []string{
				"/data/email.txt contains an email message. Pass the content to an LLM with instructions to extract the sender's email address, and write just the email address to /data/email-sender.txt",
			},
		},
		{
			Intent: IntentExtractCardNumber,
			Predicate: anyOf(
				all(raw("credit-card.png")),
				all(fold("credit card"), fold(".png")),
			),
			Exemplars: []string{
				"/data/credit-card.png contains a credit card number. Pass the image to an LLM, have it extract the card number, and write it without spaces to /data/credit-card.txt",
			},
		},
		{
			Intent:    IntentSimilarComments,
			Predicate: anyOf(all(raw("comments.txt"), fold("similar"))),
			Exemplars: []string{
				"/data/comments.txt contains a list of comments, one per line. Using embeddings, find the most similar pair of comments and write them to /data/comments-similar.txt, one per line",
			},
		},
		{
			Intent:    IntentTicketSales,
			Predicate: anyOf(all(raw("ticket-sales.db"))),
			Exemplars: []string{
				`The SQLite database file /data/ticket-sales.db has a tickets table with columns type, units, and price. What is the total sales of all the items in the "Gold" ticket type? Write the number in /data/ticket-sales-gold.txt`,
			},
		},
		{
			Intent:    IntentFetchAPI,
			Predicate: anyOf(all(fold("fetch"), fold("api"))),
			Exemplars: []string{
				"Fetch data from API https://api.example.com/data and write to /data/out.json",
			},
		},
		{
			Intent:    IntentCloneRepo,
			Predicate: anyOf(all(fold("clone"), fold("git"))),
			Exemplars: []string{
				"Clone the git repo https://github.com/example/project.git and make a commit",
			},
		},
		{
			Intent: IntentRunSQLQuery,
			Predicate: anyOf(
				all(fold("query"), raw(".db")),
				all(fold("query"), fold("duckdb")),
			),
			Exemplars: []string{
				"Run a SQL query on /data/app.db and write to /data/result.json\nquery: SELECT name, total FROM orders",
			},
		},
		{
			Intent: IntentScrapeWebsite,
			Predicate: anyOf(
				all(fold("scrape"), fold("website")),
				all(fold("extract data from"), fold("website")),
			),
			Exemplars: []string{
				"Scrape the website https://example.com/news and write to /data/news.txt",
			},
		},
		{
			Intent:    IntentResizeImage,
			Predicate: anyOf(all(fold("resize")), all(fold("compress"))),
			Exemplars: []string{
				"Resize the image /data/photo.png and write to /data/photo-small.png",
			},
		},
		{
			Intent:    IntentTranscribeAudio,
			Predicate: anyOf(all(fold("transcribe"), raw(".mp3"))),
			Exemplars: []string{
				"Transcribe /data/interview.mp3 and write to /data/interview.txt",
			},
		},
		{
			Intent:    IntentMarkdownToHTML,
			Predicate: anyOf(all(fold("markdown"), fold("html"))),
			Exemplars: []string{
				"Convert the Markdown file /data/readme.md to HTML and write to /data/readme.html",
			},
		},
		{
			Intent:    IntentFilterCSV,
			Predicate: anyOf(all(fold("csv"), fold("json"))),
			Exemplars: []string{
				"Filter the CSV file /data/sales.csv for rows where the first column equals Gold and write to /data/gold.json",
			},
		},
	}
}
