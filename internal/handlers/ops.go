package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskagent/internal/logging"
	"taskagent/internal/perception"
	"taskagent/internal/tactile"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (s *Set) runDatagen(ctx context.Context, p perception.Bundle) (string, error) {
	email := p.GetOr(perception.FieldUserEmail, s.cfg.Datagen.UserEmail)
	if email == "" {
		return "", Failf("USER_EMAIL is not set and the task names no email address")
	}
	scriptURL := p.GetOr(perception.FieldScriptURL, s.cfg.Datagen.ScriptURL)

	if !s.deps.Exec.Available("uv") {
		logging.Get(logging.CategoryHandlers).Info("uv not found, installing")
		if _, err := s.run(ctx, tactile.Command{Binary: "pip", Arguments: []string{"install", "uv"}}); err != nil {
			return "", err
		}
	}

	script, err := s.download(ctx, scriptURL)
	if err != nil {
		return "", err
	}
	workDir := s.cfg.WorkDir()
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", Failf("failed to create %s: %v", workDir, err)
	}
	scriptPath := filepath.Join(workDir, "datagen.py")
	if err := os.WriteFile(scriptPath, script, 0644); err != nil {
		return "", Failf("failed to save datagen.py: %v", err)
	}

	if _, err := s.run(ctx, tactile.Command{
		Binary:           "python",
		Arguments:        []string{scriptPath, email},
		WorkingDirectory: workDir,
	}); err != nil {
		return "", err
	}
	return done(perception.IntentRunDatagen, "datagen.py executed."), nil
}

func (s *Set) formatMarkdown(ctx context.Context, p perception.Bundle) (string, error) {
	path, err := s.Resolve(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", Failf("file not found: %s", path)
	}
	version := p.GetOr(perception.FieldPrettierVersion, s.cfg.Formatter.PrettierVersion)

	if _, err := s.run(ctx, tactile.Command{
		Binary:    "npx",
		Arguments: []string{"--yes", "prettier@" + version, "--write", path},
	}); err != nil {
		return "", err
	}
	return done(perception.IntentFormatMarkdown, "File formatted with prettier@%s.", version), nil
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"Jan 2, 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"02-Jan-2006",
	"2 Jan 2006",
	"Mon, 02 Jan 2006",
}

var weekdayByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// parseDate tries every known layout; ok is false for unparseable lines.
func parseDate(line string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, line); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Set) countWeekday(ctx context.Context, p perception.Bundle) (string, error) {
	name := strings.ToLower(p.GetOr(perception.FieldWeekday, "wednesday"))
	day, ok := weekdayByName[name]
	if !ok {
		return "", Failf("unknown weekday %q", name)
	}
	if err := s.checkOutput(p, perception.FieldInputFile); err != nil {
		return "", err
	}

	data, err := s.readFile(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}

	count, skipped := 0, 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t, ok := parseDate(line)
		if !ok {
			skipped++
			continue
		}
		if t.Weekday() == day {
			count++
		}
	}
	if err := sc.Err(); err != nil {
		return "", Failf("failed to read dates: %v", err)
	}
	if skipped > 0 {
		logging.Get(logging.CategoryHandlers).Debug("skipped unparseable dates", zap.Int("lines", skipped))
	}

	out := p.GetOr(perception.FieldOutputFile, filepath.Join(s.root, "dates-"+name+"s.txt"))
	if err := s.writeFile(out, []byte(strconv.Itoa(count))); err != nil {
		return "", err
	}
	return done(perception.IntentCountWeekday, "%d %ss counted.", count, strings.ToUpper(name[:1])+name[1:]), nil
}

func (s *Set) sortContacts(ctx context.Context, p perception.Bundle) (string, error) {
	if err := s.checkOutput(p, perception.FieldInputFile); err != nil {
		return "", err
	}
	data, err := s.readFile(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}

	var contacts []map[string]any
	if err := json.Unmarshal(data, &contacts); err != nil {
		return "", Failf("contacts file is not a JSON array of objects: %v", err)
	}

	field := func(c map[string]any, k string) string {
		if v, ok := c[k].(string); ok {
			return v
		}
		return ""
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		li, lj := field(contacts[i], "last_name"), field(contacts[j], "last_name")
		if li != lj {
			return li < lj
		}
		return field(contacts[i], "first_name") < field(contacts[j], "first_name")
	})

	out, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return "", Failf("failed to encode contacts: %v", err)
	}
	if err := s.writeFile(p.Get(perception.FieldOutputFile), out); err != nil {
		return "", err
	}
	return done(perception.IntentSortContacts, "Contacts sorted."), nil
}

func (s *Set) recentLogs(ctx context.Context, p perception.Bundle) (string, error) {
	dir, err := s.Resolve(p.Get(perception.FieldLogsDir))
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(p.GetOr(perception.FieldCount, "10"))
	if err != nil || n <= 0 {
		return "", Failf("invalid log count %q", p.Get(perception.FieldCount))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return "", Failf("failed to list logs: %v", err)
	}

	type logFile struct {
		path string
		mod  time.Time
	}
	files := make([]logFile, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, logFile{path: m, mod: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	if len(files) > n {
		files = files[:n]
	}

	lines := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			line, err := firstLine(f.path)
			if err != nil {
				return Failf("failed to read %s: %v", f.path, err)
			}
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if err := s.writeFile(p.Get(perception.FieldOutputFile), []byte(strings.Join(lines, "\n"))); err != nil {
		return "", err
	}
	return done(perception.IntentRecentLogs, "Logs processed (%d files).", len(lines)), nil
}

func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *Set) indexDocs(ctx context.Context, p perception.Bundle) (string, error) {
	dir, err := s.Resolve(p.Get(perception.FieldDocsDir))
	if err != nil {
		return "", err
	}

	var docs []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			docs = append(docs, path)
		}
		return nil
	})
	if err != nil {
		return "", Failf("failed to walk %s: %v", dir, err)
	}

	var mu sync.Mutex
	index := make(map[string]string, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, path := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			title, ok, err := firstHeading(path)
			if err != nil {
				return Failf("failed to read %s: %v", path, err)
			}
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			mu.Lock()
			index[filepath.ToSlash(rel)] = title
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	out, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return "", Failf("failed to encode index: %v", err)
	}
	if err := s.writeFile(p.Get(perception.FieldOutputFile), out); err != nil {
		return "", err
	}
	return done(perception.IntentIndexDocs, "Markdown index created (%d files).", len(index)), nil
}

// firstHeading returns the text of the first "# " line.
func firstHeading(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimLeft(line, "#")), true, nil
		}
	}
	return "", false, sc.Err()
}

func (s *Set) extractEmailSender(ctx context.Context, p perception.Bundle) (string, error) {
	if err := s.checkOutput(p, perception.FieldInputFile); err != nil {
		return "", err
	}
	data, err := s.readFile(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}

	prompt := "Extract the sender's email address from the following email message. " +
		"Reply with the address only.\n\n" + string(data)
	reply, err := s.deps.Oracle.Complete(ctx, prompt)
	if err != nil {
		return "", Fail(fmt.Errorf("oracle request failed: %w", err))
	}

	sender := strings.TrimSpace(reply)
	if m := emailPattern.FindString(sender); m != "" {
		sender = m
	}
	if err := s.writeFile(p.Get(perception.FieldOutputFile), []byte(sender)); err != nil {
		return "", err
	}
	return done(perception.IntentExtractEmailSender, "Email sender extracted."), nil
}

func (s *Set) extractCardNumber(ctx context.Context, p perception.Bundle) (string, error) {
	if err := s.checkOutput(p, perception.FieldInputFile); err != nil {
		return "", err
	}
	in := p.Get(perception.FieldInputFile)
	data, err := s.readFile(in)
	if err != nil {
		return "", err
	}

	prompt := "Extract the credit card number from the image. Return the number without spaces."
	reply, err := s.deps.Oracle.CompleteWithMedia(ctx, prompt, data, imageMIME(in))
	if err != nil {
		return "", Fail(fmt.Errorf("oracle request failed: %w", err))
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, reply)
	if digits == "" {
		return "", Failf("no card number found in the image")
	}
	if err := s.writeFile(p.Get(perception.FieldOutputFile), []byte(digits)); err != nil {
		return "", err
	}
	return done(perception.IntentExtractCardNumber, "Credit card number extracted."), nil
}

func (s *Set) transcribeAudio(ctx context.Context, p perception.Bundle) (string, error) {
	data, err := s.readFile(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}

	prompt := "Transcribe this audio recording verbatim. Reply with the transcript only."
	text, err := s.deps.Oracle.CompleteWithMedia(ctx, prompt, data, "audio/mpeg")
	if err != nil {
		return "", Fail(fmt.Errorf("oracle request failed: %w", err))
	}
	if err := s.writeFile(p.Get(perception.FieldDestination), []byte(strings.TrimSpace(text))); err != nil {
		return "", err
	}
	return done(perception.IntentTranscribeAudio, "Audio transcribed."), nil
}

func imageMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
