package handlers

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"taskagent/internal/logging"
	"taskagent/internal/oracle"
	"taskagent/internal/perception"
	"taskagent/internal/store"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/image/draw"
)

func (s *Set) similarComments(ctx context.Context, p perception.Bundle) (string, error) {
	if err := s.checkOutput(p, perception.FieldInputFile); err != nil {
		return "", err
	}
	data, err := s.readFile(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}

	var comments []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			comments = append(comments, line)
		}
	}
	if len(comments) < 2 {
		return "", Failf("need at least two comments, found %d", len(comments))
	}

	vectors, err := s.deps.Oracle.Embed(ctx, comments)
	switch {
	case errors.Is(err, oracle.ErrOracleNotConfigured):
		logging.Get(logging.CategoryHandlers).Debug("no oracle configured, using tf-idf")
		vectors = tfidf(comments)
	case err != nil:
		return "", Fail(fmt.Errorf("oracle request failed: %w", err))
	case len(vectors) != len(comments):
		return "", Failf("oracle returned %d embeddings for %d comments", len(vectors), len(comments))
	}

	i, j := mostSimilar(vectors)
	out := comments[i] + "\n" + comments[j]
	if err := s.writeFile(p.Get(perception.FieldOutputFile), []byte(out)); err != nil {
		return "", err
	}
	return done(perception.IntentSimilarComments, "Most similar comments found."), nil
}

var wordPattern = regexp.MustCompile(`\b\w\w+\b`)

// tfidf builds L2-normalized tf-idf vectors with smoothed idf.
func tfidf(docs []string) [][]float32 {
	vocab := map[string]int{}
	counts := make([]map[int]float64, len(docs))
	df := map[int]int{}

	for d, doc := range docs {
		counts[d] = map[int]float64{}
		for _, w := range wordPattern.FindAllString(strings.ToLower(doc), -1) {
			id, ok := vocab[w]
			if !ok {
				id = len(vocab)
				vocab[w] = id
			}
			if counts[d][id] == 0 {
				df[id]++
			}
			counts[d][id]++
		}
	}

	n := float64(len(docs))
	out := make([][]float32, len(docs))
	for d := range docs {
		vec := make([]float32, len(vocab))
		var norm float64
		for id, tf := range counts[d] {
			w := tf * (math.Log((1+n)/(1+float64(df[id]))) + 1)
			vec[id] = float32(w)
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range vec {
				vec[k] = float32(float64(vec[k]) / norm)
			}
		}
		out[d] = vec
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for k := range a {
		if k >= len(b) {
			break
		}
		dot += float64(a[k]) * float64(b[k])
		na += float64(a[k]) * float64(a[k])
		nb += float64(b[k]) * float64(b[k])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// mostSimilar returns the first pair (i < j) with the highest cosine score.
func mostSimilar(vectors [][]float32) (int, int) {
	bi, bj, best := 0, 1, math.Inf(-1)
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			if sim := cosine(vectors[i], vectors[j]); sim > best {
				bi, bj, best = i, j, sim
			}
		}
	}
	return bi, bj
}

func (s *Set) openDB(p perception.Bundle, readOnly bool) (*sql.DB, error) {
	path, err := s.Resolve(p.Get(perception.FieldDatabase))
	if err != nil {
		return nil, err
	}
	db, err := store.Open(s.cfg.SQL.Driver, path, readOnly)
	if err != nil {
		if errors.Is(err, store.ErrDatabaseNotFound) {
			return nil, Fail(err)
		}
		return nil, Failf("failed to open %s: %v", path, err)
	}
	return db, nil
}

func (s *Set) ticketSales(ctx context.Context, p perception.Bundle) (string, error) {
	if err := s.checkOutput(p, perception.FieldDatabase); err != nil {
		return "", err
	}
	db, err := s.openDB(p, true)
	if err != nil {
		return "", err
	}
	defer db.Close()

	kind := p.GetOr(perception.FieldTicketType, "Gold")
	var total sql.NullFloat64
	err = db.QueryRowContext(ctx, "SELECT SUM(units * price) FROM tickets WHERE type = ?", kind).Scan(&total)
	if err != nil {
		return "", Failf("ticket sales query failed: %v", err)
	}

	value := strconv.FormatFloat(total.Float64, 'f', -1, 64)
	if err := s.writeFile(p.Get(perception.FieldOutputFile), []byte(value)); err != nil {
		return "", err
	}
	return done(perception.IntentTicketSales, "Total sales of %s tickets: %s.", kind, value), nil
}

func (s *Set) runSQLQuery(ctx context.Context, p perception.Bundle) (string, error) {
	query := p.Get(perception.FieldQuery)
	if !s.cfg.SQL.AllowWrites {
		if err := store.CheckReadOnly(query); err != nil {
			return "", Fail(err)
		}
	}

	db, err := s.openDB(p, !s.cfg.SQL.AllowWrites)
	if err != nil {
		return "", err
	}
	defer db.Close()

	rows, err := store.Query(ctx, db, query)
	if err != nil {
		return "", Failf("query failed: %v", err)
	}

	out, err := json.MarshalIndent(rows.Records, "", "  ")
	if err != nil {
		return "", Failf("failed to encode rows: %v", err)
	}
	if err := s.writeFile(p.Get(perception.FieldDestination), out); err != nil {
		return "", err
	}
	return done(perception.IntentRunSQLQuery, "Query returned %d rows.", len(rows.Records)), nil
}

func (s *Set) resizeImage(ctx context.Context, p perception.Bundle) (string, error) {
	data, err := s.readFile(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}
	scale, err := strconv.Atoi(p.GetOr(perception.FieldScale, "50"))
	if err != nil || scale <= 0 || scale > 400 {
		return "", Failf("invalid scale %q", p.Get(perception.FieldScale))
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", Failf("failed to decode image: %v", err)
	}
	b := src.Bounds()
	w := max(1, b.Dx()*scale/100)
	h := max(1, b.Dy()*scale/100)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	dest := p.Get(perception.FieldDestination)
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return "", Failf("failed to encode image: %v", err)
	}
	if err := s.writeFile(dest, buf.Bytes()); err != nil {
		return "", err
	}
	return done(perception.IntentResizeImage, "Image resized to %dx%d.", w, h), nil
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

func (s *Set) markdownToHTML(ctx context.Context, p perception.Bundle) (string, error) {
	data, err := s.readFile(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := markdown.Convert(data, &buf); err != nil {
		return "", Failf("failed to convert markdown: %v", err)
	}
	if err := s.writeFile(p.Get(perception.FieldDestination), buf.Bytes()); err != nil {
		return "", err
	}
	return done(perception.IntentMarkdownToHTML, "Markdown converted to HTML."), nil
}

func (s *Set) filterCSV(ctx context.Context, p perception.Bundle) (string, error) {
	path, err := s.Resolve(p.Get(perception.FieldInputFile))
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", Failf("file not found: %s", path)
		}
		return "", Failf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	records, err := filterRecords(f, p.Get(perception.FieldFilterColumn), p.Get(perception.FieldFilterValue))
	if err != nil {
		return "", Fail(err)
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", Failf("failed to encode rows: %v", err)
	}
	if err := s.writeFile(p.Get(perception.FieldDestination), out); err != nil {
		return "", err
	}
	return done(perception.IntentFilterCSV, "%d matching rows written.", len(records)), nil
}

// filterRecords reads a CSV with a header row and keeps rows whose column
// equals value. An empty column selects the first one.
func filterRecords(r io.Reader, column, value string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv file is empty")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	idx := 0
	if column != "" {
		idx = -1
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), column) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("column %q not found", column)
		}
	}

	records := []map[string]string{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if idx >= len(row) || row[idx] != value {
			continue
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
