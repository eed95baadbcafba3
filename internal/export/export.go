// Package export flattens bucketed results into the fixed report layout and
// ships rendered reports to a blob sink.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// ContentType is the MIME type of rendered reports.
const ContentType = "text/csv"

// statusPending marks rows whose company never produced a result.
const statusPending = "pending"

// Row is one report line in Header order.
type Row []string

// Header returns the report columns: identity, then Name i / Designation i
// per slot in category order, then the found flag and outcome.
func Header() []string {
	cols := []string{"Company Key", "Company Name", "Website"}
	for i := 1; i <= leadership.MaxLeaders; i++ {
		n := strconv.Itoa(i)
		cols = append(cols, "Name "+n, "Designation "+n)
	}
	return append(cols, "Leadership Found", "Status")
}

// Flatten lays a result's buckets into slots. Slot i is the i-th category;
// empty buckets stay empty so columns line up across rows.
func Flatten(res leadership.Result) Row {
	row := make(Row, 0, len(Header()))
	row = append(row, res.CompanyKey, res.CompanyName, res.Website)
	found := false
	for _, cat := range leadership.Categories {
		entry := res.Buckets[cat]
		row = append(row, entry.Name, entry.Designation)
		if strings.TrimSpace(entry.Name) != "" {
			found = true
		}
	}
	return append(row, yesNo(found), string(res.Outcome))
}

// Rows flattens every slot of a batch in submission order. Slots without a
// result yet are rendered as pending.
func Rows(batch leadership.Batch) []Row {
	rows := make([]Row, 0, len(batch.Companies))
	for i, company := range batch.Companies {
		if i < len(batch.Results) && batch.Results[i] != nil {
			rows = append(rows, Flatten(*batch.Results[i]))
			continue
		}
		row := Flatten(leadership.NewResult(cache.Key(company), company))
		row[len(row)-1] = statusPending
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV renders the header and rows.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Exporter renders batches and uploads them to a blob sink.
type Exporter struct {
	store  leadership.BlobStore
	hasher leadership.Hasher
	prefix string
	logger *zap.Logger
}

// NewExporter wires a blob sink. Objects land under prefix/<batch id>/.
func NewExporter(store leadership.BlobStore, hasher leadership.Hasher, prefix string, logger *zap.Logger) (*Exporter, error) {
	if store == nil || hasher == nil {
		return nil, errors.New("export: blob store and hasher are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		store:  store,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("export"),
	}, nil
}

// Render returns the CSV report for batch.
func (e *Exporter) Render(batch leadership.Batch) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Rows(batch)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Upload renders batch and stores it under a content-addressed name. It
// returns the sink URI.
func (e *Exporter) Upload(ctx context.Context, batch leadership.Batch) (string, error) {
	body, err := e.Render(batch)
	if err != nil {
		return "", err
	}
	digest, err := e.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash report: %w", err)
	}
	name := path.Join(e.prefix, batch.ID, digest+".csv")
	uri, err := e.store.PutObject(ctx, name, ContentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	e.logger.Info("Uploaded batch report",
		zap.String("batch_id", batch.ID),
		zap.String("uri", uri),
		zap.Int("rows", len(batch.Companies)),
	)
	return uri, nil
}
