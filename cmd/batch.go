package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/export"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

type batchOptions struct {
	input  string
	output string
	budget time.Duration
	limit  int
	upload bool
}

func newBatchCmd() *cobra.Command {
	var opts batchOptions
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process a CSV of companies and write the leadership report",
		Long: `Reads companies from a CSV with a header row. Recognized columns are
name (or company), website (or url, domain) and an optional id
(or company_id). The report is written as CSV, one row per input row.`,
		Example: `  leadfinder batch --input companies.csv --output leaders.csv --budget 20m
  leadfinder batch --input companies.csv --upload`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "input CSV file (required)")
	cmd.Flags().StringVar(&opts.output, "output", "", "report file (default stdout)")
	cmd.Flags().DurationVar(&opts.budget, "budget", 0, "wall-clock budget for the batch (default batch.timeout)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "process at most this many companies (0 = all)")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "also upload the report to the configured export sink")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runBatch(cmd *cobra.Command, opts batchOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	companies, err := readCompanies(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	if opts.limit > 0 && opts.limit < len(companies) {
		companies = companies[:opts.limit]
	}
	zap.L().Info("parsed input", zap.String("path", opts.input), zap.Int("companies", len(companies)))

	batch, err := appInstance.RunBatch(cmd.Context(), companies, opts.budget)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	zap.L().Info("batch finished",
		zap.String("batch_id", batch.ID),
		zap.String("status", string(batch.Status)),
		zap.Int("found", batch.Counters.Found),
		zap.Int("skipped", batch.Counters.Skipped),
		zap.Int("timed_out", batch.Counters.TimedOut),
	)

	if err := writeReport(cmd.OutOrStdout(), opts.output, batch); err != nil {
		return err
	}
	if opts.upload {
		uri, err := appInstance.Exporter().Upload(cmd.Context(), batch)
		if err != nil {
			return fmt.Errorf("upload report: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), uri)
	}
	return nil
}

func writeReport(stdout io.Writer, path string, batch leadership.Batch) error {
	if path == "" {
		return export.WriteCSV(stdout, export.Rows(batch))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := export.WriteCSV(f, export.Rows(batch)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

var inputColumns = map[string][]string{
	"name":    {"name", "company", "company name", "company_name"},
	"website": {"website", "url", "domain", "company website"},
	"id":      {"id", "company_id", "company id", "company key"},
}

// readCompanies parses the input CSV. Rows without a website are kept so the
// report stays aligned with the input; the engine records them as skips.
func readCompanies(r io.Reader) ([]leadership.Company, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for field, aliases := range inputColumns {
			for _, alias := range aliases {
				if _, seen := cols[field]; !seen && h == alias {
					cols[field] = i
				}
			}
		}
	}
	if _, ok := cols["website"]; !ok {
		return nil, errors.New("input has no website column")
	}

	var companies []leadership.Company
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(companies)+2, err)
		}
		if blank(record) {
			continue
		}
		companies = append(companies, leadership.Company{
			ID:      field(record, cols, "id"),
			Name:    field(record, cols, "name"),
			Website: field(record, cols, "website"),
		})
	}
	return companies, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
