package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/config"
	"github.com/JakeFAU/leadership-finder/internal/export"
	"github.com/JakeFAU/leadership-finder/internal/hash/sha256"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/storage/memory"
)

type fakeApp struct {
	companies []leadership.Company
	budget    time.Duration
	exporter  *export.Exporter
	closed    bool
	served    bool
}

func (f *fakeApp) Discover(_ context.Context, company leadership.Company) leadership.Result {
	f.companies = append(f.companies, company)
	res := leadership.NewResult("key-1", company)
	res.Outcome = leadership.OutcomeSuccess
	return res
}

func (f *fakeApp) RunBatch(_ context.Context, companies []leadership.Company, budget time.Duration) (leadership.Batch, error) {
	f.companies = companies
	f.budget = budget
	results := make([]*leadership.Result, len(companies))
	for i, c := range companies {
		res := leadership.NewResult(c.ID, c)
		results[i] = &res
	}
	return leadership.Batch{
		ID:        "batch-1",
		Status:    leadership.BatchStatusCompleted,
		Companies: companies,
		Results:   results,
	}, nil
}

func (f *fakeApp) Run(context.Context) error {
	f.served = true
	return nil
}

func (f *fakeApp) Exporter() *export.Exporter { return f.exporter }

func (f *fakeApp) Close() { f.closed = true }

// execute runs the root command with a fake app. Tests using it cannot run in
// parallel because newApp is package state.
func execute(t *testing.T, app *fakeApp, args ...string) (string, string, error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = orig })

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestDiscoverCommand(t *testing.T) {
	app := &fakeApp{}
	out, _, err := execute(t, app, "discover", "--name", "Acme", "--url", "acme.test", "--id", "c-9")
	require.NoError(t, err)

	require.Equal(t, []leadership.Company{{ID: "c-9", Name: "Acme", Website: "acme.test"}}, app.companies)
	var res leadership.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, leadership.OutcomeSuccess, res.Outcome)
	require.True(t, app.closed)
}

func TestDiscoverCommandRequiresURL(t *testing.T) {
	_, _, err := execute(t, &fakeApp{}, "discover", "--name", "Acme")
	require.ErrorContains(t, err, "--url")
}

func TestBatchCommandWritesReport(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	output := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(input, []byte("Company,Website,company_id\nAcme,acme.test,c-1\nGlobex,globex.test,c-2\n"), 0o600))

	app := &fakeApp{}
	_, _, err := execute(t, app, "batch", "--input", input, "--output", output, "--budget", "90s")
	require.NoError(t, err)

	require.Len(t, app.companies, 2)
	require.Equal(t, 90*time.Second, app.budget)
	body, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[1], "c-1,Acme,acme.test"))
}

func TestBatchCommandUploadsReport(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("name,url\nAcme,acme.test\n"), 0o600))

	exporter, err := export.NewExporter(memory.NewBlobStore(), sha256.New(), "reports", nil)
	require.NoError(t, err)
	app := &fakeApp{exporter: exporter}

	stdout, stderr, err := execute(t, app, "batch", "--input", input, "--upload", "--limit", "1")
	require.NoError(t, err)
	require.Contains(t, stdout, "Company Key")
	require.True(t, strings.HasPrefix(strings.TrimSpace(stderr), "memory://reports/batch-1/"))
}

func TestServeCommand(t *testing.T) {
	app := &fakeApp{}
	_, _, err := execute(t, app, "serve")
	require.NoError(t, err)
	require.True(t, app.served)
}

func TestReadCompanies(t *testing.T) {
	t.Parallel()

	in := "\ufeffCompany Name, Domain ,ID\nAcme,acme.test,1\n,,\nGlobex,,2\nInitech,initech.test\n"
	got, err := readCompanies(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []leadership.Company{
		{ID: "1", Name: "Acme", Website: "acme.test"},
		{ID: "2", Name: "Globex"},
		{Name: "Initech", Website: "initech.test"},
	}, got)
}

func TestReadCompaniesErrors(t *testing.T) {
	t.Parallel()

	_, err := readCompanies(strings.NewReader(""))
	require.ErrorContains(t, err, "empty")

	_, err = readCompanies(strings.NewReader("name,phone\nAcme,123\n"))
	require.ErrorContains(t, err, "website")
}
