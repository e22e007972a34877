package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/ratecard"
	"github.com/tellquote/tellquote/internal/rates"
	"github.com/tellquote/tellquote/jobs"
)

type staticFetcher struct{ snap rates.Snapshot }

func (s staticFetcher) Fetch(context.Context) rates.Snapshot { return s.snap }

type fakeQueue struct {
	triggered []string
	closed    bool
}

func (q *fakeQueue) Trigger(_ context.Context, name string) (*asynq.TaskInfo, error) {
	if name != jobs.TaskRatesRefresh && name != jobs.TaskQuotesSync {
		return nil, errors.New("unsupported")
	}
	q.triggered = append(q.triggered, name)
	return &asynq.TaskInfo{ID: "t-1", Type: name, Queue: jobs.QueueDefault}, nil
}

func (q *fakeQueue) InspectQueue(context.Context) (QueueStats, error) {
	return QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, nil
}

func (q *fakeQueue) Close() error {
	q.closed = true
	return nil
}

func run(t *testing.T, deps Deps, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	deps.Out = &out
	deps.Err = &errOut
	root := NewRootCommand(deps)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func liveDeps() Deps {
	fetched := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	table := currency.FallbackRates()
	table["GBP"] = 0.8
	return Deps{
		Rates: func(context.Context) (RateFetcher, error) {
			return staticFetcher{snap: rates.Snapshot{Rates: table, Timestamp: &fetched, Source: rates.SourceLive}}, nil
		},
	}
}

func TestConvertFallback(t *testing.T) {
	out, _, err := run(t, Deps{}, "convert", "--amount", "100", "--to", "gbp")
	require.NoError(t, err)
	assert.Contains(t, out, "$100.00 = £79.00")
	assert.Contains(t, out, "fallback")
}

func TestConvertLiveJSON(t *testing.T) {
	out, _, err := run(t, liveDeps(), "convert", "--amount", "50", "--from", "USD", "--to", "GBP", "--live", "--json")
	require.NoError(t, err)

	var got conversion
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 40, got.Result, 1e-9)
	assert.InDelta(t, 0.8, got.Rate, 1e-9)
	assert.Equal(t, rates.SourceLive, got.Source)
	assert.Equal(t, "£40.00", got.Formatted)
	require.NotNil(t, got.Timestamp)
}

func TestConvertErrors(t *testing.T) {
	_, _, err := run(t, Deps{}, "convert", "--amount", "1", "--to", "POUND")
	assert.ErrorContains(t, err, "3 letters")

	_, _, err = run(t, Deps{}, "convert", "--amount", "1")
	assert.Error(t, err, "--to is required")

	_, _, err = run(t, Deps{}, "convert", "--amount", "1", "--to", "GBP", "--live")
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestRatesTable(t *testing.T) {
	out, _, err := run(t, liveDeps(), "rates")
	require.NoError(t, err)
	assert.Contains(t, out, "source: live (fetched 2025-06-01T09:00:00Z)")
	assert.Regexp(t, `GBP\s+0\.8000\s+British Pound`, out)

	out, _, err = run(t, liveDeps(), "rates", "--json")
	require.NoError(t, err)
	var snap rates.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.InDelta(t, 0.8, snap.Rates["GBP"], 1e-9)
}

func TestRateCardImportExport(t *testing.T) {
	svc := ratecard.NewService(ratecard.NewMemoryRepository(), nil)
	deps := Deps{
		RateCard: func(context.Context) (RateCardStore, func(), error) { return svc, nil, nil },
	}
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,section,name,description,unit,SEA_cost,SEA_charge\n"+
		",crew,Camera Operator,Full day,day,300,450\n"+
		",crew,,missing name,day,1,2\n"), 0o600))

	out, errOut, err := run(t, deps, "ratecard", "import", in)
	require.NoError(t, err)
	assert.Contains(t, out, "created 1, updated 0, skipped 1")
	assert.Contains(t, errOut, "line 3")

	target := filepath.Join(dir, "out.csv")
	_, _, err = run(t, deps, "ratecard", "export", target)
	require.NoError(t, err)
	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Camera Operator")

	out, _, err = run(t, deps, "ratecard", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "Camera Operator")

	_, _, err = run(t, deps, "ratecard", "import", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestJobsCommands(t *testing.T) {
	queue := &fakeQueue{}
	deps := Deps{Jobs: func() (JobQueue, error) { return queue, nil }}

	out, _, err := run(t, deps, "jobs", "trigger", jobs.TaskRatesRefresh)
	require.NoError(t, err)
	assert.Equal(t, "enqueued rates:refresh as t-1 on default\n", out)
	assert.True(t, queue.closed)

	out, _, err = run(t, deps, "jobs", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending 2")

	_, _, err = run(t, deps, "jobs", "trigger", "mail:send")
	assert.Error(t, err)
	assert.Equal(t, []string{jobs.TaskRatesRefresh}, queue.triggered)
}

func TestServeIsDefault(t *testing.T) {
	served := 0
	deps := Deps{Serve: func(context.Context) error { served++; return nil }}
	_, _, err := run(t, deps)
	require.NoError(t, err)
	_, _, err = run(t, deps, "serve")
	require.NoError(t, err)
	assert.Equal(t, 2, served)

	_, _, err = run(t, Deps{})
	assert.ErrorIs(t, err, errNotConfigured)
}
