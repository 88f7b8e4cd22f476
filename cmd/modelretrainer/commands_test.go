package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ModelRetrainer/internal/domain"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RETRAINER_CONFIG", "")
	t.Setenv("GITHUB_ENV", "")
	t.Setenv("RETRAINER_WEBHOOK_URL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	t.Setenv("RETRAINER_STORAGE_DRIVER", "badger")
	t.Setenv("RETRAINER_STORAGE_PATH", filepath.Join(t.TempDir(), "store"))
	t.Setenv("RETRAINER_THRESHOLD", "20")
	t.Setenv("RETRAINER_LOG_LEVEL", "error")
	t.Setenv("RETRAINER_MODELS_DIR", filepath.Join(t.TempDir(), "model"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseRecord(t *testing.T) {
	t.Parallel()

	rec, err := parseRecord([]string{"1.5", "2", "30"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2}, rec.Features)
	assert.Equal(t, 30.0, rec.Label)

	_, err = parseRecord([]string{"x", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 1")
}

func TestCLIWorkflow(t *testing.T) {
	setupEnv(t)

	seedFile := filepath.Join(t.TempDir(), "initial.csv")
	require.NoError(t, os.WriteFile(seedFile, []byte("hours_studied,score\n1,12\n2,19\n3,31\n4,42\n5,48\n6,61\n7,69\n8,80\n9,91\n10,99\n"), 0o600))

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending:   0/20")
	assert.Contains(t, out, "model:     none")

	out, err = execute(t, "seed", seedFile)
	require.NoError(t, err)
	assert.Contains(t, out, "registered v1")

	_, err = execute(t, "seed", seedFile)
	require.ErrorIs(t, err, domain.ErrAlreadySeeded)

	out, err = execute(t, "add", "5.5", "56")
	require.NoError(t, err)
	assert.Contains(t, out, "1 pending")

	out, err = execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "not enough data")

	out, err = execute(t, "simulate", "25", "--seed", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "26 pending")

	out, err = execute(t, "--json", "run")
	require.NoError(t, err)
	var run struct {
		Outcome domain.OutcomeKind `json:"outcome"`
		Pending int                `json:"pending"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Contains(t, []domain.OutcomeKind{domain.OutcomePromoted, domain.OutcomeRejected}, run.Outcome)
	assert.Equal(t, 26, run.Pending)

	out, err = execute(t, "--json", "history")
	require.NoError(t, err)
	var history []domain.RegistryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	if run.Outcome == domain.OutcomePromoted {
		assert.Len(t, history, 2)
		assert.FileExists(t, filepath.Join(os.Getenv("RETRAINER_MODELS_DIR"), "v2.json"))
	} else {
		assert.Len(t, history, 1)
	}
}

func TestCLIRejectsBadArguments(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "add", "5")
	require.Error(t, err)

	_, err = execute(t, "simulate", "-3")
	require.Error(t, err)

	_, err = execute(t, "ingest", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestAddAcceptsNegativeValues(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "add", "--", "-1.5", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "1 pending")

	out, err = execute(t, "add", "2.5", "-4")
	require.NoError(t, err, "values after the first are positional")
	assert.Contains(t, out, "2 pending")

	_, err = execute(t, "add", "-1.5", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add -- -1.5 3")

	out, err = execute(t, "--json", "status")
	require.NoError(t, err)
	var report struct {
		Dataset domain.DatasetStatus `json:"dataset"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Dataset.Pending)
}
