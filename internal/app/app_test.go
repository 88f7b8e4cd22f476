package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ModelRetrainer/internal/config"
	"ModelRetrainer/internal/dataset"
	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/infrastructure/importer"
	"ModelRetrainer/internal/infrastructure/kv"
	"ModelRetrainer/internal/infrastructure/notify"
)

func testConfig(threshold int) config.Config {
	return config.Config{
		Pipeline: config.PipelineConfig{Threshold: threshold, SplitRatio: 0.2, RandomSeed: 42},
		Storage:  config.StorageConfig{Driver: config.DriverMemory},
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
	}
}

func newTestApp(t *testing.T, cfg config.Config) *Application {
	t.Helper()
	application, err := newWithStore(cfg, kv.NewMemoryStore(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	return application
}

func writeCSV(t *testing.T, records []domain.Record) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("hours_studied,score\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%g,%g\n", r.Features[0], r.Label)
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestSeedStoresHistoryWithoutPending(t *testing.T) {
	t.Parallel()
	application := newTestApp(t, testConfig(10))
	ctx := context.Background()

	path := writeCSV(t, dataset.Simulate(50, rand.New(rand.NewSource(7))))
	entry, err := application.Seed(ctx, path, "", importer.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Version)

	report, err := application.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Dataset.Pending)
	assert.Equal(t, 50, report.Dataset.Total)
	require.NotNil(t, report.Production)
	assert.Equal(t, 1, report.Production.Version)

	_, err = application.Seed(ctx, path, "", importer.Options{})
	require.ErrorIs(t, err, domain.ErrAlreadySeeded)

	report, err = application.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, report.Dataset.Total)
}

func TestIngestThenRun(t *testing.T) {
	t.Parallel()
	application := newTestApp(t, testConfig(30))
	ctx := context.Background()

	_, err := application.Seed(ctx, writeCSV(t, dataset.Simulate(40, rand.New(rand.NewSource(1)))), "csv", importer.Options{})
	require.NoError(t, err)

	outcome, err := application.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotEnoughData, outcome.Kind)

	n, status, err := application.Ingest(ctx, writeCSV(t, dataset.Simulate(30, rand.New(rand.NewSource(2)))), "", importer.Options{})
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, 30, status.Pending)

	outcome, err = application.RunOnce(ctx)
	require.NoError(t, err)
	require.Contains(t, []domain.OutcomeKind{domain.OutcomePromoted, domain.OutcomeRejected}, outcome.Kind)

	history, err := application.History(ctx)
	require.NoError(t, err)
	report, err := application.Status(ctx)
	require.NoError(t, err)

	if outcome.Kind == domain.OutcomePromoted {
		assert.Equal(t, 2, outcome.Version)
		assert.Len(t, history, 2)
		assert.Equal(t, 0, report.Dataset.Pending)
		assert.Greater(t, outcome.Candidate.R2, outcome.Incumbent.R2)
	} else {
		assert.Len(t, history, 1)
		assert.Equal(t, 30, report.Dataset.Pending)
		assert.LessOrEqual(t, outcome.Candidate.R2, outcome.Incumbent.R2)
	}
}

func TestAddRecord(t *testing.T) {
	t.Parallel()
	application := newTestApp(t, testConfig(10))

	status, err := application.AddRecord(context.Background(), domain.Record{Features: []float64{3}, Label: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending)

	_, err = application.AddRecord(context.Background(), domain.Record{Features: []float64{3, 4}, Label: 30})
	var invalid *domain.InvalidRecordError
	require.ErrorAs(t, err, &invalid)
}

func TestRunWithEmptyRegistryFails(t *testing.T) {
	t.Parallel()
	application := newTestApp(t, testConfig(5))
	ctx := context.Background()

	_, err := application.AddRecords(ctx, dataset.Simulate(5, rand.New(rand.NewSource(3))))
	require.NoError(t, err)

	outcome, err := application.RunOnce(ctx)
	require.ErrorIs(t, err, domain.ErrEmptyRegistry)
	assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
}

func TestBuildNotifiers(t *testing.T) {
	t.Parallel()

	assert.Nil(t, buildNotifiers(config.Config{}))

	channels := config.NotificationConfig{
		EnvFile:  filepath.Join(t.TempDir(), "env"),
		Webhook:  config.WebhookConfig{URL: "http://localhost:1"},
		Telegram: config.TelegramConfig{BotToken: "t"},
	}
	assert.Len(t, notificationChannels(channels), 2)

	n := buildNotifiers(config.Config{Notifications: channels})
	require.IsType(t, notify.Multi{}, n)
	assert.Len(t, n, 2)

	exported := buildNotifiers(config.Config{Models: config.ModelsConfig{Dir: t.TempDir()}, Notifications: channels})
	require.IsType(t, notify.Prerequisite{}, exported)
	assert.IsType(t, &notify.ArtifactDir{}, exported.(notify.Prerequisite).Required)
	assert.Len(t, exported.(notify.Prerequisite).Then, 2)
}

func TestPromotionExportsModelFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(100)
	cfg.Models.Dir = filepath.Join(t.TempDir(), "model")
	cfg.Notifications.EnvFile = filepath.Join(t.TempDir(), "github_env")
	application := newTestApp(t, cfg)
	ctx := context.Background()

	// Alternating labels leave the seed model with nothing to explain.
	seed := make([]domain.Record, 40)
	for i := range seed {
		seed[i] = domain.Record{Features: []float64{float64(1 + i%10)}, Label: float64(100 * (i % 2))}
	}
	_, err := application.Seed(ctx, writeCSV(t, seed), "", importer.Options{})
	require.NoError(t, err)

	_, err = application.AddRecords(ctx, dataset.Simulate(200, rand.New(rand.NewSource(5))))
	require.NoError(t, err)

	outcome, err := application.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePromoted, outcome.Kind)
	require.NoError(t, outcome.NotifyErr)

	env, err := os.ReadFile(cfg.Notifications.EnvFile)
	require.NoError(t, err)
	var modelFile string
	for _, line := range strings.Split(strings.TrimSpace(string(env)), "\n") {
		if name, ok := strings.CutPrefix(line, "MODEL_FILE="); ok {
			modelFile = name
		}
	}
	require.Equal(t, "v2.json", modelFile)

	raw, err := os.ReadFile(filepath.Join(cfg.Models.Dir, modelFile))
	require.NoError(t, err)
	var exported domain.RegistryEntry
	require.NoError(t, json.Unmarshal(raw, &exported))

	current, err := application.registry.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, current.Version, exported.Version)
	assert.Equal(t, current.Artifact, exported.Artifact)
	assert.Equal(t, current.Metrics, exported.Metrics)
	assert.True(t, current.CreatedAt.Equal(exported.CreatedAt))
}

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem, err := openStore(ctx, config.StorageConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	disk, err := openStore(ctx, config.StorageConfig{Driver: config.DriverBadger, Path: t.TempDir()}, nil)
	require.NoError(t, err)
	require.NoError(t, disk.Close())

	_, err = openStore(ctx, config.StorageConfig{Driver: "sqlite"}, nil)
	require.Error(t, err)
}

func TestNewOpensConfiguredBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(10)
	cfg.Storage = config.StorageConfig{Driver: config.DriverBadger, Path: t.TempDir()}

	application, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, application.Close())
}
