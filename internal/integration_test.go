// Package internal contains integration tests that run real processes
// through a fully wired runtime.
package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/runctl/internal/analyze"
	"github.com/Iron-Ham/runctl/internal/app"
	"github.com/Iron-Ham/runctl/internal/config"
	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/orchestrator"
	"github.com/Iron-Ham/runctl/internal/run"
	"github.com/Iron-Ham/runctl/internal/testutil"
)

func newRuntime(t *testing.T, root string, mutate func(*config.Config)) *app.Runtime {
	t.Helper()
	testutil.RequireShell(t)

	cfg := config.Default()
	cfg.Agent.CLIPath = testutil.EchoPromptAgent(t)
	cfg.Logging.Enabled = false
	cfg.Launcher.StaggerMs = 10
	if mutate != nil {
		mutate(cfg)
	}
	rt, err := app.New(cfg, root)
	require.NoError(t, err)
	return rt
}

func TestRuntime_TrackedRunPersistsOutputAndHistory(t *testing.T) {
	root := testutil.SetupProject(t, nil)
	rt := newRuntime(t, root, nil)

	var logs []string
	rt.Bus.Subscribe(event.TypeRunLog, func(e event.Event) {
		logs = append(logs, e.(event.RunLogEvent).Line)
	})
	complete := make(chan event.RunCompleteEvent, 1)
	rt.Bus.Subscribe(event.TypeRunComplete, func(e event.Event) {
		complete <- e.(event.RunCompleteEvent)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, err := rt.Service.LaunchSingle(ctx, orchestrator.SingleRequest{
		ProjectRoot: root,
		Prompt:      "hello from the prompt",
		Slot:        2,
		Meta:        &run.Meta{ProjectID: rt.ProjectID, OutputPath: "notes/out.md"},
	})
	require.NoError(t, err)

	res, err := h.Future.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello from the prompt", res.Stdout)

	select {
	case ev := <-complete:
		assert.Equal(t, h.RunID, ev.RunID)
		assert.Equal(t, "notes/out.md", ev.OutputPath)
	case <-ctx.Done():
		t.Fatal("run complete was not published")
	}

	r, ok := rt.Service.Select(h.RunID)
	require.True(t, ok)
	assert.True(t, r.IsDone())
	assert.Equal(t, "Terminal 2", r.Label)

	// History is recorded after the future resolves.
	rt.Service.Wait()
	entries, err := rt.History.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, h.RunID, entries[0].ID)
	assert.Equal(t, 2, entries[0].Slot)

	require.NoError(t, rt.Close())
	data, err := os.ReadFile(filepath.Join(root, "notes", "out.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello from the prompt", strings.TrimSpace(string(data)))
	assert.Equal(t, []string{"hello from the prompt"}, logs)
}

func TestRuntime_ImplementAllRunsThreeSlots(t *testing.T) {
	root := testutil.SetupProject(t, nil)
	rt := newRuntime(t, root, nil)
	defer func() { _ = rt.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	handles, err := rt.Service.ImplementAll(ctx, root, [orchestrator.MaxSlot]string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, handles, 3)

	for i, h := range handles {
		res, err := h.Future.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, i+1, h.Slot)
		assert.Equal(t, []string{"one", "two", "three"}[i], res.Stdout)
	}
}

func TestRuntime_AnalyzeQueueEndToEnd(t *testing.T) {
	root := testutil.SetupProject(t, map[string]string{
		"catalog.yaml": `jobs:
  - id: api
    prompt_path: docs/api.prompt.md
    output_path: docs/api.md
  - id: db
    prompt_path: docs/db.prompt.md
    output_path: docs/db.md
  - id: ui
    prompt_path: docs/ui.prompt.md
    output_path: docs/ui.md
  - id: missing
    prompt_path: docs/missing.prompt.md
    output_path: docs/missing.md
`,
		"docs/api.prompt.md": "API document body",
		"docs/db.prompt.md":  "DB document body",
		"docs/ui.prompt.md":  "UI document body",
	})
	rt := newRuntime(t, root, func(cfg *config.Config) {
		cfg.Analyze.CatalogFile = "catalog.yaml"
		cfg.Analyze.MinDocumentLength = 5
	})

	catalog, err := rt.Catalog()
	require.NoError(t, err)
	store := rt.QueueStore()
	require.NoError(t, store.Write(analyze.Seed(catalog)))

	actor := analyze.NewActor(store, rt.Logger)
	defer actor.Close()

	var batches []int
	rt.Bus.Subscribe(event.TypeAnalyzeBatch, func(e event.Event) {
		batches = append(batches, len(e.(event.AnalyzeBatchStartedEvent).JobIDs))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	progress, err := analyze.NewScheduler(actor, rt.JobRunner(),
		analyze.WithConcurrency(3),
		analyze.WithBus(rt.Bus),
		analyze.WithLogger(rt.Logger),
	).Run(ctx)
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	assert.Equal(t, analyze.Progress{Completed: 3, Failed: 1, Total: 4, Batches: 2}, progress)
	assert.Equal(t, []int{3, 1}, batches)

	q, err := store.Read()
	require.NoError(t, err)
	for _, j := range q.Jobs {
		want := analyze.StatusDone
		if j.ID == "missing" {
			want = analyze.StatusFailed
		}
		assert.Equal(t, want, j.Status, "job %s", j.ID)
	}

	for id, body := range map[string]string{"api": "API document body", "db": "DB document body", "ui": "UI document body"} {
		data, err := os.ReadFile(filepath.Join(root, "docs", id+".md"))
		require.NoError(t, err, "document for %s", id)
		assert.Contains(t, string(data), body)
	}
	_, err = os.Stat(filepath.Join(root, "docs", "missing.md"))
	assert.True(t, os.IsNotExist(err))
}
