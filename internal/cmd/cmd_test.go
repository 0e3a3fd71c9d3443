package cmd

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/runctl/internal/app"
	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
	"github.com/Iron-Ham/runctl/internal/config"
	"github.com/Iron-Ham/runctl/internal/history"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "runctl" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "runctl")
	}

	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, expected := range []string{"run", "implement", "open", "history", "logs", "config", "analyze"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}

	for _, sub := range []string{"seed", "run", "status", "watch", "reset"} {
		found, _, err := rootCmd.Find([]string{"analyze", sub})
		if err != nil || found.Name() != sub {
			t.Errorf("analyze %s not registered: %v", sub, err)
		}
	}
}

func TestRunMeta(t *testing.T) {
	rt := &app.Runtime{ProjectID: "web"}

	if m := runMeta(rt, "", ""); m != nil {
		t.Errorf("runMeta without output = %+v, want nil", m)
	}
	m := runMeta(rt, "docs/out.md", "analyze-doc")
	if m == nil || m.ProjectID != "web" || m.OutputPath != "docs/out.md" || m.OnComplete != "analyze-doc" {
		t.Errorf("runMeta = %+v", m)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("run-1b4e28ba-2fa1-11d2-883f-0016d3cca427"); got != "run-1b4e28ba" {
		t.Errorf("shortID(uuid run) = %q, want run-1b4e28ba", got)
	}
	if got := shortID("run-1"); got != "run-1" {
		t.Errorf("shortID(short) = %q, want run-1", got)
	}
}

func TestHistoryRows(t *testing.T) {
	p := cmdutil.NewPrinter(nil)
	code := 2
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := historyRows(p, []history.Entry{
		{ID: "run-a", Label: "Terminal 1", Slot: 1, StartedAt: start, DoneAt: start.Add(90 * time.Second), Duration: 90 * time.Second, ExitCode: &code},
		{ID: "run-b", Label: "Analyze: design", StartedAt: start, DoneAt: start.Add(time.Second)},
		{ID: "run-c", Label: "Terminal 2", Slot: 2, StartedAt: start},
	})

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][2] != "1" || rows[0][4] != "1m30s" || rows[0][5] != "2" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][2] != "-" || rows[1][5] != "stopped" {
		t.Errorf("row 1 = %v, want no slot and stopped", rows[1])
	}
	if rows[2][5] != "running" {
		t.Errorf("row 2 = %v, want running", rows[2])
	}
}

func TestParseConfigValue(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()

	tests := []struct {
		key     string
		raw     string
		want    any
		wantErr bool
	}{
		{key: "launcher.stagger_ms", raw: "250", want: 250},
		{key: "launcher.stagger_ms", raw: "soon", wantErr: true},
		{key: "history.enabled", raw: "false", want: false},
		{key: "history.enabled", raw: "maybe", wantErr: true},
		{key: "agent.cli_path", raw: "/bin/agent", want: "/bin/agent"},
		{key: "output.allowed_patterns", raw: "**.md, **.txt,", want: []string{"**.md", "**.txt"}},
		{key: "projects.web", raw: "/src/web", want: "/src/web"},
		{key: "projects.", raw: "/src/web", wantErr: true},
		{key: "nope.key", raw: "1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.raw, func(t *testing.T) {
			got, err := parseConfigValue(tt.key, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseConfigValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if want, ok := tt.want.([]string); ok {
				items, _ := got.([]string)
				if len(items) != len(want) || items[0] != want[0] || items[1] != want[1] {
					t.Errorf("parseConfigValue() = %v, want %v", got, want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("parseConfigValue() = %v (%T), want %v", got, got, tt.want)
			}
		})
	}
}
