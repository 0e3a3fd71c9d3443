package cmdutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/afero"
)

func TestReadPrompt(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/p/prompt.txt", []byte("  build it\n"), 0644)
	_ = afero.WriteFile(fs, "/p/empty.txt", []byte("\n\n"), 0644)

	tests := []struct {
		name    string
		inline  string
		file    string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "inline wins", inline: "hello", file: "/p/prompt.txt", want: "hello"},
		{name: "file trimmed", file: "/p/prompt.txt", want: "build it"},
		{name: "stdin", file: "-", stdin: "from stdin\n", want: "from stdin"},
		{name: "missing", wantErr: true},
		{name: "empty file", file: "/p/empty.txt", wantErr: true},
		{name: "no such file", file: "/p/nope.txt", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadPrompt(fs, strings.NewReader(tt.stdin), tt.inline, tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadPrompt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ReadPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrinter_PlainTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	if IsTerminal(&buf) {
		t.Fatal("a buffer is not a terminal")
	}

	got := p.Table([]string{"ID", "STATUS"}, [][]string{{"a", "done"}, {"b", "failed"}})
	want := "ID\tSTATUS\na\tdone\nb\tfailed\n"
	if got != want {
		t.Errorf("Table() = %q, want %q", got, want)
	}
	if s := p.Status("done"); s != "done" {
		t.Errorf("Status() without a terminal = %q, want plain text", s)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a much longer line", 10, "a much ..."},
		{"anything", 0, "anything"},
		{"\x1b[31mred text here\x1b[0m", 6, "\x1b[31mred..."},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.width)
		// Reset sequences may differ; compare visible text.
		if ansi.Strip(got) != ansi.Strip(tt.want) {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
