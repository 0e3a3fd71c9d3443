package analyze

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/runctl/internal/errors"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog("")
	require.NoError(t, c.Validate())
	require.Len(t, c.Jobs, 8)

	byID := make(map[string]CatalogEntry)
	var order []string
	for _, e := range c.Jobs {
		byID[e.ID] = e
		order = append(order, e.ID)
	}
	assert.Equal(t, []string{"ideas", "project", "design", "architecture", "testing", "documentation", "frontend", "backend"}, order)

	assert.Equal(t, ".cursor/0. ideas/ideas.prompt.md", byID["ideas"].PromptPath)
	assert.Equal(t, ".cursor/0. ideas/ideas.md", byID["ideas"].OutputPath)
	assert.Equal(t, ".cursor/1. project/project.prompt.md", byID["project"].PromptPath)
	assert.Equal(t, ".cursor/1. project/PROJECT-INFO.md", byID["project"].OutputPath)
	assert.Equal(t, ".cursor/1. project/design.md", byID["design"].OutputPath)
	assert.Equal(t, ".cursor/1. project/frontend-analysis.md", byID["frontend"].OutputPath)
	assert.Equal(t, ".cursor/1. project/backend-analysis.md", byID["backend"].OutputPath)
}

func TestDefaultCatalog_CustomRoot(t *testing.T) {
	c := DefaultCatalog("docs/ai")
	assert.Equal(t, "docs/ai/1. project/testing.prompt.md", c.Jobs[4].PromptPath)
}

func TestSeed(t *testing.T) {
	q := Seed(DefaultCatalog(""))
	require.Len(t, q.Jobs, 8)
	assert.Equal(t, 8, q.Count(StatusPending))
	assert.Equal(t, "ideas", q.Jobs[0].ID)
}

func TestLoadCatalog(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/catalog.yaml", []byte(`
jobs:
  - id: api
    prompt_path: docs/api.prompt.md
    output_path: docs/api.md
  - id: db
    prompt_path: docs/db.prompt.md
    output_path: docs/db.md
`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/cfg/catalog.toml", []byte(`
[[jobs]]
id = "api"
prompt_path = "docs/api.prompt.md"
output_path = "docs/api.md"
`), 0644))

	y, err := LoadCatalog(fs, "/cfg/catalog.yaml")
	require.NoError(t, err)
	require.Len(t, y.Jobs, 2)
	assert.Equal(t, CatalogEntry{ID: "db", PromptPath: "docs/db.prompt.md", OutputPath: "docs/db.md"}, y.Jobs[1])

	tm, err := LoadCatalog(fs, "/cfg/catalog.toml")
	require.NoError(t, err)
	require.Len(t, tm.Jobs, 1)
	assert.Equal(t, "docs/api.md", tm.Jobs[0].OutputPath)
}

func TestLoadCatalog_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.json", []byte(`{}`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/dup.yaml", []byte(`
jobs:
  - {id: a, prompt_path: p, output_path: o}
  - {id: a, prompt_path: p, output_path: o}
`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/empty.yaml", []byte("jobs: []\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/nopath.yaml", []byte("jobs:\n  - {id: a}\n"), 0644))

	for _, file := range []string{"/c.json", "/dup.yaml", "/empty.yaml", "/nopath.yaml"} {
		_, err := LoadCatalog(fs, file)
		assert.Truef(t, errors.Is(err, errors.ErrInvalidInput), "%s: err = %v", file, err)
	}

	_, err := LoadCatalog(fs, "/missing.yaml")
	assert.Error(t, err)
}
