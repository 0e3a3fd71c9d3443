package analyze

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/runctl/internal/errors"
)

// DefaultDocsRoot is the project-relative directory holding prompts and
// generated documents.
const DefaultDocsRoot = ".cursor"

const (
	ideasDir   = "0. ideas"
	projectDir = "1. project"
)

// defaultJobIDs is the built-in catalog order, which is also run order.
var defaultJobIDs = []string{
	"ideas",
	"project",
	"design",
	"architecture",
	"testing",
	"documentation",
	"frontend",
	"backend",
}

// CatalogEntry describes one job before it is queued.
type CatalogEntry struct {
	ID         string `yaml:"id" toml:"id"`
	PromptPath string `yaml:"prompt_path" toml:"prompt_path"`
	OutputPath string `yaml:"output_path" toml:"output_path"`
}

// Catalog is an ordered list of entries.
type Catalog struct {
	Jobs []CatalogEntry `yaml:"jobs" toml:"jobs"`
}

// DefaultCatalog returns the built-in analysis documents under docsRoot.
func DefaultCatalog(docsRoot string) Catalog {
	if docsRoot == "" {
		docsRoot = DefaultDocsRoot
	}
	root := filepath.ToSlash(docsRoot)

	entries := make([]CatalogEntry, 0, len(defaultJobIDs))
	for _, id := range defaultJobIDs {
		entries = append(entries, CatalogEntry{
			ID:         id,
			PromptPath: promptPath(root, id),
			OutputPath: outputPath(root, id),
		})
	}
	return Catalog{Jobs: entries}
}

func promptPath(root, id string) string {
	if id == "ideas" {
		return path.Join(root, ideasDir, "ideas.prompt.md")
	}
	return path.Join(root, projectDir, id+".prompt.md")
}

func outputPath(root, id string) string {
	switch id {
	case "ideas":
		return path.Join(root, ideasDir, "ideas.md")
	case "project":
		return path.Join(root, projectDir, "PROJECT-INFO.md")
	case "frontend", "backend":
		return path.Join(root, projectDir, id+"-analysis.md")
	default:
		return path.Join(root, projectDir, id+".md")
	}
}

// LoadCatalog reads a catalog from a .yaml, .yml, or .toml file.
func LoadCatalog(fs afero.Fs, file string) (Catalog, error) {
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	case ".toml":
		err = toml.Unmarshal(data, &c)
	default:
		return Catalog{}, errors.NewValidationError(fmt.Sprintf("unsupported catalog format %q", ext)).
			WithField("analyze.catalog_file").WithValue(file)
	}
	if err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", file, err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks that ids are unique and every entry has both paths.
func (c Catalog) Validate() error {
	if len(c.Jobs) == 0 {
		return errors.NewValidationError("catalog has no jobs").WithField("jobs")
	}
	seen := make(map[string]bool, len(c.Jobs))
	for i, e := range c.Jobs {
		switch {
		case e.ID == "":
			return errors.NewValidationError(fmt.Sprintf("job %d has no id", i)).WithField("jobs.id")
		case seen[e.ID]:
			return errors.NewValidationError(fmt.Sprintf("duplicate job id %q", e.ID)).WithField("jobs.id").WithValue(e.ID)
		case e.PromptPath == "" || e.OutputPath == "":
			return errors.NewValidationError(fmt.Sprintf("job %q needs prompt_path and output_path", e.ID)).WithField("jobs")
		}
		seen[e.ID] = true
	}
	return nil
}

// Seed builds a queue with every catalog entry pending, in catalog order.
func Seed(c Catalog) QueueData {
	q := QueueData{Jobs: make([]Job, 0, len(c.Jobs))}
	for _, e := range c.Jobs {
		q.Jobs = append(q.Jobs, Job{
			ID:         e.ID,
			PromptPath: e.PromptPath,
			OutputPath: e.OutputPath,
			Status:     StatusPending,
		})
	}
	return q
}
