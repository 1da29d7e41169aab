package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/hieucao/anki-vibe/internal/schema"
	"github.com/hieucao/anki-vibe/internal/state"
)

// ProjectFile is the project file name searched for from the working
// directory upwards.
const ProjectFile = "anki-vibe.toml"

// DefaultProjectName is used when [project] has no name.
const DefaultProjectName = "My Anki Project"

const maxSearchDepth = 100

var (
	// ErrProjectNotFound means no anki-vibe.toml exists in any parent.
	ErrProjectNotFound = errors.New("project file not found")
	// ErrInvalidProject marks a project file that cannot be used.
	ErrInvalidProject = errors.New("invalid project file")
	// ErrProjectExists is returned by init when the file is already there.
	ErrProjectExists = errors.New("project file already exists")
)

// ProjectMeta is the [project] table.
type ProjectMeta struct {
	Name        string `toml:"name"`
	AnkiProfile string `toml:"anki_profile"`
}

// Target is one [[targets]] entry: a folder of notes tied to a model, a
// default deck and the search that selects its notes on pull.
type Target struct {
	Name   string `toml:"name" validate:"required"`
	Model  string `toml:"model" validate:"required"`
	Deck   string `toml:"deck" validate:"required"`
	Query  string `toml:"query" validate:"required"`
	Folder string `toml:"folder"`
}

// Project is a parsed anki-vibe.toml.
type Project struct {
	Project ProjectMeta `toml:"project"`
	Targets []Target    `toml:"targets" validate:"dive"`

	path string
}

// FindProject looks for anki-vibe.toml in start and its parents.
func FindProject(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}
	for i := 0; i < maxSearchDepth; i++ {
		candidate := filepath.Join(dir, ProjectFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", ErrProjectNotFound
}

// LoadProject reads and validates a project file.
func LoadProject(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	var p Project
	if _, err := toml.DecodeFile(abs, &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", abs, ErrProjectNotFound)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProject, abs, err)
	}
	p.path = abs

	if p.Project.Name == "" {
		p.Project.Name = DefaultProjectName
	}
	for i := range p.Targets {
		if p.Targets[i].Folder == "" {
			p.Targets[i].Folder = "."
		}
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProject, abs, err)
	}
	return &p, nil
}

func (p *Project) validate() error {
	if err := schema.Validate(p); err != nil {
		return err
	}
	names := make(map[string]bool, len(p.Targets))
	folders := make(map[string]string, len(p.Targets))
	for _, t := range p.Targets {
		if names[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		names[t.Name] = true

		dir := p.TargetDir(t)
		if other, ok := folders[dir]; ok {
			return fmt.Errorf("targets %q and %q share folder %s", other, t.Name, t.Folder)
		}
		folders[dir] = t.Name
	}
	return nil
}

// Path returns the project file path.
func (p *Project) Path() string {
	return p.path
}

// Dir returns the directory holding the project file.
func (p *Project) Dir() string {
	return filepath.Dir(p.path)
}

// TargetDir resolves a target's folder relative to the project file.
func (p *Project) TargetDir(t Target) string {
	if filepath.IsAbs(t.Folder) {
		return filepath.Clean(t.Folder)
	}
	return filepath.Join(p.Dir(), t.Folder)
}

// StatePath is the project's state database, next to the project file.
func (p *Project) StatePath() string {
	return filepath.Join(p.Dir(), state.Filename)
}

// ProfileRoot is the whole-profile data folder for a profile.
func ProfileRoot(dataDir, profile string) (string, error) {
	if profile == "" || profile == "." || profile == ".." || strings.ContainsAny(profile, `/\`) {
		return "", fmt.Errorf("invalid profile name %q", profile)
	}
	return filepath.Join(dataDir, profile), nil
}

// ProfileStatePath is the state database for a whole-profile root.
func ProfileStatePath(root string) string {
	return filepath.Join(root, state.Filename)
}

const projectTemplate = `# Anki Vibe project configuration

[project]
name = %s
# Anki profile this project talks to (optional; detected when empty)
anki_profile = %s

# --- Target 1: a vocabulary deck ---
[[targets]]
name = "Vocabulary"
# Note type in Anki. Must match exactly.
model = "Basic"
# Deck for newly created notes
deck = "Default"
# Search used by pull, e.g. 'deck:Default note:Basic'
query = 'deck:Default note:Basic'
# Folder holding notes.yaml, relative to this file
folder = "vocab_data"

# --- Target 2: uncomment to use ---
# [[targets]]
# name = "Kanji"
# model = "Kanji Model"
# deck = "Japanese::Kanji"
# query = 'tag:kanji'
# folder = "kanji_data"
`

// WriteProjectTemplate creates a commented anki-vibe.toml in dir. It
// never overwrites an existing file.
func WriteProjectTemplate(dir, name, profile string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, ProjectFile)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return path, ErrProjectExists
	}
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, projectTemplate, tomlString(name), tomlString(profile)); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// tomlString quotes s as a TOML basic string.
func tomlString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}
