// Package localrepo reads and writes collection folders.
//
// A collection folder looks like:
//
//	<collection>/
//	  config.yaml          model name, description, template name map
//	  notes.yaml           ordered list of notes
//	  style.css            model stylesheet
//	  <tpl>_front.html     one pair per card template
//	  <tpl>_back.html
//
// All file access goes through an afero.Fs so tests can run in memory.
package localrepo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/hieucao/anki-vibe/internal/schema"
)

// File names inside a collection folder.
const (
	NotesFile  = "notes.yaml"
	ConfigFile = "config.yaml"
	StyleFile  = "style.css"

	frontSuffix = "_front.html"
	backSuffix  = "_back.html"
)

// ErrNotFound is returned when a collection file does not exist.
var ErrNotFound = errors.New("not found")

// Repository gives access to collection folders on a filesystem.
type Repository struct {
	fs afero.Fs
}

// New creates a Repository over fsys.
func New(fsys afero.Fs) *Repository {
	return &Repository{fs: fsys}
}

// Fs returns the underlying filesystem.
func (r *Repository) Fs() afero.Fs {
	return r.fs
}

// Collections lists the collection folders directly under root, sorted by
// name. Hidden entries and plain files are skipped. A missing root yields
// no collections.
func (r *Repository) Collections(root string) ([]string, error) {
	entries, err := afero.ReadDir(r.fs, root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(root, e.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// EnsureDir creates a collection folder.
func (r *Repository) EnsureDir(dir string) error {
	if err := r.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// RemoveCollection deletes a collection folder and everything in it.
func (r *Repository) RemoveCollection(dir string) error {
	if err := r.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}

// ReadConfig reads config.yaml. A missing file returns ErrNotFound.
func (r *Repository) ReadConfig(dir string) (*schema.ModelConfig, error) {
	path := filepath.Join(dir, ConfigFile)
	data, err := afero.ReadFile(r.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg schema.ModelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteConfig writes config.yaml.
func (r *Repository) WriteConfig(dir string, cfg *schema.ModelConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return r.writeFile(filepath.Join(dir, ConfigFile), data)
}

// ReadStyle reads style.css. A missing file reads as empty.
func (r *Repository) ReadStyle(dir string) (string, error) {
	data, err := afero.ReadFile(r.fs, filepath.Join(dir, StyleFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read style: %w", err)
	}
	return string(data), nil
}

// WriteStyle writes style.css.
func (r *Repository) WriteStyle(dir, css string) error {
	return r.writeFile(filepath.Join(dir, StyleFile), []byte(css))
}

// ReadTemplates reads every <stem>_front.html with its matching back file,
// sorted by stem. A missing back file reads as empty.
func (r *Repository) ReadTemplates(dir string) ([]schema.TemplateFile, error) {
	matches, err := afero.Glob(r.fs, filepath.Join(dir, "*"+frontSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	sort.Strings(matches)

	files := make([]schema.TemplateFile, 0, len(matches))
	for _, front := range matches {
		stem := strings.TrimSuffix(filepath.Base(front), frontSuffix)
		frontData, err := afero.ReadFile(r.fs, front)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", front, err)
		}
		backData, err := afero.ReadFile(r.fs, filepath.Join(dir, stem+backSuffix))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read back template for %s: %w", stem, err)
		}
		files = append(files, schema.TemplateFile{Stem: stem, Front: string(frontData), Back: string(backData)})
	}
	return files, nil
}

// WriteTemplate writes one template pair.
func (r *Repository) WriteTemplate(dir string, tpl schema.TemplateFile) error {
	if err := r.writeFile(filepath.Join(dir, tpl.Stem+frontSuffix), []byte(tpl.Front)); err != nil {
		return err
	}
	return r.writeFile(filepath.Join(dir, tpl.Stem+backSuffix), []byte(tpl.Back))
}

// IsTemplateFile reports whether name is a front or back template file.
func IsTemplateFile(name string) bool {
	return strings.HasSuffix(name, frontSuffix) || strings.HasSuffix(name, backSuffix)
}

// writeFile replaces path through a temporary file so readers never see
// a half-written file.
func (r *Repository) writeFile(path string, data []byte) error {
	if err := r.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := r.fs.Rename(tmp, path); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// remove deletes path, ignoring a missing file.
func (r *Repository) remove(path string) error {
	if err := r.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
