package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(NewViper(filepath.Join(t.TempDir(), "none", "config.yaml")))
	if err == nil {
		t.Fatalf("Load() with a missing explicit file should fail, got %+v", s)
	}

	v := NewViper("")
	v.AddConfigPath(t.TempDir())
	s, err = Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if s.AnkiConnect.URL != "http://localhost:8765" {
		t.Errorf("URL = %q", s.AnkiConnect.URL)
	}
	if s.AnkiConnect.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", s.AnkiConnect.Timeout)
	}
	if s.AnkiConnect.RateLimit != 50 {
		t.Errorf("RateLimit = %v", s.AnkiConnect.RateLimit)
	}
	if s.DataDir != "data" || s.LogDir != "logs" || s.LogLevel != "info" {
		t.Errorf("dirs = %q %q %q", s.DataDir, s.LogDir, s.LogLevel)
	}
	if s.Pull.Workers != 5 || s.Sync.ChunkSize != 500 {
		t.Errorf("workers = %d, chunk = %d", s.Pull.Workers, s.Sync.ChunkSize)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `anki_connect:
  url: http://127.0.0.1:9000
  timeout: 5s
data_dir: /srv/anki
pull:
  workers: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	t.Setenv("ANKIVIBE_PULL_WORKERS", "8")
	t.Setenv("ANKIVIBE_LOG_LEVEL", "DEBUG")
	t.Setenv("ANKIVIBE_ANKI_CONNECT_API_KEY", "secret")

	s, err := Load(NewViper(path))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if s.File != path {
		t.Errorf("File = %q, want %q", s.File, path)
	}
	if s.AnkiConnect.URL != "http://127.0.0.1:9000" || s.AnkiConnect.Timeout != 5*time.Second {
		t.Errorf("AnkiConnect = %+v", s.AnkiConnect)
	}
	if s.AnkiConnect.APIKey != "secret" {
		t.Errorf("APIKey = %q, want env override", s.AnkiConnect.APIKey)
	}
	if s.DataDir != "/srv/anki" {
		t.Errorf("DataDir = %q", s.DataDir)
	}
	if s.Pull.Workers != 8 {
		t.Errorf("Workers = %d, want env override 8", s.Pull.Workers)
	}
	if s.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", s.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad level", "log_level: loud\n", "log_level must be one of"},
		{"zero workers", "pull:\n  workers: 0\n", "workers must be at least 1"},
		{"bad url", "anki_connect:\n  url: not a url\n", "url failed url check"},
		{"not yaml", "::: [\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write settings: %v", err)
			}
			_, err := Load(NewViper(path))
			if !errors.Is(err, ErrSettings) {
				t.Fatalf("Load() error = %v, want ErrSettings", err)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func writeProject(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ProjectFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write project: %v", err)
	}
	return path
}

func TestFindProject(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}

	if _, err := FindProject(nested); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("FindProject() error = %v, want ErrProjectNotFound", err)
	}

	want := writeProject(t, filepath.Join(root, "a"), "[project]\n")
	got, err := FindProject(nested)
	if err != nil {
		t.Fatalf("FindProject() failed: %v", err)
	}
	if got != want {
		t.Errorf("FindProject() = %q, want %q", got, want)
	}
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, `
[project]
anki_profile = "User 1"

[[targets]]
name = "Vocab"
model = "Basic"
deck = "Japanese::Vocab"
query = 'deck:"Japanese::Vocab"'
folder = "vocab"

[[targets]]
name = "Root"
model = "Cloze"
deck = "Default"
query = "note:Cloze"
`)

	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() failed: %v", err)
	}
	if p.Project.Name != DefaultProjectName {
		t.Errorf("Name = %q, want default", p.Project.Name)
	}
	if p.Project.AnkiProfile != "User 1" {
		t.Errorf("AnkiProfile = %q", p.Project.AnkiProfile)
	}
	want := []Target{
		{Name: "Vocab", Model: "Basic", Deck: "Japanese::Vocab", Query: `deck:"Japanese::Vocab"`, Folder: "vocab"},
		{Name: "Root", Model: "Cloze", Deck: "Default", Query: "note:Cloze", Folder: "."},
	}
	if diff := cmp.Diff(want, p.Targets); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
	if got := p.TargetDir(p.Targets[0]); got != filepath.Join(dir, "vocab") {
		t.Errorf("TargetDir() = %q", got)
	}
	if got := p.TargetDir(p.Targets[1]); got != dir {
		t.Errorf("TargetDir(.) = %q, want %q", got, dir)
	}
	if got := p.StatePath(); got != filepath.Join(dir, ".anki_vibe.db") {
		t.Errorf("StatePath() = %q", got)
	}
}

func TestLoadProject_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing model",
			content: "[[targets]]\nname = \"A\"\ndeck = \"D\"\nquery = \"q\"\n",
			wantErr: "model is required",
		},
		{
			name:    "duplicate names",
			content: "[[targets]]\nname = \"A\"\nmodel = \"M\"\ndeck = \"D\"\nquery = \"q\"\nfolder = \"a\"\n[[targets]]\nname = \"A\"\nmodel = \"M\"\ndeck = \"D\"\nquery = \"q\"\nfolder = \"b\"\n",
			wantErr: "duplicate target name",
		},
		{
			name:    "shared folder",
			content: "[[targets]]\nname = \"A\"\nmodel = \"M\"\ndeck = \"D\"\nquery = \"q\"\n[[targets]]\nname = \"B\"\nmodel = \"M\"\ndeck = \"D\"\nquery = \"q\"\nfolder = \"./\"\n",
			wantErr: "share folder",
		},
		{
			name:    "bad toml",
			content: "[project\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProject(t, t.TempDir(), tt.content)
			_, err := LoadProject(path)
			if !errors.Is(err, ErrInvalidProject) {
				t.Fatalf("LoadProject() error = %v, want ErrInvalidProject", err)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadProject() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteProjectTemplate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "new")

	path, err := WriteProjectTemplate(dir, `My "Quoted" Deck`, "User 1")
	if err != nil {
		t.Fatalf("WriteProjectTemplate() failed: %v", err)
	}

	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() on the template failed: %v", err)
	}
	if p.Project.Name != `My "Quoted" Deck` || p.Project.AnkiProfile != "User 1" {
		t.Errorf("project = %+v", p.Project)
	}
	if len(p.Targets) != 1 || p.Targets[0].Folder != "vocab_data" {
		t.Errorf("targets = %+v", p.Targets)
	}

	if _, err := WriteProjectTemplate(dir, "Other", ""); !errors.Is(err, ErrProjectExists) {
		t.Errorf("second WriteProjectTemplate() error = %v, want ErrProjectExists", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), `My \"Quoted\" Deck`) {
		t.Error("existing project file was overwritten")
	}
}

func TestProfileRoot(t *testing.T) {
	got, err := ProfileRoot("data", "User 1")
	if err != nil {
		t.Fatalf("ProfileRoot() failed: %v", err)
	}
	if got != filepath.Join("data", "User 1") {
		t.Errorf("ProfileRoot() = %q", got)
	}
	if got := ProfileStatePath(got); got != filepath.Join("data", "User 1", ".anki_vibe.db") {
		t.Errorf("ProfileStatePath() = %q", got)
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		if _, err := ProfileRoot("data", bad); err == nil {
			t.Errorf("ProfileRoot(%q) should fail", bad)
		}
	}
}
