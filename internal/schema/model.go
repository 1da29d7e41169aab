package schema

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hieucao/anki-vibe/internal/fingerprint"
)

// ModelConfig is the content of a collection's config.yaml.
type ModelConfig struct {
	AnkiModelName string `yaml:"anki_model_name" validate:"required"`
	Description   string `yaml:"description,omitempty"`

	// Templates maps a template file stem (e.g. "card_1") to the Anki
	// template name (e.g. "Card 1"). Only mapped templates are pushed.
	Templates map[string]string `yaml:"templates,omitempty"`
}

// Validate checks the config names a model.
func (c *ModelConfig) Validate() error {
	return validateStruct(c)
}

// DefaultDescription is the description written for pulled models.
func DefaultDescription(model string) string {
	return "Auto-generated config for model '" + model + "'"
}

// TemplateFile is a front/back pair read from disk.
type TemplateFile struct {
	Stem  string
	Front string
	Back  string
}

// Model is the structure of a note type: its stylesheet and templates
// keyed by Anki template name.
type Model struct {
	CSS       string
	Templates map[string]fingerprint.Template

	// Unmapped lists template names that were derived from file names
	// because config.yaml has no mapping for them. They take part in the
	// fingerprint but are never pushed.
	Unmapped []string
}

// Hash returns the model's structure fingerprint.
func (m *Model) Hash() string {
	return fingerprint.Model(m.CSS, m.Templates)
}

// Pushable returns the templates that have an explicit name mapping.
func (m *Model) Pushable() map[string]fingerprint.Template {
	skip := make(map[string]bool, len(m.Unmapped))
	for _, name := range m.Unmapped {
		skip[name] = true
	}
	out := make(map[string]fingerprint.Template, len(m.Templates))
	for name, tpl := range m.Templates {
		if !skip[name] {
			out[name] = tpl
		}
	}
	return out
}

// BuildModel resolves template files to Anki template names using the
// config's mapping. Unmapped stems fall back to a name derived from the
// file stem ("card_1" -> "Card 1").
func BuildModel(css string, files []TemplateFile, mapping map[string]string) *Model {
	m := &Model{
		CSS:       css,
		Templates: make(map[string]fingerprint.Template, len(files)),
	}
	for _, f := range files {
		name, ok := mapping[f.Stem]
		if !ok || name == "" {
			name = TemplateNameFromStem(f.Stem)
			m.Unmapped = append(m.Unmapped, name)
		}
		m.Templates[name] = fingerprint.Template{Front: f.Front, Back: f.Back}
	}
	return m
}

// TemplateNameFromStem guesses an Anki template name from a file stem.
func TemplateNameFromStem(stem string) string {
	words := strings.Fields(strings.ReplaceAll(stem, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var (
	unsafeChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespace  = regexp.MustCompile(`\s+`)
	underscores = regexp.MustCompile(`_+`)
)

// SanitizeFilename turns an Anki name into a safe file or folder name.
func SanitizeFilename(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = whitespace.ReplaceAllString(s, "_")
	s = underscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// TemplateStem returns the file stem used for an Anki template name.
func TemplateStem(templateName string) string {
	return strings.ToLower(SanitizeFilename(templateName))
}
