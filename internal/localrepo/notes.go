package localrepo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/hieucao/anki-vibe/internal/schema"
)

// blockThreshold is the length above which pulled values use block style.
const blockThreshold = 60

// Entry is one decoded note with its position in the file.
type Entry struct {
	Index int
	Line  int
	Note  schema.Note
	Err   error // set when the entry could not be decoded
}

// Notes is a parsed notes.yaml. It keeps the YAML node tree so ids can be
// written back without disturbing comments, ordering or quoting.
type Notes struct {
	Path    string
	Entries []Entry

	doc   *yaml.Node
	items []*yaml.Node
	dirty bool
}

// ReadNotes parses notes.yaml in dir. A missing file returns ErrNotFound.
// Entries that fail to decode are returned with Err set; the rest of the
// file is still usable.
func (r *Repository) ReadNotes(dir string) (*Notes, error) {
	path := filepath.Join(dir, NotesFile)
	data, err := afero.ReadFile(r.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	n := &Notes{Path: path}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		// Empty file.
		return n, nil
	}
	n.doc = &doc

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return n, nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("failed to parse %s: expected a list of notes at line %d", path, root.Line)
	}

	n.items = root.Content
	n.Entries = make([]Entry, len(root.Content))
	for i, item := range root.Content {
		e := Entry{Index: i, Line: item.Line}
		if item.Kind != yaml.MappingNode {
			e.Err = fmt.Errorf("line %d: expected a mapping", item.Line)
		} else if err := item.Decode(&e.Note); err != nil {
			e.Err = fmt.Errorf("line %d: %w", item.Line, err)
		}
		n.Entries[i] = e
	}
	return n, nil
}

// SetID records an assigned id on entry i, both in Entries and in the
// node tree. The id key is inserted first when absent.
func (n *Notes) SetID(i int, id int64) {
	n.Entries[i].Note.SetID(id)
	item := n.items[i]

	value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(id, 10)}
	for k := 0; k+1 < len(item.Content); k += 2 {
		if item.Content[k].Value == "id" {
			item.Content[k+1] = value
			n.dirty = true
			return
		}
	}
	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "id"}
	item.Content = append([]*yaml.Node{key, value}, item.Content...)
	n.dirty = true
}

// Dirty reports whether SetID changed anything since the last write.
func (n *Notes) Dirty() bool {
	return n.dirty
}

// SaveNotes writes n back to its file if it changed.
func (r *Repository) SaveNotes(n *Notes) error {
	if !n.dirty || n.doc == nil {
		return nil
	}
	data, err := encode(n.doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", n.Path, err)
	}
	if err := r.writeFile(n.Path, data); err != nil {
		return err
	}
	n.dirty = false
	return nil
}

// Field is a named field value in display order.
type Field struct {
	Name  string
	Value string
}

// RemoteNote is a note as pulled from Anki, ready to be written.
type RemoteNote struct {
	ID     int64
	Deck   string
	Tags   []string
	Fields []Field
}

// WriteNotes replaces notes.yaml in dir with notes. With no notes the
// file is removed instead.
func (r *Repository) WriteNotes(dir string, notes []RemoteNote) error {
	path := filepath.Join(dir, NotesFile)
	if len(notes) == 0 {
		return r.remove(path)
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, note := range notes {
		seq.Content = append(seq.Content, noteNode(note))
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{seq}}

	data, err := encode(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return r.writeFile(path, data)
}

// RemoveNotes deletes notes.yaml in dir if present.
func (r *Repository) RemoveNotes(dir string) error {
	return r.remove(filepath.Join(dir, NotesFile))
}

func noteNode(note RemoteNote) *yaml.Node {
	tags := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, t := range note.Tags {
		tags.Content = append(tags.Content, strNode(t, 0))
	}

	fields := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range note.Fields {
		fields.Content = append(fields.Content, strNode(f.Name, 0), strNode(f.Value, fieldStyle(f.Value)))
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			strNode("id", 0), {Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(note.ID, 10)},
			strNode("deck", 0), strNode(note.Deck, 0),
			strNode("tags", 0), tags,
			strNode("fields", 0), fields,
		},
	}
}

func strNode(value string, style yaml.Style) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: style}
}

// BlockStyle reports whether a pulled field value is written as a literal
// block: multi-line values, values that look like markup, and long values.
func BlockStyle(value string) bool {
	if strings.Contains(value, "\n") {
		return true
	}
	if strings.Contains(value, "<") && strings.Contains(value, ">") {
		return true
	}
	return utf8.RuneCountInString(value) > blockThreshold
}

// fieldStyle picks the scalar style for a pulled field value. Block
// values that a literal scalar cannot carry unchanged (a leading line
// break, for one) are double quoted instead.
func fieldStyle(value string) yaml.Style {
	if !BlockStyle(value) {
		return 0
	}
	if strings.HasPrefix(value, "\n") || !literalRoundTrips(value) {
		return yaml.DoubleQuotedStyle
	}
	return yaml.LiteralStyle
}

func literalRoundTrips(value string) bool {
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{
		strNode("v", 0), strNode(value, yaml.LiteralStyle),
	}}
	out, err := encode(doc)
	if err != nil {
		return false
	}
	var got map[string]string
	if err := yaml.Unmarshal(out, &got); err != nil {
		return false
	}
	return got["v"] == value
}

func encode(doc *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
