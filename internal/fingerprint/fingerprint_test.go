package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"testing"
)

func TestNote_CanonicalEncoding(t *testing.T) {
	got := Note("Default", []string{"new"}, map[string]string{"Front": "Hello", "Back": "Xin chào"})

	sum := md5.Sum([]byte(`{"deck":"Default","fields":{"Back":"Xin chào","Front":"Hello"},"tags":["new"]}`))
	want := hex.EncodeToString(sum[:])
	if got != want {
		t.Errorf("Note() = %s, want %s", got, want)
	}
}

func TestNote_Deterministic(t *testing.T) {
	a := Note("Vocab", []string{"b", "a", "c"}, map[string]string{"Front": "x", "Back": "y"})
	b := Note("Vocab", []string{"c", "b", "a"}, map[string]string{"Back": "y", "Front": "x"})
	if a != b {
		t.Errorf("reordered payloads hash differently: %s vs %s", a, b)
	}
	if a != Note("Vocab", []string{"b", "a", "c"}, map[string]string{"Front": "x", "Back": "y"}) {
		t.Error("repeated call produced a different fingerprint")
	}
}

func TestNote_DoesNotMutateTags(t *testing.T) {
	tags := []string{"z", "a"}
	Note("d", tags, map[string]string{"F": "v"})
	if tags[0] != "z" || tags[1] != "a" {
		t.Errorf("tags mutated: %v", tags)
	}
}

func TestNote_HTMLNotEscaped(t *testing.T) {
	got := Note("d", nil, map[string]string{"Front": "<b>&</b>"})
	sum := md5.Sum([]byte(`{"deck":"d","fields":{"Front":"<b>&</b>"},"tags":[]}`))
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Note() = %s, want %s", got, want)
	}
}

func TestNote_Sensitivity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	word := func() string { return fmt.Sprintf("w%d", rng.Intn(1_000_000)) }

	for i := 0; i < 200; i++ {
		deck := word()
		tags := []string{word(), word()}
		fields := map[string]string{"Front": word(), "Back": word()}
		base := Note(deck, tags, fields)

		mutations := []struct {
			name string
			hash string
		}{
			{"field", Note(deck, tags, map[string]string{"Front": fields["Front"] + "!", "Back": fields["Back"]})},
			{"add tag", Note(deck, append(append([]string{}, tags...), "extra"), fields)},
			{"remove tag", Note(deck, tags[:1], fields)},
			{"deck", Note(deck+"::Sub", tags, fields)},
		}
		for _, m := range mutations {
			if m.hash == base {
				t.Fatalf("iteration %d: %s mutation did not change fingerprint", i, m.name)
			}
		}
	}
}

func TestModel_TrimsCSS(t *testing.T) {
	tpls := map[string]Template{"Card 1": {Front: "{{Front}}", Back: "{{Back}}"}}
	a := Model(".card { color: red; }", tpls)
	b := Model("\n.card { color: red; }\n\n", tpls)
	if a != b {
		t.Errorf("surrounding whitespace changed fingerprint: %s vs %s", a, b)
	}
}

func TestModel_TemplateChange(t *testing.T) {
	a := Model("css", map[string]Template{"Card 1": {Front: "{{Front}}", Back: "{{Back}}"}})
	b := Model("css", map[string]Template{"Card 1": {Front: "{{Front}}", Back: "{{FrontSide}}<hr>{{Back}}"}})
	if a == b {
		t.Error("template body change did not change fingerprint")
	}
	if Model("css", nil) != Model("css", map[string]Template{}) {
		t.Error("nil and empty templates should hash the same")
	}
}
