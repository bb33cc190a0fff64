package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDoc = `
collections:
  monuments:
    - id: parthenon
      title: "The Parthenon"
      cdn_url: "https://cdn.example.com/parthenon.jpg"
      keywords: [parthenon, acropolis, athens, temple]
      era: "447-432 BC"
    - id: colosseum
      title: "The Colosseum"
      cdn_url: "https://cdn.example.com/colosseum.jpg"
      keywords: [colosseum, rome, amphitheatre]
  art:
    - id: mona-lisa
      title: "Mona Lisa"
      cdn_url: "https://cdn.example.com/mona-lisa.jpg"
      keywords: [mona, lisa, leonardo]
      category: painting
`

func mustCatalogue(t *testing.T, doc string) *Catalogue {
	t.Helper()
	c, err := FromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	return c
}

func TestFromReader_FlattensSortedByCategory(t *testing.T) {
	t.Parallel()

	c := mustCatalogue(t, testDoc)
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}

	// "art" sorts before "monuments", so mona-lisa leads the flat order.
	got := make([]string, 0, 3)
	for _, e := range c.Entries() {
		got = append(got, e.ID)
	}
	want := []string{"mona-lisa", "parthenon", "colosseum"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry order = %v, want %v", got, want)
		}
	}
}

func TestFromReader_CategoryInheritedFromCollection(t *testing.T) {
	t.Parallel()

	c := mustCatalogue(t, testDoc)
	for _, e := range c.Entries() {
		switch e.ID {
		case "parthenon", "colosseum":
			if e.Category != "monuments" {
				t.Errorf("%s category = %q, want monuments", e.ID, e.Category)
			}
		case "mona-lisa":
			// An explicit category on the entry wins.
			if e.Category != "painting" {
				t.Errorf("mona-lisa category = %q, want painting", e.Category)
			}
		}
	}
}

func TestFromReader_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty document":    "",
		"no collections":    "collections: {}",
		"empty collections": "collections:\n  monuments: []\n",
		"all entryless":     "collections:\n  monuments: []\n  art: []\n",
		"entry without id":  "collections:\n  a:\n    - title: x\n",
		"unknown field":     "collections: {}\nextra: true\n",
	}
	for name, doc := range cases {
		if _, err := FromReader(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestReload_SwapsGeneration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalogue.yaml")
	if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}

	smaller := `
collections:
  monuments:
    - id: parthenon
      title: "The Parthenon"
      cdn_url: "https://cdn.example.com/parthenon.jpg"
`
	if err := os.WriteFile(path, []byte(smaller), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len after reload = %d, want 1", c.Len())
	}
}

func TestReload_KeepsOldGenerationOnError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalogue.yaml")
	if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := os.WriteFile(path, []byte("not: [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want previous generation intact", c.Len())
	}
}
