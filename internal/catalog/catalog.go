// Package catalog holds the static image catalogue and the resolver that
// maps abstract image references produced by the language model onto
// concrete, preloadable image descriptors.
package catalog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Descriptor is a concrete catalogue entry a client can preload and show.
type Descriptor struct {
	// ID is the stable catalogue identifier (e.g., "parthenon").
	ID string `yaml:"id" json:"id"`

	// Title is the display title.
	Title string `yaml:"title" json:"title"`

	// CDNURL is the image location handed to clients for preloading.
	CDNURL string `yaml:"cdn_url" json:"cdn_url"`

	// Keywords are the match terms used by the resolver.
	Keywords []string `yaml:"keywords" json:"keywords,omitempty"`

	// Era is a free-text period label (e.g., "447-432 BC").
	Era string `yaml:"era" json:"era,omitempty"`

	// Category is the collection the entry belongs to.
	Category string `yaml:"category" json:"category,omitempty"`
}

// file is the on-disk catalogue document shape:
//
//	collections:
//	  monuments:
//	    - id: parthenon
//	      title: "The Parthenon"
//	      cdn_url: "https://cdn.example.com/parthenon.jpg"
//	      keywords: [parthenon, acropolis, athens]
type file struct {
	Collections map[string][]Descriptor `yaml:"collections"`
}

// generation is one immutable loaded catalogue. Resolutions in flight keep
// using the generation they started with across a reload.
type generation struct {
	entries []Descriptor
}

// Catalogue is the process-wide image catalogue. Load and Reload swap the
// active generation atomically; all read paths are lock-free.
type Catalogue struct {
	path string
	gen  atomic.Pointer[generation]
}

// Open loads the catalogue document at path. The returned Catalogue is ready
// for concurrent resolution.
func Open(path string) (*Catalogue, error) {
	c := &Catalogue{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalogue document and swaps it in atomically.
// On error the previous generation stays active.
func (c *Catalogue) Reload() error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("catalog: open %q: %w", c.path, err)
	}
	defer f.Close()

	gen, err := parse(f)
	if err != nil {
		return fmt.Errorf("catalog: parse %q: %w", c.path, err)
	}
	c.gen.Store(gen)
	return nil
}

// FromReader builds a Catalogue directly from YAML content. Reload is a
// no-op error for reader-backed catalogues; tests use this constructor.
func FromReader(r io.Reader) (*Catalogue, error) {
	gen, err := parse(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse reader: %w", err)
	}
	c := &Catalogue{}
	c.gen.Store(gen)
	return c, nil
}

// parse decodes the catalogue document and flattens the collections into a
// single ordered entry list. Category names are sorted so the flattened
// order — the resolver's tie-break order — is deterministic.
func parse(r io.Reader) (*generation, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if len(doc.Collections) == 0 {
		return nil, fmt.Errorf("no collections defined")
	}

	cats := make([]string, 0, len(doc.Collections))
	for name := range doc.Collections {
		cats = append(cats, name)
	}
	sort.Strings(cats)

	gen := &generation{}
	for _, cat := range cats {
		for _, e := range doc.Collections[cat] {
			if e.ID == "" {
				return nil, fmt.Errorf("entry with empty id in collection %q", cat)
			}
			if e.Category == "" {
				e.Category = cat
			}
			gen.entries = append(gen.entries, e)
		}
	}
	// The resolver's fallback draws from the entry list, so a catalogue
	// with collections but no entries is as unusable as no catalogue.
	if len(gen.entries) == 0 {
		return nil, fmt.Errorf("no entries defined")
	}
	return gen, nil
}

// Len returns the number of entries in the active generation.
func (c *Catalogue) Len() int {
	return len(c.gen.Load().entries)
}

// Entries returns the active generation's entries in catalogue order.
// The returned slice must not be mutated.
func (c *Catalogue) Entries() []Descriptor {
	return c.gen.Load().entries
}
