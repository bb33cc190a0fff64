package catalog

import (
	"log/slog"
	"math/rand"
	"strings"
	"sync"
)

// Weights of the deterministic keyword scoring applied per catalogue entry.
const (
	scoreKeywordToken     = 10 // keyword equals a token of the search string
	scoreKeywordSubstring = 5  // keyword is a substring of the search string
	scoreCategoryToken    = 3  // entry category equals a token
	scoreTitleSubstring   = 15 // entry title is a substring of the search string
	scoreIDSubstring      = 30 // entry id is a substring of the search string
)

// defaultFallbackSample is the size of the random sample drawn when no entry
// scores above zero.
const defaultFallbackSample = 3

// Ref is an abstract image reference as produced by the language model: an
// identifier string plus optional hints.
type Ref struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
}

// Resolver scores abstract references against the catalogue. It is safe for
// concurrent use; a resolution uses whichever catalogue generation is active
// when it starts.
type Resolver struct {
	cat    *Catalogue
	sample int

	mu  sync.Mutex
	rng *rand.Rand
}

// ResolverOption configures a [Resolver] during construction.
type ResolverOption func(*Resolver)

// WithFallbackSample sets the size of the random sample used for zero-score
// inputs. The default is 3.
func WithFallbackSample(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.sample = n
		}
	}
}

// WithRandSource seeds the fallback sampler, for deterministic tests.
func WithRandSource(src rand.Source) ResolverOption {
	return func(r *Resolver) {
		r.rng = rand.New(src)
	}
}

// NewResolver creates a Resolver over cat.
func NewResolver(cat *Catalogue, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cat:    cat,
		sample: defaultFallbackSample,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve maps ref to the best-scoring catalogue entry. The second return
// value reports whether the match was genuine: false means nothing scored
// above zero and a randomised fallback entry was substituted.
func (r *Resolver) Resolve(ref Ref) (Descriptor, bool) {
	entries := r.cat.Entries()

	search := strings.ToLower(strings.TrimSpace(
		strings.Join([]string{ref.ID, ref.Title, ref.Category}, " "),
	))
	tokens := tokenize(search)

	best := -1
	bestScore := 0
	for i, e := range entries {
		// Strictly greater keeps catalogue order as the tie-break.
		if s := score(e, search, tokens); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 {
		return entries[best], true
	}

	fb := r.fallback(entries)
	slog.Warn("image reference unresolved, using catalogue fallback",
		"ref_id", ref.ID,
		"fallback_id", fb.ID,
	)
	return fb, false
}

// fallback draws a uniformly random sample of up to r.sample entries and
// returns one of them.
func (r *Resolver) fallback(entries []Descriptor) Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.sample
	if n > len(entries) {
		n = len(entries)
	}
	perm := r.rng.Perm(len(entries))
	return entries[perm[r.rng.Intn(n)]]
}

// score computes the deterministic match score of entry e against the
// search string and its token set.
func score(e Descriptor, search string, tokens map[string]bool) int {
	s := 0
	for _, kw := range e.Keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if tokens[kw] {
			s += scoreKeywordToken
		}
		if strings.Contains(search, kw) {
			s += scoreKeywordSubstring
		}
	}
	if cat := strings.ToLower(e.Category); cat != "" && tokens[cat] {
		s += scoreCategoryToken
	}
	if title := strings.ToLower(e.Title); title != "" && strings.Contains(search, title) {
		s += scoreTitleSubstring
	}
	if id := strings.ToLower(e.ID); id != "" && strings.Contains(search, id) {
		s += scoreIDSubstring
	}
	return s
}

// tokenize splits s on any non-alphanumeric rune and returns the token set.
func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
