// Package cache provides the content-addressed audio cache in front of the
// synthesiser tiers.
//
// Entries are keyed by SHA-256 of the input text and stored as flat files
// named by the lowercase hex digest, with the file extension carrying the
// content-type tag. Writes go through a temp-file-and-rename so a partial
// write is never observable. Concurrent requests for the same text share a
// single in-flight synthesis (single-flight); requests for different texts
// never contend on a common lock.
//
// Eviction is out of scope — operators apply an age-based sweep externally.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
)

// HitTier is the tier name reported on results served from disk.
const HitTier = "cache"

// extensions maps content types to cache file extensions and back.
var extensions = map[string]string{
	tts.ContentTypeMP3: ".mp3",
	tts.ContentTypeWAV: ".wav",
}

// Cache implements tts.Synthesizer by consulting the on-disk store before
// delegating to the wrapped synthesiser. Safe for concurrent use.
type Cache struct {
	dir     string
	enabled bool
	synth   tts.Synthesizer
	group   singleflight.Group
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Cache)(nil)

// Option is a functional option for configuring a Cache.
type Option func(*Cache)

// Disabled turns off the disk store. Single-flight coordination still
// applies, so concurrent identical requests share one synthesis either way.
func Disabled() Option {
	return func(c *Cache) { c.enabled = false }
}

// New creates a Cache over synth, storing entries under dir. The directory
// is created if missing.
func New(dir string, synth tts.Synthesizer, opts ...Option) (*Cache, error) {
	if synth == nil {
		return nil, fmt.Errorf("cache: synthesizer must not be nil")
	}
	c := &Cache{dir: dir, enabled: true, synth: synth}
	for _, o := range opts {
		o(c)
	}
	if c.enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir %q: %w", dir, err)
		}
	}
	return c, nil
}

// Key returns the cache key for text: the lowercase hex SHA-256 digest.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Synthesize returns cached audio for text, joining an in-flight synthesis
// for the same key when one exists, or starting one otherwise. All callers
// for a given key receive byte-identical audio.
func (c *Cache) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	key := Key(text)

	if res, ok := c.lookup(key); ok {
		return res, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have completed
		// the write between our lookup and joining the group.
		if res, ok := c.lookup(key); ok {
			return res, nil
		}
		// The flight is shared state: run it detached from the initiating
		// caller so one cancellation cannot abort the synthesis for every
		// waiter. The synthesiser's own timeouts still bound the call.
		res, err := c.synth.Synthesize(context.WithoutCancel(ctx), text)
		if err != nil {
			return tts.Result{}, err
		}
		c.store(key, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		// The flight keeps running so other waiters (and the cache) still
		// get the result.
		return tts.Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return tts.Result{}, fmt.Errorf("cache: synthesize key %s: %w", key[:12], r.Err)
		}
		return r.Val.(tts.Result), nil
	}
}

// lookup reads an existing entry from disk. The extension carries the
// content-type tag; WAV sample-rate/channel metadata lives in the header.
func (c *Cache) lookup(key string) (tts.Result, bool) {
	if !c.enabled {
		return tts.Result{}, false
	}
	for ct, ext := range extensions {
		audio, err := os.ReadFile(filepath.Join(c.dir, key+ext))
		if err != nil {
			continue
		}
		if len(audio) == 0 {
			continue
		}
		return tts.Result{Audio: audio, ContentType: ct, Tier: HitTier}, true
	}
	return tts.Result{}, false
}

// store persists a completed synthesis. Bytes are streamed to a temp file
// and renamed into place so readers never observe a partial entry. A store
// failure is logged and swallowed — the caller already has the audio.
func (c *Cache) store(key string, res tts.Result) {
	if !c.enabled {
		return
	}
	ext, ok := extensions[res.ContentType]
	if !ok {
		slog.Warn("tts cache: refusing to store unknown content type",
			"content_type", res.ContentType, "key", key[:12])
		return
	}
	path := filepath.Join(c.dir, key+ext)
	if err := renameio.WriteFile(path, res.Audio, 0o644); err != nil {
		slog.Warn("tts cache: store failed", "key", key[:12], "err", err)
	}
}

// Contains reports whether an entry for text exists on disk.
func (c *Cache) Contains(text string) bool {
	_, ok := c.lookup(Key(text))
	return ok
}
