// Package buildcache caches expensive pipeline artifacts on disk, keyed by
// a content hash of whatever inputs determine that artifact, so an
// unchanged rerun can skip recomputing them. cmd/r8 uses it to cache a
// completed run's rendered output (survived-class count, seeds, mapping)
// keyed by the program descriptor and rule text, since the pipeline's
// interned in-memory types are not portable across runs.
//
// Entries are keyed with golang.org/x/crypto/blake2b, a fast general-purpose
// content hash well suited to keys that are whole-program content digests
// rather than short strings.
package buildcache

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// Cacheable serializes and deserializes one cached artifact. The encode and
// decode functions are wrappers around gob.Encoder.Encode /
// gob.Decoder.Decode.
type Cacheable interface {
	Write(encode func(any) error) error
	Read(decode func(any) error) error
}

// Cache stores and loads cacheable artifacts.
type Cache interface {
	// Store persists c under key. Any error while writing leaves the
	// cache unmodified rather than a half-written entry.
	Store(c Cacheable, key string, builtAt time.Time) bool
	// Load restores a previously stored artifact for key, reporting false
	// (a cache miss) if none exists, it's corrupted, or it predates
	// srcModTime.
	Load(c Cacheable, key string, srcModTime time.Time) bool
}

var cacheRoot = func() string {
	dir, err := os.UserCacheDir()
	if err == nil {
		return filepath.Join(dir, "r8", "build_cache")
	}
	return filepath.Join(os.TempDir(), "r8_build_cache")
}()

// cachedPath returns the on-disk location for a content key, sharded by the
// first byte of its digest so no single directory accumulates every entry.
func cachedPath(namespace, key string) string {
	if key == "" {
		panic("buildcache: cachedPath must not be called with an empty key")
	}
	sum := blake2b.Sum256([]byte(namespace + "\x00" + key))
	hex := fmt.Sprintf("%x", sum)
	return filepath.Join(cacheRoot, namespace, hex[0:2], hex)
}

// Clear removes every cached artifact under every namespace.
func Clear() error {
	return os.RemoveAll(cacheRoot)
}

var _ Cache = (*OnDisk)(nil)

// OnDisk is a non-durable, best-effort cache: any store/load error is
// swallowed and treated as a cache miss. A nil *OnDisk is valid and simply
// disables caching.
type OnDisk struct {
	// Namespace separates artifact kinds sharing one cache root, e.g.
	// "enqueuer" or "minifier", so a key collision in one can't shadow an
	// entry in the other.
	Namespace string
	// R8Version invalidates every entry when the pipeline version changes.
	R8Version string
}

func (c *OnDisk) Store(cc Cacheable, key string, builtAt time.Time) bool {
	if c == nil {
		return false
	}
	start := time.Now()
	path := cachedPath(c.Namespace, c.fullKey(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.Warnf("buildcache: failed to create cache directory: %v", err)
		return false
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path))
	if err != nil {
		log.Warnf("buildcache: failed to create temp cache file: %v", err)
		return false
	}
	defer f.Close()
	if err := serialize(cc, builtAt, f); err != nil {
		log.Warnf("buildcache: failed to write cache entry %q: %v", key, err)
		os.Remove(f.Name())
		return false
	}
	f.Close()
	if err := os.Rename(f.Name(), path); err != nil {
		log.Warnf("buildcache: failed to rename cache entry %q: %v", key, err)
		return false
	}
	log.Infof("buildcache: stored %q/%q (%v).", c.Namespace, key, time.Since(start).Round(time.Millisecond))
	return true
}

func (c *OnDisk) Load(cc Cacheable, key string, srcModTime time.Time) bool {
	if c == nil {
		return false
	}
	start := time.Now()
	path := cachedPath(c.Namespace, c.fullKey(key))
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("buildcache: failed to open cache entry %q: %v", key, err)
		}
		return false
	}
	defer f.Close()
	builtAt, stale, err := deserialize(cc, srcModTime, f)
	if err != nil {
		log.Warnf("buildcache: failed to read cache entry %q: %v", key, err)
		return false
	}
	if stale {
		log.Infof("buildcache: cache entry %q is stale (built %v).", key, builtAt)
		return false
	}
	log.Infof("buildcache: hit %q/%q, built %v (%v).", c.Namespace, key, builtAt, time.Since(start).Round(time.Millisecond))
	return true
}

func (c *OnDisk) fullKey(key string) string {
	return c.R8Version + "\x00" + key
}

func serialize(c Cacheable, builtAt time.Time, w io.Writer) (err error) {
	zw := gzip.NewWriter(w)
	defer func() {
		if closeErr := zw.Close(); err == nil {
			err = closeErr
		}
	}()
	ge := gob.NewEncoder(zw)
	if err := ge.Encode(builtAt); err != nil {
		return err
	}
	return c.Write(ge.Encode)
}

func deserialize(c Cacheable, srcModTime time.Time, r io.Reader) (builtAt time.Time, stale bool, err error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return builtAt, false, err
	}
	defer func() {
		if closeErr := zr.Close(); err == nil {
			err = closeErr
		}
	}()
	gd := gob.NewDecoder(zr)
	if err := gd.Decode(&builtAt); err != nil {
		return builtAt, false, err
	}
	if srcModTime.After(builtAt) {
		return builtAt, true, nil
	}
	return builtAt, false, c.Read(gd.Decode)
}
