package cache

import (
	"context"
	stderr "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tiercache/tiercache/internal/eviction"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

const (
	dirPerm     = 0750
	probeFile   = ".probe"
	tempPattern = ".tmp-*"
)

// DiskOptions configures a DiskStore.
type DiskOptions struct {
	// Directory holds the cache files. Empty selects DefaultDirectory and
	// allows falling back to the temp directory.
	Directory        string
	Compression      Compression
	CompressionLevel int
	Clock            clock.Clock
}

// diskItem is the in-memory index record of one cache file.
type diskItem struct {
	size        int64
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int64
}

// DiskStore keeps one envelope file per key. Its mutex only guards the
// index; file I/O happens outside it.
type DiskStore struct {
	mu          sync.Mutex
	directory   string
	canFallback bool
	ready       bool
	index       map[string]*diskItem
	currentSize int64

	codec *codec
	clock clock.Clock
}

// DefaultDirectory returns the platform cache directory for tiercache.
func DefaultDirectory() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "tiercache"), nil
}

func fallbackDirectory() string {
	return filepath.Join(os.TempDir(), "tiercache")
}

// NewDiskStore creates a store. Call Rescan to index files left by a
// previous run; the directory itself is created on first write.
func NewDiskStore(opts DiskOptions) (*DiskStore, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	dir := opts.Directory
	canFallback := false
	if dir == "" {
		canFallback = true
		d, err := DefaultDirectory()
		if err != nil {
			d = fallbackDirectory()
			canFallback = false
		}
		dir = d
	}

	cd, err := newCodec(opts.Compression, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}

	return &DiskStore{
		directory:   dir,
		canFallback: canFallback,
		index:       make(map[string]*diskItem),
		codec:       cd,
		clock:       opts.Clock,
	}, nil
}

// Directory returns the directory currently in use.
func (d *DiskStore) Directory() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.directory
}

// Len returns the number of indexed files.
func (d *DiskStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// Usage returns the total size of indexed files in bytes.
func (d *DiskStore) Usage() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentSize
}

// Contains reports whether a file for key is indexed.
func (d *DiskStore) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[utils.KeyToFilename(key)]
	return ok
}

// Get reads the envelope stored for key. A missing file or one written for
// a different key that maps to the same name reports found=false.
func (d *DiskStore) Get(ctx context.Context, key string) (*envelope, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	name := utils.KeyToFilename(key)
	d.mu.Lock()
	_, ok := d.index[name]
	dir := d.directory
	d.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	path, err := utils.SecureJoin(dir, name)
	if err != nil {
		return nil, false, diskError(err, errors.ErrCodeDiskRead, "get", key)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if stderr.Is(err, fs.ErrNotExist) {
			d.drop(name)
			return nil, false, nil
		}
		return nil, false, diskError(err, errors.ErrCodeDiskRead, "get", key)
	}

	env, err := d.codec.decode(data)
	if err != nil {
		return nil, false, diskError(err, errors.ErrCodeSerialization, "get", key)
	}
	if env.Key != key {
		return nil, false, nil
	}

	d.mu.Lock()
	if item, ok := d.index[name]; ok {
		item.lastAccess = d.clock.Now()
		item.accessCount++
	}
	d.mu.Unlock()
	return env, true, nil
}

// Set writes value for key and returns the number of bytes on disk. The
// file is written to a temporary name and renamed into place.
func (d *DiskStore) Set(ctx context.Context, key string, value any, createdAt time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := d.codec.encode(key, value, createdAt)
	if err != nil {
		return 0, diskError(err, errors.ErrCodeSerialization, "set", key)
	}

	dir, err := d.ensureDir()
	if err != nil {
		return 0, diskError(err, errors.ErrCodeDiskWrite, "set", key)
	}

	name := utils.KeyToFilename(key)
	path, err := utils.SecureJoin(dir, name)
	if err != nil {
		return 0, diskError(err, errors.ErrCodeDiskWrite, "set", key)
	}
	if err := writeFileAtomic(dir, path, data); err != nil {
		return 0, diskError(err, errors.ErrCodeDiskWrite, "set", key)
	}

	size := int64(len(data))
	d.mu.Lock()
	if old, ok := d.index[name]; ok {
		d.currentSize -= old.size
	}
	d.index[name] = &diskItem{
		size:        size,
		createdAt:   createdAt,
		lastAccess:  createdAt,
		accessCount: 1,
	}
	d.currentSize += size
	d.mu.Unlock()

	return size, nil
}

// Remove deletes the file for key. Removing an absent key is not an error.
func (d *DiskStore) Remove(key string) error {
	name := utils.KeyToFilename(key)
	dir, ok := d.drop(name)
	if !ok {
		return nil
	}
	return d.removeFile(dir, name, key)
}

// Clear deletes every indexed file and returns how many were removed.
func (d *DiskStore) Clear() (int, error) {
	d.mu.Lock()
	names := make([]string, 0, len(d.index))
	for name := range d.index {
		names = append(names, name)
	}
	d.index = make(map[string]*diskItem)
	d.currentSize = 0
	dir := d.directory
	d.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := d.removeFile(dir, name, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(names), firstErr
}

// RemoveExpired deletes files whose age exceeds the strategy's TTL.
func (d *DiskStore) RemoveExpired(strategy types.Strategy, now time.Time) (int, error) {
	if !strategy.HasTTL() {
		return 0, nil
	}

	d.mu.Lock()
	entries := make([]*types.Entry, 0, len(d.index))
	for name, item := range d.index {
		entries = append(entries, &types.Entry{
			Key:          name,
			SizeBytes:    item.size,
			Tier:         types.TierDisk,
			CreatedAt:    item.createdAt,
			LastAccessAt: item.lastAccess,
			AccessCount:  item.accessCount,
		})
	}
	d.mu.Unlock()

	var firstErr error
	removed := 0
	for _, e := range eviction.Expired(entries, strategy, now) {
		dir, ok := d.drop(e.Key)
		if !ok {
			continue
		}
		removed++
		if err := d.removeFile(dir, e.Key, e.Key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return removed, firstErr
}

// Probe checks that the directory accepts writes.
func (d *DiskStore) Probe() error {
	dir, err := d.ensureDir()
	if err != nil {
		return diskError(err, errors.ErrCodeDiskWrite, "probe", "")
	}
	path := filepath.Join(dir, probeFile)
	if err := os.WriteFile(path, []byte("ok"), 0600); err != nil {
		return diskError(err, errors.ErrCodeDiskWrite, "probe", "")
	}
	if err := os.Remove(path); err != nil {
		return diskError(err, errors.ErrCodeDiskDelete, "probe", "")
	}
	return nil
}

// Close releases the codec.
func (d *DiskStore) Close() error {
	d.codec.close()
	return nil
}

func (d *DiskStore) drop(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.index[name]
	if !ok {
		return d.directory, false
	}
	delete(d.index, name)
	d.currentSize -= item.size
	return d.directory, true
}

func (d *DiskStore) removeFile(dir, name, key string) error {
	path, err := utils.SecureJoin(dir, name)
	if err != nil {
		return diskError(err, errors.ErrCodeDiskDelete, "remove", key)
	}
	if err := os.Remove(path); err != nil && !stderr.Is(err, fs.ErrNotExist) {
		return diskError(err, errors.ErrCodeDiskDelete, "remove", key)
	}
	return nil
}

// ensureDir creates the cache directory on first use. When the default
// directory cannot be created the store moves to the temp directory.
func (d *DiskStore) ensureDir() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return d.directory, nil
	}

	err := os.MkdirAll(d.directory, dirPerm)
	if err != nil && d.canFallback {
		d.directory = fallbackDirectory()
		d.canFallback = false
		err = os.MkdirAll(d.directory, dirPerm)
	}
	if err != nil {
		return "", fmt.Errorf("create cache directory %s: %w", d.directory, err)
	}
	d.ready = true
	return d.directory, nil
}

// Rescan rebuilds the index from the files on disk and returns how many
// were found. A missing directory is an empty cache.
func (d *DiskStore) Rescan() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.directory)
	if err != nil {
		if stderr.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, diskError(err, errors.ErrCodeDiskRead, "rescan", "")
	}

	d.index = make(map[string]*diskItem, len(entries))
	d.currentSize = 0

	for _, de := range entries {
		if de.IsDir() || !utils.IsCacheFile(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		d.index[de.Name()] = &diskItem{
			size:        info.Size(),
			createdAt:   info.ModTime(),
			lastAccess:  info.ModTime(),
			accessCount: 1,
		}
		d.currentSize += info.Size()
	}
	d.ready = true
	return len(d.index), nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func diskError(err error, code errors.ErrorCode, op, key string) *errors.CacheError {
	ce := errors.Wrap(err, code, "disk tier "+op+" failed").
		WithComponent("disk").
		WithOperation(op)
	if key != "" {
		ce = ce.WithDetail("key", key)
	}
	return ce
}
