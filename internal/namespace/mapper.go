// Package namespace maps hierarchical filesystem paths onto a flat object key
// space. Directories are never stored as state: they are inferred from prefix
// listings, except for zero-byte marker objects whose key ends in the delimiter.
package namespace

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	fserrors "github.com/objectfs/bucketfs/pkg/errors"
	"github.com/objectfs/bucketfs/pkg/types"
	"github.com/objectfs/bucketfs/pkg/utils"
)

const (
	// DefaultDelimiter separates path segments and groups listings.
	DefaultDelimiter = "/"
	// DefaultDeleteBatchSize is the DeleteObjects key limit of S3 and OSS.
	DefaultDeleteBatchSize = 1000
)

// Config is fixed at construction.
type Config struct {
	// Bucket, when set, is the leading path segment every path must carry.
	Bucket string `yaml:"bucket"`
	// RootPrefix is prepended to every resolved key.
	RootPrefix string `yaml:"root_prefix"`
	Delimiter  string `yaml:"delimiter"`
	// LeadingSlash controls whether normalized paths and entry names start with "/".
	LeadingSlash    bool `yaml:"leading_slash"`
	DeleteBatchSize int  `yaml:"delete_batch_size"`
	// Concurrency bounds in-flight batch deletes; 1 runs them sequentially.
	Concurrency int `yaml:"concurrency"`
}

// Mapper translates paths to keys and synthesizes directory entries.
// It holds no mutable state after New.
type Mapper struct {
	backend    types.ObjectBackend
	cfg        Config
	rootPrefix string
	rootKey    string
	logger     *slog.Logger
}

// New creates a Mapper over backend.
func New(backend types.ObjectBackend, cfg Config, logger *slog.Logger) (*Mapper, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = DefaultDelimiter
	}
	if cfg.DeleteBatchSize <= 0 {
		cfg.DeleteBatchSize = DefaultDeleteBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if strings.Contains(cfg.Bucket, cfg.Delimiter) {
		return nil, fmt.Errorf("bucket %q cannot contain the delimiter", cfg.Bucket)
	}
	if logger == nil {
		logger = slog.Default()
	}

	root, err := utils.CleanObjectPath(cfg.RootPrefix, cfg.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("invalid root prefix: %w", err)
	}
	rootPrefix := ""
	if root != "" {
		rootPrefix = root + cfg.Delimiter
	}

	return &Mapper{
		backend:    backend,
		cfg:        cfg,
		rootPrefix: rootPrefix,
		rootKey:    root,
		logger:     logger.With("component", "namespace"),
	}, nil
}

// Delimiter returns the configured delimiter.
func (m *Mapper) Delimiter() string {
	return m.cfg.Delimiter
}

// clean strips scheme and bucket and returns the cleaned relative path.
func (m *Mapper) clean(path string) (string, error) {
	rel, err := utils.CleanObjectPath(utils.StripScheme(path), m.cfg.Delimiter)
	if err != nil {
		return "", fserrors.InvalidPath(path, err.Error()).WithCause(err)
	}
	if m.cfg.Bucket == "" {
		return rel, nil
	}

	first, rest, _ := strings.Cut(rel, m.cfg.Delimiter)
	if first != m.cfg.Bucket {
		if rel == "" {
			return "", nil
		}
		return "", fserrors.InvalidPath(path, "path escapes bucket "+m.cfg.Bucket)
	}
	return rest, nil
}

// Resolve converts path into the object key it names. The root resolves to
// the root prefix without its trailing delimiter.
func (m *Mapper) Resolve(path string) (string, error) {
	rel, err := m.clean(path)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return m.rootKey, nil
	}
	return m.rootPrefix + rel, nil
}

// Normalize returns the canonical string form of path.
func (m *Mapper) Normalize(path string) (string, error) {
	rel, err := m.clean(path)
	if err != nil {
		return "", err
	}
	return m.display(rel), nil
}

// PathFor returns the normalized path naming key.
func (m *Mapper) PathFor(key string) string {
	rel := strings.TrimPrefix(key, m.rootPrefix)
	if key == m.rootKey {
		rel = ""
	}
	return m.display(strings.TrimSuffix(rel, m.cfg.Delimiter))
}

func (m *Mapper) display(rel string) string {
	if m.cfg.Bucket != "" {
		if rel == "" {
			rel = m.cfg.Bucket
		} else {
			rel = m.cfg.Bucket + m.cfg.Delimiter + rel
		}
	}
	if m.cfg.LeadingSlash || rel == "" {
		return "/" + rel
	}
	return rel
}

// IsRoot reports whether key is the root of the namespace.
func (m *Mapper) IsRoot(key string) bool {
	return key == m.rootKey
}

// dirPrefix is the listing prefix for the directory named by key.
func (m *Mapper) dirPrefix(key string) string {
	if m.IsRoot(key) {
		return m.rootPrefix
	}
	return key + m.cfg.Delimiter
}

func (m *Mapper) fileEntry(obj types.ObjectInfo) types.DirEntry {
	return types.DirEntry{
		Name:         m.PathFor(obj.Key),
		Type:         types.EntryFile,
		Size:         obj.Size,
		LastModified: obj.LastModified,
		StorageClass: obj.StorageClass,
		Key:          obj.Key,
		ETag:         obj.ETag,
	}
}

func (m *Mapper) dirEntry(prefix string) types.DirEntry {
	return types.DirEntry{
		Name: m.PathFor(prefix),
		Type: types.EntryDirectory,
		Key:  prefix,
	}
}

// ListChildren lazily enumerates the entries below path. Each iteration
// re-issues the listing from scratch and follows continuation tokens until
// the backend reports exhaustion. Non-recursive listings fold every key
// sharing the next segment into one directory entry; recursive listings
// yield file entries only.
func (m *Mapper) ListChildren(ctx context.Context, path string, recursive bool) iter.Seq2[types.DirEntry, error] {
	return func(yield func(types.DirEntry, error) bool) {
		key, err := m.Resolve(path)
		if err != nil {
			yield(types.DirEntry{}, err)
			return
		}
		prefix := m.dirPrefix(key)
		delimiter := m.cfg.Delimiter
		if recursive {
			delimiter = ""
		}

		token := ""
		for {
			page, err := m.backend.List(ctx, prefix, delimiter, token)
			if err != nil {
				yield(types.DirEntry{}, fmt.Errorf("list %s: %w", prefix, err))
				return
			}

			for _, obj := range page.Objects {
				if obj.Key == prefix {
					continue
				}
				if strings.HasSuffix(obj.Key, m.cfg.Delimiter) {
					if recursive {
						continue
					}
					entry := m.dirEntry(obj.Key)
					entry.LastModified = obj.LastModified
					if !yield(entry, nil) {
						return
					}
					continue
				}
				if !yield(m.fileEntry(obj), nil) {
					return
				}
			}
			for _, cp := range page.CommonPrefixes {
				if !yield(m.dirEntry(cp), nil) {
					return
				}
			}

			if page.NextToken == "" {
				return
			}
			token = page.NextToken
		}
	}
}

// head returns the object at key, or ok=false when it does not exist.
func (m *Mapper) head(ctx context.Context, key string) (types.ObjectInfo, bool, error) {
	info, err := m.backend.Head(ctx, key)
	if err == nil {
		return info, true, nil
	}
	if errors.Is(err, fserrors.ErrObjectNotFound) {
		return types.ObjectInfo{}, false, nil
	}
	return types.ObjectInfo{}, false, fmt.Errorf("head %s: %w", key, err)
}

// dirState summarizes the listing below a directory prefix.
type dirState struct {
	marker   *types.ObjectInfo
	children bool
}

func (d dirState) exists() bool {
	return d.marker != nil || d.children
}

// scanDir follows continuation tokens below key until it sees an entry other
// than the directory marker or the listing is exhausted. The marker sorts
// first under its prefix, so it is always seen before any child.
func (m *Mapper) scanDir(ctx context.Context, key string) (dirState, error) {
	prefix := m.dirPrefix(key)
	var state dirState
	token := ""
	for {
		page, err := m.backend.List(ctx, prefix, m.cfg.Delimiter, token)
		if err != nil {
			return dirState{}, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Objects {
			if obj.Key == prefix {
				state.marker = &obj
				continue
			}
			state.children = true
		}
		if len(page.CommonPrefixes) > 0 {
			state.children = true
		}
		if state.children || page.NextToken == "" {
			return state, nil
		}
		token = page.NextToken
	}
}

// Exists reports whether path names an object or a non-empty prefix.
func (m *Mapper) Exists(ctx context.Context, path string) (bool, error) {
	key, err := m.Resolve(path)
	if err != nil {
		return false, err
	}
	if m.IsRoot(key) {
		return true, nil
	}

	if _, ok, err := m.head(ctx, key); err != nil || ok {
		return ok, err
	}

	state, err := m.scanDir(ctx, key)
	if err != nil {
		return false, err
	}
	return state.exists(), nil
}

// Info describes path. An exact object wins over a prefix of the same name.
func (m *Mapper) Info(ctx context.Context, path string) (types.DirEntry, error) {
	key, err := m.Resolve(path)
	if err != nil {
		return types.DirEntry{}, err
	}
	if m.IsRoot(key) {
		return types.DirEntry{Name: m.PathFor(key), Type: types.EntryDirectory, Key: m.rootPrefix}, nil
	}

	obj, ok, err := m.head(ctx, key)
	if err != nil {
		return types.DirEntry{}, err
	}
	if ok {
		return m.fileEntry(obj), nil
	}

	state, err := m.scanDir(ctx, key)
	if err != nil {
		return types.DirEntry{}, err
	}
	if !state.exists() {
		return types.DirEntry{}, fserrors.NotFound(key, nil).WithContext("path", path)
	}

	entry := m.dirEntry(m.dirPrefix(key))
	if state.marker != nil {
		entry.LastModified = state.marker.LastModified
		entry.StorageClass = state.marker.StorageClass
	}
	return entry, nil
}

// MakeDirectory creates a zero-byte marker object for path. It is a no-op
// when the marker already exists or path is the root.
func (m *Mapper) MakeDirectory(ctx context.Context, path string) error {
	key, err := m.Resolve(path)
	if err != nil {
		return err
	}
	if m.IsRoot(key) {
		return nil
	}

	if _, ok, err := m.head(ctx, key); err != nil {
		return err
	} else if ok {
		return fserrors.InvalidPath(path, "a file already exists at this path")
	}

	marker := m.dirPrefix(key)
	if _, ok, err := m.head(ctx, marker); err != nil || ok {
		return err
	}

	if err := m.backend.Put(ctx, marker, nil); err != nil {
		return fmt.Errorf("create directory marker %s: %w", marker, err)
	}
	m.logger.Debug("Created directory marker", "path", path, "key", marker)
	return nil
}

// Remove deletes path. Files are deleted directly. Directories require
// recursive unless they contain nothing but their own marker; recursive
// removal deletes every key under the prefix in batches, continues past
// failures and reports them together as a BulkOperationError.
func (m *Mapper) Remove(ctx context.Context, path string, recursive bool) error {
	key, err := m.Resolve(path)
	if err != nil {
		return err
	}
	if m.IsRoot(key) {
		return fserrors.InvalidPath(path, "cannot remove the root directory")
	}

	_, isFile, err := m.head(ctx, key)
	if err != nil {
		return err
	}

	if !recursive {
		if isFile {
			if err := m.backend.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		}
		return m.removeEmptyDir(ctx, path, key)
	}

	keys, err := m.collectKeys(ctx, key)
	if err != nil {
		return err
	}
	if isFile {
		keys = append([]string{key}, keys...)
	}
	if len(keys) == 0 {
		return fserrors.NotFound(key, nil).WithContext("path", path)
	}

	failures := m.deleteKeys(ctx, keys)
	m.logger.Debug("Removed prefix",
		"path", path,
		"keys", len(keys),
		"failed", len(failures),
		"concurrency", m.cfg.Concurrency)
	if len(failures) > 0 {
		return fserrors.NewBulkOperationError("remove", path, len(keys), failures)
	}
	return nil
}

func (m *Mapper) removeEmptyDir(ctx context.Context, path, key string) error {
	state, err := m.scanDir(ctx, key)
	if err != nil {
		return err
	}
	if state.children {
		return fserrors.DirectoryNotEmpty(path)
	}
	if state.marker == nil {
		return fserrors.NotFound(key, nil).WithContext("path", path)
	}
	marker := state.marker.Key
	if err := m.backend.Delete(ctx, marker); err != nil {
		return fmt.Errorf("delete directory marker %s: %w", marker, err)
	}
	return nil
}

// collectKeys returns every key under the directory prefix of key.
func (m *Mapper) collectKeys(ctx context.Context, key string) ([]string, error) {
	prefix := m.dirPrefix(key)
	var keys []string
	token := ""
	for {
		page, err := m.backend.List(ctx, prefix, "", token)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		if page.NextToken == "" {
			return keys, nil
		}
		token = page.NextToken
	}
}

// deleteKeys deletes keys in batches and returns every per-key failure.
// Batches run concurrently up to the configured limit.
func (m *Mapper) deleteKeys(ctx context.Context, keys []string) []fserrors.KeyFailure {
	var (
		mu       sync.Mutex
		failures []fserrors.KeyFailure
	)
	record := func(fs ...fserrors.KeyFailure) {
		mu.Lock()
		failures = append(failures, fs...)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(m.cfg.Concurrency)
	for start := 0; start < len(keys); start += m.cfg.DeleteBatchSize {
		end := min(start+m.cfg.DeleteBatchSize, len(keys))
		batch := keys[start:end]
		g.Go(func() error {
			record(m.deleteBatch(ctx, batch)...)
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

func (m *Mapper) deleteBatch(ctx context.Context, batch []string) []fserrors.KeyFailure {
	results, err := m.backend.DeleteBatch(ctx, batch)
	if err != nil {
		m.logger.Warn("Batch delete failed", "keys", len(batch), "error", err)
		failures := make([]fserrors.KeyFailure, 0, len(batch))
		for _, k := range batch {
			failures = append(failures, fserrors.KeyFailure{Key: k, Err: err})
		}
		return failures
	}

	var failures []fserrors.KeyFailure
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, fserrors.KeyFailure{Key: r.Key, Err: r.Err})
		}
	}
	return failures
}
