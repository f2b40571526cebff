// Package filesystem is the path-based surface of bucketfs. A FileSystem
// combines a namespace.Mapper for the directory illusion with buffered
// streams for object contents, and records every operation in a metrics
// collector.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/objectfs/bucketfs/internal/metrics"
	"github.com/objectfs/bucketfs/internal/namespace"
	"github.com/objectfs/bucketfs/internal/stream"
	fserrors "github.com/objectfs/bucketfs/pkg/errors"
	"github.com/objectfs/bucketfs/pkg/types"
)

// Config configures a FileSystem.
type Config struct {
	Namespace namespace.Config
	Stream    stream.Options
}

// FileSystem exposes list, read, write and manipulation of remote objects
// through uniform paths. It is safe for concurrent use; the Files it opens
// are not.
type FileSystem struct {
	backend types.ObjectBackend
	mapper  *namespace.Mapper
	opts    stream.Options
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a FileSystem over backend. A nil collector disables metrics.
func New(backend types.ObjectBackend, cfg Config, logger *slog.Logger, collector *metrics.Collector) (*FileSystem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "filesystem")

	mapper, err := namespace.New(backend, cfg.Namespace, logger)
	if err != nil {
		return nil, err
	}

	opts := cfg.Stream
	if opts.Logger == nil {
		opts.Logger = logger
	}

	return &FileSystem{
		backend: backend,
		mapper:  mapper,
		opts:    opts,
		logger:  logger,
		metrics: collector,
	}, nil
}

// Mapper returns the namespace mapper used to resolve paths.
func (fs *FileSystem) Mapper() *namespace.Mapper {
	return fs.mapper
}

// Metrics returns the collector, which may be nil.
func (fs *FileSystem) Metrics() *metrics.Collector {
	return fs.metrics
}

func (fs *FileSystem) record(op string, start time.Time, size int64, err error) {
	if fs.metrics != nil {
		fs.metrics.RecordOperation(op, time.Since(start), size, err)
	}
	if err != nil {
		fs.logger.Debug("Operation failed", "operation", op, "error", err)
	}
}

// fileKey resolves path to the key of a regular object. Root never names one.
func (fs *FileSystem) fileKey(path string) (string, error) {
	key, err := fs.mapper.Resolve(path)
	if err != nil {
		return "", err
	}
	if fs.mapper.IsRoot(key) {
		return "", fserrors.InvalidPath(path, "path is the root directory")
	}
	return key, nil
}

// Open opens path as a stream. Mode "r" or "rb" reads and "w" or "wb"
// writes; other modes are unsupported. Opening something that is not an
// object for reading fails with ObjectNotFoundError.
func (fs *FileSystem) Open(ctx context.Context, path, mode string) (f *File, err error) {
	start := time.Now()
	defer func() { fs.record("open", start, 0, err) }()

	m, err := stream.ParseMode(mode)
	if err != nil {
		return nil, err
	}

	key, err := fs.mapper.Resolve(path)
	if err != nil {
		return nil, err
	}

	if m == stream.ModeRead {
		if fs.mapper.IsRoot(key) {
			return nil, fserrors.NotFound(key, nil)
		}
		r := stream.NewReader(ctx, fs.backend, key, fs.opts)
		if _, err := r.Size(); err != nil {
			return nil, err
		}
		return &File{fs: fs, path: path, mode: m, reader: r, opened: start}, nil
	}

	if fs.mapper.IsRoot(key) {
		return nil, fserrors.InvalidPath(path, "path is the root directory")
	}
	w := stream.NewWriter(ctx, fs.backend, key, fs.opts)
	return &File{fs: fs, path: path, mode: m, writer: w, opened: start}, nil
}

// Ls lists the entries below path sorted by name. Listing a file returns
// the file itself.
func (fs *FileSystem) Ls(ctx context.Context, path string, recursive bool) (entries []types.DirEntry, err error) {
	start := time.Now()
	defer func() { fs.record("ls", start, 0, err) }()

	for entry, err := range fs.mapper.ListChildren(ctx, path, recursive) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		info, err := fs.mapper.Info(ctx, path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return []types.DirEntry{info}, nil
		}
		return []types.DirEntry{}, nil
	}

	sortEntries(entries)
	return entries, nil
}

// FindOptions bound a Find walk.
type FindOptions struct {
	// MaxDepth limits how many levels below path are visited; 0 is unlimited.
	MaxDepth int
	// WithDirs includes directory entries alongside files.
	WithDirs bool
}

// Find returns every file below path sorted by name. Finding a file returns
// the file itself.
func (fs *FileSystem) Find(ctx context.Context, path string, opts FindOptions) (entries []types.DirEntry, err error) {
	start := time.Now()
	defer func() { fs.record("find", start, 0, err) }()

	info, err := fs.mapper.Info(ctx, path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []types.DirEntry{info}, nil
	}

	entries = []types.DirEntry{}
	if opts.MaxDepth <= 0 && !opts.WithDirs {
		for entry, err := range fs.mapper.ListChildren(ctx, path, true) {
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	} else if entries, err = fs.walk(ctx, path, 1, opts, entries); err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// walk appends the entries below path one level at a time.
func (fs *FileSystem) walk(ctx context.Context, path string, depth int, opts FindOptions, entries []types.DirEntry) ([]types.DirEntry, error) {
	var dirs []string
	for entry, err := range fs.mapper.ListChildren(ctx, path, false) {
		if err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			entries = append(entries, entry)
			continue
		}
		if opts.WithDirs {
			entries = append(entries, entry)
		}
		dirs = append(dirs, entry.Name)
	}
	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		return entries, nil
	}
	for _, dir := range dirs {
		var err error
		if entries, err = fs.walk(ctx, dir, depth+1, opts, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Exists reports whether path names a file or a directory.
func (fs *FileSystem) Exists(ctx context.Context, path string) (ok bool, err error) {
	start := time.Now()
	defer func() { fs.record("exists", start, 0, err) }()
	return fs.mapper.Exists(ctx, path)
}

// Info describes path.
func (fs *FileSystem) Info(ctx context.Context, path string) (entry types.DirEntry, err error) {
	start := time.Now()
	defer func() { fs.record("info", start, 0, err) }()
	return fs.mapper.Info(ctx, path)
}

// Mkdir creates an explicit directory marker for path.
func (fs *FileSystem) Mkdir(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { fs.record("mkdir", start, 0, err) }()
	return fs.mapper.MakeDirectory(ctx, path)
}

// Rm removes path. Directories with children need recursive.
func (fs *FileSystem) Rm(ctx context.Context, path string, recursive bool) (err error) {
	start := time.Now()
	defer func() { fs.record("rm", start, 0, err) }()
	return fs.mapper.Remove(ctx, path, recursive)
}

// Touch creates path as an empty object, truncating any existing one.
func (fs *FileSystem) Touch(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { fs.record("touch", start, 0, err) }()

	key, err := fs.fileKey(path)
	if err != nil {
		return err
	}
	info, err := fs.mapper.Info(ctx, path)
	switch {
	case err == nil && info.IsDir():
		return fserrors.InvalidPath(path, "path is a directory")
	case err != nil && !errors.Is(err, fserrors.ErrObjectNotFound):
		return err
	}
	return fs.backend.Put(ctx, key, nil)
}

// Cat returns bytes [start, end) of the object at path. Negative offsets
// count back from the end of the object and end is clamped to its size.
func (fs *FileSystem) Cat(ctx context.Context, path string, start, end int64) (data []byte, err error) {
	began := time.Now()
	defer func() { fs.record("cat", began, int64(len(data)), err) }()

	key, err := fs.fileKey(path)
	if err != nil {
		return nil, err
	}
	info, err := fs.backend.Head(ctx, key)
	if err != nil {
		return nil, err
	}

	start, end = clampRange(start, end, info.Size)
	if start >= end {
		return []byte{}, nil
	}
	return fs.backend.GetRange(ctx, key, start, end)
}

// ReadFile returns the whole object at path.
func (fs *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return fs.Cat(ctx, path, 0, math.MaxInt64)
}

// Pipe writes data as the complete contents of path.
func (fs *FileSystem) Pipe(ctx context.Context, path string, data []byte) (err error) {
	start := time.Now()
	defer func() { fs.record("pipe", start, int64(len(data)), err) }()

	key, err := fs.fileKey(path)
	if err != nil {
		return err
	}

	w := stream.NewWriter(ctx, fs.backend, key, fs.opts)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Copy copies the object at src to dst. Backends that copy server side are
// used directly; otherwise the object is streamed through this process.
func (fs *FileSystem) Copy(ctx context.Context, src, dst string) (err error) {
	start := time.Now()
	var copied int64
	defer func() { fs.record("copy", start, copied, err) }()

	srcKey, err := fs.fileKey(src)
	if err != nil {
		return err
	}
	dstKey, err := fs.fileKey(dst)
	if err != nil {
		return err
	}
	info, err := fs.backend.Head(ctx, srcKey)
	if err != nil {
		return err
	}

	if copier, ok := fs.backend.(types.Copier); ok {
		if err := copier.Copy(ctx, srcKey, dstKey); err != nil {
			return err
		}
		copied = info.Size
		return nil
	}

	r := stream.NewReader(ctx, fs.backend, srcKey, fs.opts)
	defer r.Close()
	w := stream.NewWriter(ctx, fs.backend, dstKey, fs.opts)

	copied, err = io.Copy(w, r)
	if err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			fs.logger.Warn("Failed to abort copy", "src", srcKey, "dst", dstKey, "error", abortErr)
		}
		return err
	}
	return w.Close()
}

// Get downloads the object at rpath into the local file lpath, creating
// parent directories as needed. A partial local file is removed on failure.
func (fs *FileSystem) Get(ctx context.Context, rpath, lpath string) (err error) {
	start := time.Now()
	var copied int64
	defer func() { fs.record("get", start, copied, err) }()

	key, err := fs.fileKey(rpath)
	if err != nil {
		return err
	}
	r := stream.NewReader(ctx, fs.backend, key, fs.opts)
	defer r.Close()
	if _, err := r.Size(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(lpath), 0o755); err != nil {
		return fmt.Errorf("create local directory for %s: %w", lpath, err)
	}
	f, err := os.Create(lpath)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", lpath, err)
	}

	copied, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(lpath); rmErr != nil {
			fs.logger.Warn("Failed to remove partial download", "path", lpath, "error", rmErr)
		}
		return fmt.Errorf("download %s to %s: %w", key, lpath, err)
	}
	fs.logger.Debug("Downloaded object", "key", key, "path", lpath, "bytes", copied)
	return nil
}

// Put uploads the local file lpath to rpath through a Writer. The upload is
// aborted when reading the local file fails.
func (fs *FileSystem) Put(ctx context.Context, lpath, rpath string) (err error) {
	start := time.Now()
	var copied int64
	defer func() { fs.record("put", start, copied, err) }()

	key, err := fs.fileKey(rpath)
	if err != nil {
		return err
	}
	f, err := os.Open(lpath)
	if err != nil {
		return fmt.Errorf("open local file %s: %w", lpath, err)
	}
	defer f.Close()

	w := stream.NewWriter(ctx, fs.backend, key, fs.opts)
	copied, err = io.Copy(w, f)
	if err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			fs.logger.Warn("Failed to abort upload", "path", lpath, "key", key, "error", abortErr)
		}
		return fmt.Errorf("upload %s to %s: %w", lpath, key, err)
	}
	if err := w.Close(); err != nil {
		return err
	}
	fs.logger.Debug("Uploaded file", "path", lpath, "key", key, "bytes", copied)
	return nil
}

// Checksum returns a content token for path derived from its key, size,
// modification time and ETag. It changes whenever the object is rewritten.
func (fs *FileSystem) Checksum(ctx context.Context, path string) (sum string, err error) {
	start := time.Now()
	defer func() { fs.record("checksum", start, 0, err) }()

	info, err := fs.mapper.Info(ctx, path)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s", info.Key, info.Size, info.LastModified.UnixNano(), info.ETag)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Modified returns the last modification time of path. Directories without
// a marker object have none.
func (fs *FileSystem) Modified(ctx context.Context, path string) (t time.Time, err error) {
	start := time.Now()
	defer func() { fs.record("modified", start, 0, err) }()

	info, err := fs.mapper.Info(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	if info.LastModified.IsZero() {
		return time.Time{}, fserrors.Unsupported("modified", "path has no modification time").
			WithContext("path", path)
	}
	return info.LastModified, nil
}

func clampRange(start, end, size int64) (int64, int64) {
	if start < 0 {
		start = max(0, size+start)
	}
	if end < 0 {
		end = max(0, size+end)
	}
	return min(start, size), min(end, size)
}

func sortEntries(entries []types.DirEntry) {
	slices.SortFunc(entries, func(a, b types.DirEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
}
