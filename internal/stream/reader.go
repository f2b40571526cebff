package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/objectfs/bucketfs/pkg/types"
)

// Reader is a seekable read stream over one object. Reads are served from a
// readahead buffer of at least BlockSize bytes and only go to the backend
// when the requested range is not already buffered.
//
// A Reader is owned by a single goroutine.
type Reader struct {
	ctx       context.Context
	backend   types.ObjectBackend
	key       string
	blockSize int64
	logger    *slog.Logger

	size  int64
	sized bool
	pos   int64

	buf      []byte
	bufStart int64

	closed bool
}

var (
	_ io.ReadSeekCloser = (*Reader)(nil)
	_ io.ReaderAt       = (*Reader)(nil)
)

// NewReader opens key for reading. The object size is fetched lazily, so a
// missing object surfaces as ObjectNotFoundError on the first read or seek
// relative to the end.
func NewReader(ctx context.Context, backend types.ObjectBackend, key string, opts Options) *Reader {
	opts = opts.withDefaults()
	return &Reader{
		ctx:       ctx,
		backend:   backend,
		key:       key,
		blockSize: int64(opts.BlockSize),
		logger:    opts.Logger.With("component", "stream", "key", key),
	}
}

// Key returns the object key being read.
func (r *Reader) Key() string {
	return r.key
}

// Size returns the object size.
func (r *Reader) Size() (int64, error) {
	if err := r.ensureSize(); err != nil {
		return 0, err
	}
	return r.size, nil
}

func (r *Reader) ensureSize() error {
	if r.sized {
		return nil
	}
	info, err := r.backend.Head(r.ctx, r.key)
	if err != nil {
		return err
	}
	r.size = info.Size
	r.sized = true
	return nil
}

// buffered returns the buffered bytes for [start, end) if all of them are held.
func (r *Reader) buffered(start, end int64) ([]byte, bool) {
	if r.buf == nil || start < r.bufStart || end > r.bufStart+int64(len(r.buf)) {
		return nil, false
	}
	return r.buf[start-r.bufStart : end-r.bufStart], true
}

func (r *Reader) fetch(start, end int64) ([]byte, error) {
	data, err := r.backend.GetRange(r.ctx, r.key, start, end)
	if err != nil {
		return nil, fmt.Errorf("read %s [%d,%d): %w", r.key, start, end, err)
	}
	if int64(len(data)) < end-start {
		return data, io.ErrUnexpectedEOF
	}
	return data, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, closedError(r.key)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.ensureSize(); err != nil {
		return 0, err
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}

	want := min(int64(len(p)), r.size-r.pos)
	if data, ok := r.buffered(r.pos, r.pos+want); ok {
		n := copy(p, data)
		r.pos += int64(n)
		return n, nil
	}

	end := min(r.size, r.pos+max(want, r.blockSize))
	data, err := r.fetch(r.pos, end)
	if err != nil && len(data) == 0 {
		return 0, err
	}
	r.buf = data
	r.bufStart = r.pos
	r.logger.Debug("Filled readahead buffer", "start", r.pos, "bytes", len(data))

	n := copy(p, data)
	r.pos += int64(n)
	return n, nil
}

// ReadN returns up to n bytes from the current position. A negative n reads
// to the end of the object in a single backend call. At end of object it
// returns an empty slice.
func (r *Reader) ReadN(n int) ([]byte, error) {
	if r.closed {
		return nil, closedError(r.key)
	}
	if err := r.ensureSize(); err != nil {
		return nil, err
	}
	if r.pos >= r.size || n == 0 {
		return []byte{}, nil
	}

	if n < 0 {
		data, ok := r.buffered(r.pos, r.size)
		if ok {
			data = bytes.Clone(data)
		} else {
			var err error
			if data, err = r.fetch(r.pos, r.size); err != nil {
				return nil, err
			}
		}
		r.pos += int64(len(data))
		return data, nil
	}

	out := make([]byte, min(int64(n), r.size-r.pos))
	read, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return out[:read], err
	}
	return out[:read], nil
}

// ReadAll reads from the current position to the end of the object.
func (r *Reader) ReadAll() ([]byte, error) {
	return r.ReadN(-1)
}

// ReadAt implements io.ReaderAt. It does not move the cursor.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if r.closed {
		return 0, closedError(r.key)
	}
	if off < 0 {
		return 0, fmt.Errorf("read %s: negative offset %d", r.key, off)
	}
	if err := r.ensureSize(); err != nil {
		return 0, err
	}
	if off >= r.size {
		return 0, io.EOF
	}

	end := min(r.size, off+int64(len(p)))
	data, ok := r.buffered(off, end)
	if !ok {
		var err error
		if data, err = r.fetch(off, end); err != nil && len(data) == 0 {
			return 0, err
		}
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek implements io.Seeker. The readahead buffer survives seeks that land
// inside it.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, closedError(r.key)
	}

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.pos + offset
	case io.SeekEnd:
		if err := r.ensureSize(); err != nil {
			return 0, err
		}
		next = r.size + offset
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", r.key, whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek %s: negative position %d", r.key, next)
	}
	r.pos = next
	return next, nil
}

// Tell returns the current position.
func (r *Reader) Tell() int64 {
	return r.pos
}

// Close releases the readahead buffer. Closing twice is a no-op.
func (r *Reader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
