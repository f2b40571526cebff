package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/objectfs/bucketfs/internal/buffer"
	fserrors "github.com/objectfs/bucketfs/pkg/errors"
	"github.com/objectfs/bucketfs/pkg/types"
)

// Writer is a sequential write stream over one object. Bytes accumulate in a
// part buffer; each full buffer is uploaded as the next multipart part, with
// the upload initiated on the first flush. Objects smaller than one part are
// written with a single Put on Close.
//
// Any failure after the upload has started aborts it exactly once and leaves
// the Writer failed: later writes and Close return the same UploadFailedError.
//
// A Writer is owned by a single goroutine.
type Writer struct {
	ctx      context.Context
	backend  types.ObjectBackend
	key      string
	partSize int
	pool     *buffer.BytePool
	logger   *slog.Logger

	buf     []byte
	written int64
	upload  *uploadState
	err     error
	closed  bool
}

var _ io.WriteCloser = (*Writer)(nil)

// NewWriter opens key for writing. Nothing is sent to the backend until a
// full part is buffered or the Writer is closed.
func NewWriter(ctx context.Context, backend types.ObjectBackend, key string, opts Options) *Writer {
	opts = opts.withDefaults()
	return &Writer{
		ctx:      ctx,
		backend:  backend,
		key:      key,
		partSize: opts.PartSize,
		pool:     opts.Pool,
		logger:   opts.Logger.With("component", "stream", "key", key),
		buf:      opts.Pool.Get(opts.PartSize)[:0],
		upload:   newUploadState(key),
	}
}

// Key returns the object key being written.
func (w *Writer) Key() string {
	return w.key
}

// Written returns the number of bytes accepted so far.
func (w *Writer) Written() int64 {
	return w.written
}

// Status returns the state of the underlying upload.
func (w *Writer) Status() UploadStatus {
	return w.upload.Status
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, closedError(w.key)
	}
	if w.err != nil {
		return 0, w.err
	}

	n := 0
	for len(p) > 0 {
		take := min(w.partSize-len(w.buf), len(p))
		w.buf = append(w.buf, p[:take]...)
		p = p[take:]
		n += take
		w.written += int64(take)

		if len(w.buf) == w.partSize {
			if err := w.flushPart(); err != nil {
				return n, w.fail(err)
			}
		}
	}
	return n, nil
}

// Seek is not supported on write streams. The buffered state is unchanged.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	return w.written, fserrors.Unsupported("seek", "write streams are sequential").WithContext("key", w.key)
}

// flushPart uploads the buffered bytes as the next part.
func (w *Writer) flushPart() error {
	if !w.upload.started() {
		id, err := w.backend.MultipartInit(w.ctx, w.key)
		if err != nil {
			return fmt.Errorf("initiate multipart upload: %w", err)
		}
		w.upload.begin(id)
		w.logger.Debug("Initiated multipart upload", "upload_id", id)
	}

	number := w.upload.nextPart()
	etag, err := w.backend.MultipartPutPart(w.ctx, w.key, w.upload.ID, number, w.buf)
	if err != nil {
		return fmt.Errorf("upload part %d: %w", number, err)
	}
	w.upload.addPart(number, etag, len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

// fail records cause, aborts any started upload and returns the sticky error.
func (w *Writer) fail(cause error) error {
	if abortErr := w.abort(); abortErr != nil {
		w.logger.Warn("Failed to abort multipart upload",
			"upload_id", w.upload.ID,
			"error", abortErr)
	}
	w.upload.Status = UploadStatusFailed
	w.err = fserrors.UploadFailed(w.key, w.upload.ID, cause)
	return w.err
}

// abort aborts the started upload at most once. It runs on a context that
// ignores the caller's cancellation.
func (w *Writer) abort() error {
	if !w.upload.started() || w.upload.aborted {
		return nil
	}
	w.upload.aborted = true
	w.upload.Status = UploadStatusAborted
	return w.backend.MultipartAbort(context.WithoutCancel(w.ctx), w.key, w.upload.ID)
}

func (w *Writer) release() {
	w.pool.Put(w.buf)
	w.buf = nil
}

// Close finalizes the object. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.release()

	if w.err != nil {
		return w.err
	}

	start := time.Now()
	if !w.upload.started() {
		if err := w.backend.Put(w.ctx, w.key, w.buf); err != nil {
			w.upload.Status = UploadStatusFailed
			w.err = fserrors.UploadFailed(w.key, "", err)
			return w.err
		}
		w.upload.Status = UploadStatusCompleted
		w.logger.Debug("Put object", "bytes", len(w.buf), "duration", time.Since(start))
		return nil
	}

	if len(w.buf) > 0 {
		if err := w.flushPart(); err != nil {
			return w.fail(err)
		}
	}
	if err := w.backend.MultipartComplete(w.ctx, w.key, w.upload.ID, w.upload.Parts); err != nil {
		return w.fail(fmt.Errorf("complete multipart upload: %w", err))
	}

	w.upload.Status = UploadStatusCompleted
	w.logger.Debug("Completed multipart upload",
		"upload_id", w.upload.ID,
		"parts", len(w.upload.Parts),
		"bytes", w.upload.BytesUploaded,
		"duration", time.Since(w.upload.StartedAt))
	return nil
}

// Abort discards everything written and aborts any started upload.
// The Writer is closed afterwards.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.release()

	if err := w.abort(); err != nil {
		return fmt.Errorf("abort multipart upload %s: %w", w.upload.ID, err)
	}
	w.upload.Status = UploadStatusAborted
	return nil
}
