package filesystem

import (
	"io"
	"time"

	"github.com/objectfs/bucketfs/internal/stream"
	fserrors "github.com/objectfs/bucketfs/pkg/errors"
)

// File is an open stream returned by FileSystem.Open. It is either
// read-only or write-only; the other direction is unsupported.
type File struct {
	fs     *FileSystem
	path   string
	mode   stream.Mode
	reader *stream.Reader
	writer *stream.Writer
	opened time.Time
	closed bool
}

var _ io.ReadWriteSeeker = (*File)(nil)

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Mode returns the open mode.
func (f *File) Mode() stream.Mode {
	return f.mode
}

// Reader returns the read stream, or nil for write mode.
func (f *File) Reader() *stream.Reader {
	return f.reader
}

// Writer returns the write stream, or nil for read mode.
func (f *File) Writer() *stream.Writer {
	return f.writer
}

func (f *File) wrongMode(op string) error {
	return fserrors.Unsupported(op, "file opened in "+f.mode.String()+" mode").WithContext("path", f.path)
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if f.reader == nil {
		return 0, f.wrongMode("read")
	}
	return f.reader.Read(p)
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.reader == nil {
		return 0, f.wrongMode("read")
	}
	return f.reader.ReadAt(p, off)
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	if f.writer == nil {
		return 0, f.wrongMode("write")
	}
	return f.writer.Write(p)
}

// Seek implements io.Seeker. Write streams cannot seek.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.reader != nil {
		return f.reader.Seek(offset, whence)
	}
	return f.writer.Seek(offset, whence)
}

// Tell returns the current position.
func (f *File) Tell() int64 {
	if f.reader != nil {
		return f.reader.Tell()
	}
	return f.writer.Written()
}

// Close closes the stream. For write mode this finalizes the object. Closing
// twice is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.reader != nil {
		return f.reader.Close()
	}
	err := f.writer.Close()
	f.fs.record("write", f.opened, f.writer.Written(), err)
	return err
}

// Abort discards a write stream without creating the object.
func (f *File) Abort() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.writer == nil {
		return f.reader.Close()
	}
	return f.writer.Abort()
}
