// Package stream implements buffered file-like streams over a single object:
// a seekable Reader with readahead and a sequential Writer that switches to
// multipart upload once a full part has been buffered.
package stream

import (
	"fmt"
	"log/slog"

	"github.com/objectfs/bucketfs/internal/buffer"
	fserrors "github.com/objectfs/bucketfs/pkg/errors"
)

const (
	// DefaultBlockSize is the minimum readahead fetch.
	DefaultBlockSize = 5 * 1024 * 1024
	// DefaultPartSize is the multipart part size. S3 and OSS reject
	// non-final parts below 5 MiB.
	DefaultPartSize = 5 * 1024 * 1024
)

// Mode selects the direction of a stream.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a file mode string onto a Mode. Append and update modes
// have no object storage equivalent.
func ParseMode(mode string) (Mode, error) {
	switch mode {
	case "r", "rb", "":
		return ModeRead, nil
	case "w", "wb":
		return ModeWrite, nil
	default:
		return 0, fserrors.Unsupported("open", fmt.Sprintf("mode %q is not supported", mode))
	}
}

// Options configures a stream.
type Options struct {
	BlockSize int
	PartSize  int
	Logger    *slog.Logger
	Pool      *buffer.BytePool
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.PartSize <= 0 {
		o.PartSize = DefaultPartSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Pool == nil {
		o.Pool = buffer.Default()
	}
	return o
}

func closedError(key string) error {
	return fserrors.NewError(fserrors.ErrCodeStreamClosed, "stream is closed").WithContext("key", key)
}
