package types

import (
	"context"
)

// ObjectBackend defines the capability bucketfs needs from an object storage SDK.
// Implementations report missing keys with an error matching errors.ErrObjectNotFound.
type ObjectBackend interface {
	Head(ctx context.Context, key string) (ObjectInfo, error)
	// GetRange returns bytes [start, end) of key.
	GetRange(ctx context.Context, key string, start, end int64) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix, delimiter, token string) (ListPage, error)

	Delete(ctx context.Context, key string) error
	// DeleteBatch returns one result per requested key. A non-nil error means
	// the whole batch failed and no per-key results are available.
	DeleteBatch(ctx context.Context, keys []string) ([]DeleteResult, error)

	MultipartInit(ctx context.Context, key string) (string, error)
	MultipartPutPart(ctx context.Context, key, uploadID string, number int32, data []byte) (string, error)
	MultipartComplete(ctx context.Context, key, uploadID string, parts []CompletedPart) error
	MultipartAbort(ctx context.Context, key, uploadID string) error
}

// Copier is implemented by backends that copy objects server side.
type Copier interface {
	Copy(ctx context.Context, srcKey, dstKey string) error
}
