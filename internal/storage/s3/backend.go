// Package s3 implements the object backend on top of aws-sdk-go-v2. It works
// against AWS S3 and S3-compatible services such as Aliyun OSS and MinIO by
// pointing Config.Endpoint at the service.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	fserrors "github.com/objectfs/bucketfs/pkg/errors"
	"github.com/objectfs/bucketfs/pkg/types"
)

// API defines the subset of the S3 client used by the backend.
// *s3.Client satisfies it.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

var _ API = (*s3.Client)(nil)

// Recorder receives per-request observations.
type Recorder interface {
	RecordBackend(operation string, duration time.Duration, err error)
	RecordBytes(direction string, n int64)
}

// BackendMetrics tracks S3 backend request metrics
type BackendMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error"`
	LastErrorTime   time.Time     `json:"last_error_time"`

	MultipartUploads          int64 `json:"multipart_uploads"`
	MultipartUploadsParts     int64 `json:"multipart_uploads_parts"`
	MultipartUploadsCompleted int64 `json:"multipart_uploads_completed"`
	MultipartUploadsAborted   int64 `json:"multipart_uploads_aborted"`
}

// Backend implements types.ObjectBackend for one bucket.
type Backend struct {
	client       API
	bucket       string
	storageClass s3types.StorageClass
	logger       *slog.Logger
	recorder     Recorder

	mu      sync.Mutex
	metrics BackendMetrics
}

var (
	_ types.ObjectBackend = (*Backend)(nil)
	_ types.Copier        = (*Backend)(nil)
)

// New creates a backend over client. Use NewClient to build a client from Config.
func New(client API, cfg *Config, logger *slog.Logger) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fserrors.NewError(fserrors.ErrCodeInvalidConfig, "invalid s3 config").
			WithComponent("s3").
			WithCause(err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Backend{
		client:       client,
		bucket:       cfg.Bucket,
		storageClass: convertTierToStorageClass(cfg.StorageClass),
		logger:       logger.With("component", "s3", "bucket", cfg.Bucket),
	}, nil
}

// SetRecorder installs a recorder notified after every request.
func (b *Backend) SetRecorder(r Recorder) {
	b.recorder = r
}

// Head implements types.ObjectBackend.
func (b *Backend) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	start := time.Now()
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	b.observe("HeadObject", start, err)
	if err != nil {
		return types.ObjectInfo{}, b.translateError(err, "HeadObject", key)
	}

	return types.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
		StorageClass: storageClassName(string(out.StorageClass)),
	}, nil
}

// GetRange implements types.ObjectBackend. A range starting past the end of
// the object yields no bytes.
func (b *Backend) GetRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return []byte{}, nil
	}

	begin := time.Now()
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
	})
	if err != nil {
		b.observe("GetObject", begin, err)
		if isErrorCode(err, "InvalidRange") {
			return []byte{}, nil
		}
		return nil, b.translateError(err, "GetObject", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	b.observe("GetObject", begin, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.addBytes("download", int64(len(data)))
	return data, nil
}

// Put implements types.ObjectBackend.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(detectContentType(key)),
		StorageClass:  b.storageClass,
	})
	b.observe("PutObject", start, err)
	if err != nil {
		return b.translateError(err, "PutObject", key)
	}

	b.addBytes("upload", int64(len(data)))
	return nil
}

// List implements types.ObjectBackend with one ListObjectsV2 request.
func (b *Backend) List(ctx context.Context, prefix, delimiter, token string) (types.ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	start := time.Now()
	out, err := b.client.ListObjectsV2(ctx, input)
	b.observe("ListObjectsV2", start, err)
	if err != nil {
		return types.ListPage{}, b.translateError(err, "ListObjectsV2", prefix)
	}

	page := types.ListPage{
		Objects:        make([]types.ObjectInfo, 0, len(out.Contents)),
		CommonPrefixes: make([]string, 0, len(out.CommonPrefixes)),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, types.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         aws.ToString(obj.ETag),
			StorageClass: storageClassName(string(obj.StorageClass)),
		})
	}
	for _, cp := range out.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// Delete implements types.ObjectBackend. Deleting a missing key succeeds.
func (b *Backend) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	b.observe("DeleteObject", start, err)
	if err != nil && !isNotFound(err) {
		return b.translateError(err, "DeleteObject", key)
	}
	return nil
}

// DeleteBatch implements types.ObjectBackend with one DeleteObjects request.
// Per-key failures reported by the service are returned in the results.
func (b *Backend) DeleteBatch(ctx context.Context, keys []string) ([]types.DeleteResult, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	objects := make([]s3types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(k)})
	}

	start := time.Now()
	out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.bucket),
		Delete: &s3types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(false),
		},
	})
	b.observe("DeleteObjects", start, err)
	if err != nil {
		return nil, b.translateError(err, "DeleteObjects", keys[0])
	}

	failed := make(map[string]error, len(out.Errors))
	for _, e := range out.Errors {
		key := aws.ToString(e.Key)
		code := aws.ToString(e.Code)
		errCode := fserrors.ErrCodeStorageWrite
		if code == "AccessDenied" {
			errCode = fserrors.ErrCodeAccessDenied
		}
		failed[key] = fserrors.NewError(errCode, aws.ToString(e.Message)).
			WithComponent("s3").
			WithOperation("DeleteObjects").
			WithContext("key", key).
			WithDetail("code", code)
	}

	results := make([]types.DeleteResult, 0, len(keys))
	for _, k := range keys {
		results = append(results, types.DeleteResult{Key: k, Err: failed[k]})
	}
	if len(failed) > 0 {
		b.logger.Debug("DeleteObjects reported failures", "keys", len(keys), "failed", len(failed))
	}
	return results, nil
}

// Copy implements types.Copier with a server-side CopyObject.
func (b *Backend) Copy(ctx context.Context, srcKey, dstKey string) error {
	start := time.Now()
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(dstKey),
		CopySource:   aws.String(copySource(b.bucket, srcKey)),
		StorageClass: b.storageClass,
	})
	b.observe("CopyObject", start, err)
	if err != nil {
		return b.translateError(err, "CopyObject", srcKey)
	}
	return nil
}

// MultipartInit implements types.ObjectBackend.
func (b *Backend) MultipartInit(ctx context.Context, key string) (string, error) {
	start := time.Now()
	out, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(key),
		ContentType:  aws.String(detectContentType(key)),
		StorageClass: b.storageClass,
	})
	b.observe("CreateMultipartUpload", start, err)
	if err != nil {
		return "", b.translateError(err, "CreateMultipartUpload", key)
	}

	b.mu.Lock()
	b.metrics.MultipartUploads++
	b.mu.Unlock()
	return aws.ToString(out.UploadId), nil
}

// MultipartPutPart implements types.ObjectBackend.
func (b *Backend) MultipartPutPart(ctx context.Context, key, uploadID string, number int32, data []byte) (string, error) {
	start := time.Now()
	out, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	b.observe("UploadPart", start, err)
	if err != nil {
		return "", b.translateError(err, "UploadPart", key)
	}

	b.mu.Lock()
	b.metrics.MultipartUploadsParts++
	b.mu.Unlock()
	b.addBytes("upload", int64(len(data)))
	return aws.ToString(out.ETag), nil
}

// MultipartComplete implements types.ObjectBackend.
func (b *Backend) MultipartComplete(ctx context.Context, key, uploadID string, parts []types.CompletedPart) error {
	completed := make([]s3types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, s3types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		})
	}

	start := time.Now()
	_, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	b.observe("CompleteMultipartUpload", start, err)
	if err != nil {
		return b.translateError(err, "CompleteMultipartUpload", key)
	}

	b.mu.Lock()
	b.metrics.MultipartUploadsCompleted++
	b.mu.Unlock()
	return nil
}

// MultipartAbort implements types.ObjectBackend.
func (b *Backend) MultipartAbort(ctx context.Context, key, uploadID string) error {
	start := time.Now()
	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	b.observe("AbortMultipartUpload", start, err)
	if err != nil {
		return b.translateError(err, "AbortMultipartUpload", key)
	}

	b.mu.Lock()
	b.metrics.MultipartUploadsAborted++
	b.mu.Unlock()
	return nil
}

// GetMetrics returns current backend metrics
func (b *Backend) GetMetrics() BackendMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// Helper methods

func (b *Backend) observe(operation string, start time.Time, err error) {
	duration := time.Since(start)

	b.mu.Lock()
	b.metrics.Requests++
	if err != nil {
		b.metrics.Errors++
		b.metrics.LastError = err.Error()
		b.metrics.LastErrorTime = time.Now()
	}
	if b.metrics.Requests == 1 {
		b.metrics.AverageLatency = duration
	} else {
		b.metrics.AverageLatency = time.Duration(
			(int64(b.metrics.AverageLatency)*9 + int64(duration)) / 10,
		)
	}
	b.mu.Unlock()

	if b.recorder != nil {
		b.recorder.RecordBackend(operation, duration, err)
	}
}

func (b *Backend) addBytes(direction string, n int64) {
	b.mu.Lock()
	if direction == "upload" {
		b.metrics.BytesUploaded += n
	} else {
		b.metrics.BytesDownloaded += n
	}
	b.mu.Unlock()

	if b.recorder != nil {
		b.recorder.RecordBytes(direction, n)
	}
}

func (b *Backend) translateError(err error, operation, key string) error {
	switch {
	case isNotFound(err):
		return fserrors.NotFound(key, err).WithComponent("s3").WithOperation(operation)
	case isErrorType[*s3types.NoSuchBucket](err) || isErrorCode(err, "NoSuchBucket"):
		return fserrors.NewError(fserrors.ErrCodeBucketNotFound, "bucket not found").
			WithComponent("s3").
			WithOperation(operation).
			WithContext("bucket", b.bucket).
			WithCause(err)
	case isErrorCode(err, "AccessDenied") || isErrorCode(err, "403"):
		return fserrors.NewError(fserrors.ErrCodeAccessDenied, "access denied").
			WithComponent("s3").
			WithOperation(operation).
			WithContext("key", key).
			WithCause(err)
	default:
		return fmt.Errorf("%s failed for %s: %w", operation, key, err)
	}
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return true
	}
	return isErrorCode(err, "NotFound") || isErrorCode(err, "NoSuchKey") || isErrorCode(err, "404")
}

func isErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == code
	}
	return false
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// copySource escapes each key segment for the x-amz-copy-source header.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, "/"):
		return "application/x-directory"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".html"):
		return "text/html"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
