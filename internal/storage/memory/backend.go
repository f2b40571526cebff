// Package memory provides an in-process ObjectBackend with S3 listing semantics,
// call counters and fault injection. It backs the component tests and local runs.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	fserrors "github.com/objectfs/bucketfs/pkg/errors"
	"github.com/objectfs/bucketfs/pkg/types"
)

// Operation names used by call counters and fault rules.
const (
	OpHead              = "Head"
	OpGetRange          = "GetRange"
	OpPut               = "Put"
	OpList              = "List"
	OpDelete            = "Delete"
	OpDeleteBatch       = "DeleteBatch"
	OpMultipartInit     = "MultipartInit"
	OpMultipartPutPart  = "MultipartPutPart"
	OpMultipartComplete = "MultipartComplete"
	OpMultipartAbort    = "MultipartAbort"
	OpCopy              = "Copy"
)

// DefaultPageSize matches the S3 ListObjectsV2 default MaxKeys.
const DefaultPageSize = 1000

// Hook is consulted before every call. A non-nil return fails the call.
type Hook func(ctx context.Context, op, key string) error

type object struct {
	data         []byte
	modified     time.Time
	etag         string
	storageClass string
}

type upload struct {
	key   string
	parts map[int32][]byte
	etags map[int32]string
}

// Backend is a thread-safe in-memory object store.
type Backend struct {
	mu         sync.Mutex
	objects    map[string]*object
	uploads    map[string]*upload
	nextUpload int
	pageSize   int

	calls map[string]int
	rules map[string]map[string]error
	hook  Hook
}

var (
	_ types.ObjectBackend = (*Backend)(nil)
	_ types.Copier        = (*Backend)(nil)
)

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		objects:  make(map[string]*object),
		uploads:  make(map[string]*upload),
		pageSize: DefaultPageSize,
		calls:    make(map[string]int),
		rules:    make(map[string]map[string]error),
	}
}

// SetPageSize sets the maximum number of entries per List page.
func (b *Backend) SetPageSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		n = DefaultPageSize
	}
	b.pageSize = n
}

// SetHook installs a hook consulted before every call.
func (b *Backend) SetHook(h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = h
}

// FailOn makes op fail with err for key. An empty key matches every key.
// For DeleteBatch a keyed rule fails that key only; an unkeyed rule fails the batch.
func (b *Backend) FailOn(op, key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rules[op] == nil {
		b.rules[op] = make(map[string]error)
	}
	b.rules[op][key] = err
}

// ClearFaults removes all fault rules and the hook.
func (b *Backend) ClearFaults() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = make(map[string]map[string]error)
	b.hook = nil
}

// Calls returns how many times op has been invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// ResetCounts resets call counters for test isolation.
func (b *Backend) ResetCounts() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
}

// Keys returns all stored keys in lexicographic order.
func (b *Backend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedKeysLocked()
}

// Object returns a copy of the stored bytes for key.
func (b *Backend) Object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// SetObject stores data under key. An empty storageClass keeps the default.
func (b *Backend) SetObject(key string, data []byte, storageClass string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.storeLocked(key, data)
	if storageClass != "" {
		b.objects[key].storageClass = storageClass
	}
}

// PendingUploads returns the number of multipart uploads neither completed nor aborted.
func (b *Backend) PendingUploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uploads)
}

// enter counts the call and evaluates faults. Callers must not hold mu.
func (b *Backend) enter(ctx context.Context, op, key string) error {
	b.mu.Lock()
	b.calls[op]++
	hook := b.hook
	var ruleErr error
	if rules := b.rules[op]; rules != nil {
		if err, ok := rules[key]; ok {
			ruleErr = err
		} else if err, ok := rules[""]; ok {
			ruleErr = err
		}
	}
	b.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op, key); err != nil {
			return err
		}
	}
	if ruleErr != nil {
		return ruleErr
	}
	return ctx.Err()
}

// Head implements types.ObjectBackend.
func (b *Backend) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	if err := b.enter(ctx, OpHead, key); err != nil {
		return types.ObjectInfo{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	if !ok {
		return types.ObjectInfo{}, fserrors.NotFound(key, nil)
	}
	return b.infoLocked(key, obj), nil
}

// GetRange implements types.ObjectBackend.
func (b *Backend) GetRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if err := b.enter(ctx, OpGetRange, key); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, fserrors.NotFound(key, nil)
	}
	size := int64(len(obj.data))
	if start < 0 {
		start = 0
	}
	if end > size {
		end = size
	}
	if start >= end {
		return []byte{}, nil
	}
	return bytes.Clone(obj.data[start:end]), nil
}

// Put implements types.ObjectBackend.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	if err := b.enter(ctx, OpPut, key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.storeLocked(key, data)
	return nil
}

// List implements types.ObjectBackend with S3 ListObjectsV2 semantics.
// The continuation token is the last entry name of the previous page.
func (b *Backend) List(ctx context.Context, prefix, delimiter, token string) (types.ListPage, error) {
	if err := b.enter(ctx, OpList, prefix); err != nil {
		return types.ListPage{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	type entry struct {
		name     string
		isPrefix bool
	}
	var entries []entry
	seen := make(map[string]bool)
	for _, key := range b.sortedKeysLocked() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if delimiter != "" {
			rest := key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !seen[cp] {
					seen[cp] = true
					entries = append(entries, entry{name: cp, isPrefix: true})
				}
				continue
			}
		}
		entries = append(entries, entry{name: key})
	}

	var page types.ListPage
	count := 0
	for i, e := range entries {
		if token != "" && e.name <= token {
			continue
		}
		if count == b.pageSize {
			page.NextToken = entries[i-1].name
			break
		}
		if e.isPrefix {
			page.CommonPrefixes = append(page.CommonPrefixes, e.name)
		} else {
			page.Objects = append(page.Objects, b.infoLocked(e.name, b.objects[e.name]))
		}
		count++
	}
	return page, nil
}

// Delete implements types.ObjectBackend. Deleting a missing key succeeds.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.enter(ctx, OpDelete, key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// DeleteBatch implements types.ObjectBackend.
func (b *Backend) DeleteBatch(ctx context.Context, keys []string) ([]types.DeleteResult, error) {
	if err := b.enter(ctx, OpDeleteBatch, ""); err != nil {
		return nil, err
	}

	results := make([]types.DeleteResult, 0, len(keys))
	for _, key := range keys {
		b.mu.Lock()
		var keyErr error
		if rules := b.rules[OpDelete]; rules != nil {
			keyErr = rules[key]
		}
		if keyErr == nil && b.rules[OpDeleteBatch] != nil {
			keyErr = b.rules[OpDeleteBatch][key]
		}
		if keyErr == nil {
			delete(b.objects, key)
		}
		b.mu.Unlock()
		results = append(results, types.DeleteResult{Key: key, Err: keyErr})
	}
	return results, nil
}

// MultipartInit implements types.ObjectBackend.
func (b *Backend) MultipartInit(ctx context.Context, key string) (string, error) {
	if err := b.enter(ctx, OpMultipartInit, key); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextUpload++
	id := fmt.Sprintf("upload-%d", b.nextUpload)
	b.uploads[id] = &upload{
		key:   key,
		parts: make(map[int32][]byte),
		etags: make(map[int32]string),
	}
	return id, nil
}

// MultipartPutPart implements types.ObjectBackend.
func (b *Backend) MultipartPutPart(ctx context.Context, key, uploadID string, number int32, data []byte) (string, error) {
	if err := b.enter(ctx, OpMultipartPutPart, key); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	up, ok := b.uploads[uploadID]
	if !ok || up.key != key {
		return "", fmt.Errorf("no such upload: %s", uploadID)
	}
	if number < 1 || number > 10000 {
		return "", fmt.Errorf("invalid part number: %d", number)
	}
	up.parts[number] = bytes.Clone(data)
	up.etags[number] = etagOf(data)
	return up.etags[number], nil
}

// MultipartComplete implements types.ObjectBackend.
func (b *Backend) MultipartComplete(ctx context.Context, key, uploadID string, parts []types.CompletedPart) error {
	if err := b.enter(ctx, OpMultipartComplete, key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	up, ok := b.uploads[uploadID]
	if !ok || up.key != key {
		return fmt.Errorf("no such upload: %s", uploadID)
	}
	if len(parts) == 0 {
		return fmt.Errorf("multipart upload %s has no parts", uploadID)
	}

	var buf bytes.Buffer
	var last int32
	for _, p := range parts {
		if p.Number <= last {
			return fmt.Errorf("parts out of order at %d", p.Number)
		}
		last = p.Number
		data, ok := up.parts[p.Number]
		if !ok || up.etags[p.Number] != p.ETag {
			return fmt.Errorf("invalid part %d", p.Number)
		}
		buf.Write(data)
	}

	b.storeLocked(key, buf.Bytes())
	delete(b.uploads, uploadID)
	return nil
}

// MultipartAbort implements types.ObjectBackend.
func (b *Backend) MultipartAbort(ctx context.Context, key, uploadID string) error {
	if err := b.enter(ctx, OpMultipartAbort, key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.uploads, uploadID)
	return nil
}

// Copy implements types.Copier.
func (b *Backend) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := b.enter(ctx, OpCopy, srcKey); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	src, ok := b.objects[srcKey]
	if !ok {
		return fserrors.NotFound(srcKey, nil)
	}
	b.storeLocked(dstKey, src.data)
	b.objects[dstKey].storageClass = src.storageClass
	return nil
}

func (b *Backend) storeLocked(key string, data []byte) {
	b.objects[key] = &object{
		data:         bytes.Clone(data),
		modified:     time.Now().UTC(),
		etag:         etagOf(data),
		storageClass: "STANDARD",
	}
}

func (b *Backend) infoLocked(key string, obj *object) types.ObjectInfo {
	return types.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ETag:         obj.etag,
		StorageClass: obj.storageClass,
	}
}

func (b *Backend) sortedKeysLocked() []string {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func etagOf(data []byte) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%x", md5.Sum(data)))
}
