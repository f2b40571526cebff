package filesystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/bucketfs/internal/config"
	"github.com/objectfs/bucketfs/internal/metrics"
	"github.com/objectfs/bucketfs/internal/namespace"
	"github.com/objectfs/bucketfs/internal/storage/memory"
	"github.com/objectfs/bucketfs/internal/stream"
	fserrors "github.com/objectfs/bucketfs/pkg/errors"
	"github.com/objectfs/bucketfs/pkg/types"
)

// plainBackend hides the server-side Copy of the wrapped backend.
type plainBackend struct {
	types.ObjectBackend
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Namespace: namespace.Config{LeadingSlash: true},
		Stream:    stream.Options{BlockSize: 32, PartSize: 16},
	}
}

func newTestFS(t *testing.T, keys ...string) (*FileSystem, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	for _, k := range keys {
		backend.SetObject(k, []byte("data:"+k), "")
	}
	fs, err := New(backend, testConfig(), testLogger(), nil)
	require.NoError(t, err)
	backend.ResetCounts()
	return fs, backend
}

func names(entries []types.DirEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestNew_RejectsNilBackend(t *testing.T) {
	_, err := New(nil, testConfig(), testLogger(), nil)
	assert.Error(t, err)
}

func TestOpen_WriteThenRead(t *testing.T) {
	fs, backend := newTestFS(t)
	ctx := context.Background()
	data := bytes.Repeat([]byte("0123456789"), 4)

	f, err := fs.Open(ctx, "/dir/file.bin", "wb")
	require.NoError(t, err)
	assert.Equal(t, stream.ModeWrite, f.Mode())
	n, err := f.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, int64(len(data)), f.Tell())
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	assert.Equal(t, 1, backend.Calls(memory.OpMultipartInit))
	stored, ok := backend.Object("dir/file.bin")
	require.True(t, ok)
	assert.Equal(t, data, stored)

	r, err := fs.Open(ctx, "/dir/file.bin", "rb")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	pos, err := r.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(35), pos)
	buf := make([]byte, 5)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "56789", string(buf))
	require.NoError(t, r.Close())
}

func TestOpen_UnsupportedModes(t *testing.T) {
	fs, _ := newTestFS(t, "a")

	for _, mode := range []string{"a", "r+", "ab", "x"} {
		_, err := fs.Open(context.Background(), "/a", mode)
		assert.ErrorIs(t, err, fserrors.ErrUnsupportedOperation, mode)
	}
}

func TestOpen_ReadDirectoryIsNotFound(t *testing.T) {
	fs, _ := newTestFS(t, "dir/a")
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, "/empty"))

	for _, path := range []string{"/dir", "/empty", "/", "/missing"} {
		_, err := fs.Open(ctx, path, "rb")
		assert.ErrorIs(t, err, fserrors.ErrObjectNotFound, path)
	}
}

func TestOpen_WriteRootIsInvalid(t *testing.T) {
	fs, _ := newTestFS(t)
	_, err := fs.Open(context.Background(), "/", "wb")
	assert.ErrorIs(t, err, fserrors.ErrInvalidPath)
}

func TestFile_WrongDirection(t *testing.T) {
	fs, _ := newTestFS(t, "a")
	ctx := context.Background()

	r, err := fs.Open(ctx, "/a", "r")
	require.NoError(t, err)
	_, err = r.Write([]byte("x"))
	assert.ErrorIs(t, err, fserrors.ErrUnsupportedOperation)

	w, err := fs.Open(ctx, "/b", "w")
	require.NoError(t, err)
	_, err = w.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fserrors.ErrUnsupportedOperation)
	_, err = w.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, fserrors.ErrUnsupportedOperation)
	require.NoError(t, w.Abort())
}

func TestFile_AbortDiscardsObject(t *testing.T) {
	fs, backend := newTestFS(t)
	ctx := context.Background()

	f, err := fs.Open(ctx, "/big", "wb")
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 40))
	require.NoError(t, err)
	require.NoError(t, f.Abort())
	require.NoError(t, f.Close())

	_, ok := backend.Object("big")
	assert.False(t, ok)
	assert.Equal(t, 0, backend.PendingUploads())
	assert.Equal(t, 1, backend.Calls(memory.OpMultipartAbort))
}

func TestLs_SortedByName(t *testing.T) {
	fs, _ := newTestFS(t, "b", "a", "dir/x", "dir/y", "c/")

	entries, err := fs.Ls(context.Background(), "/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b", "/c", "/dir"}, names(entries))
	assert.False(t, entries[0].IsDir())
	assert.True(t, entries[2].IsDir())
	assert.True(t, entries[3].IsDir())

	entries, err = fs.Ls(context.Background(), "/dir", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dir/x", "/dir/y"}, names(entries))
}

func TestLs_FileAndMissing(t *testing.T) {
	fs, _ := newTestFS(t, "a")
	ctx := context.Background()

	entries, err := fs.Ls(ctx, "/a", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/a", entries[0].Name)
	assert.Equal(t, types.EntryFile, entries[0].Type)

	_, err = fs.Ls(ctx, "/missing", false)
	assert.ErrorIs(t, err, fserrors.ErrObjectNotFound)

	require.NoError(t, fs.Mkdir(ctx, "/empty"))
	entries, err = fs.Ls(ctx, "/empty", false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFind(t *testing.T) {
	fs, _ := newTestFS(t, "dir/sub/b", "dir/a", "dir/sub/", "other")
	ctx := context.Background()

	entries, err := fs.Find(ctx, "/dir", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/dir/a", "/dir/sub/b"}, names(entries))

	entries, err = fs.Find(ctx, "/other", FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/other"}, names(entries))

	_, err = fs.Find(ctx, "/nope", FindOptions{})
	assert.ErrorIs(t, err, fserrors.ErrObjectNotFound)
}

func TestFind_Options(t *testing.T) {
	fs, _ := newTestFS(t, "dir/a", "dir/sub/", "dir/sub/b", "dir/sub/deep/c", "other")
	ctx := context.Background()

	tests := []struct {
		name string
		opts FindOptions
		want []string
	}{
		{"unlimited", FindOptions{}, []string{"/dir/a", "/dir/sub/b", "/dir/sub/deep/c"}},
		{"depth 1", FindOptions{MaxDepth: 1}, []string{"/dir/a"}},
		{"depth 2", FindOptions{MaxDepth: 2}, []string{"/dir/a", "/dir/sub/b"}},
		{"with dirs", FindOptions{WithDirs: true}, []string{
			"/dir/a", "/dir/sub", "/dir/sub/b", "/dir/sub/deep", "/dir/sub/deep/c",
		}},
		{"with dirs depth 1", FindOptions{MaxDepth: 1, WithDirs: true}, []string{"/dir/a", "/dir/sub"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := fs.Find(ctx, "/dir", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(entries))
		})
	}
}

func TestGet(t *testing.T) {
	fs, backend := newTestFS(t, "dir/a")
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "x", "y", "a.txt")

	require.NoError(t, fs.Get(ctx, "/dir/a", local))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, []byte("data:dir/a"), data)
	assert.Equal(t, 1, backend.Calls(memory.OpGetRange))

	missing := filepath.Join(t.TempDir(), "missing")
	assert.ErrorIs(t, fs.Get(ctx, "/nope", missing), fserrors.ErrObjectNotFound)
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestGet_FailureRemovesPartialFile(t *testing.T) {
	fs, backend := newTestFS(t, "a")
	reset := errors.New("connection reset")
	backend.FailOn(memory.OpGetRange, "a", reset)
	local := filepath.Join(t.TempDir(), "a")

	assert.ErrorIs(t, fs.Get(context.Background(), "/a", local), reset)
	_, err := os.Stat(local)
	assert.True(t, os.IsNotExist(err))
}

func TestPut(t *testing.T) {
	fs, backend := newTestFS(t)
	ctx := context.Background()
	data := bytes.Repeat([]byte("0123456789"), 4)
	local := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(local, data, 0o644))

	require.NoError(t, fs.Put(ctx, local, "/dir/big.bin"))
	got, ok := backend.Object("dir/big.bin")
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Equal(t, 1, backend.Calls(memory.OpMultipartInit))
	assert.Zero(t, backend.PendingUploads())

	assert.Error(t, fs.Put(ctx, filepath.Join(t.TempDir(), "missing"), "/x"))
	assert.ErrorIs(t, fs.Put(ctx, local, "/"), fserrors.ErrInvalidPath)
	_, ok = backend.Object("x")
	assert.False(t, ok)
}

func TestPut_FailureAborts(t *testing.T) {
	fs, backend := newTestFS(t)
	backend.FailOn(memory.OpMultipartPutPart, "", errors.New("connection reset"))
	local := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(local, bytes.Repeat([]byte("z"), 40), 0o644))

	err := fs.Put(context.Background(), local, "/big.bin")
	assert.ErrorIs(t, err, fserrors.ErrUploadFailed)
	assert.Zero(t, backend.PendingUploads())
	_, ok := backend.Object("big.bin")
	assert.False(t, ok)
}

func TestMkdirExistsRm(t *testing.T) {
	fs, backend := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/d"))
	_, ok := backend.Object("d/")
	assert.True(t, ok)

	exists, err := fs.Exists(ctx, "/d")
	require.NoError(t, err)
	assert.True(t, exists)

	info, err := fs.Info(ctx, "/d")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, fs.Pipe(ctx, "/d/f", []byte("x")))
	err = fs.Rm(ctx, "/d", false)
	assert.ErrorIs(t, err, fserrors.ErrDirectoryNotEmpty)

	require.NoError(t, fs.Rm(ctx, "/d", true))
	exists, err = fs.Exists(ctx, "/d")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, backend.Keys())
}

func TestTouch(t *testing.T) {
	fs, backend := newTestFS(t, "existing")
	ctx := context.Background()

	require.NoError(t, fs.Touch(ctx, "/new"))
	data, ok := backend.Object("new")
	require.True(t, ok)
	assert.Empty(t, data)

	require.NoError(t, fs.Touch(ctx, "/existing"))
	data, _ = backend.Object("existing")
	assert.Empty(t, data)

	require.NoError(t, fs.Mkdir(ctx, "/dir"))
	assert.ErrorIs(t, fs.Touch(ctx, "/dir"), fserrors.ErrInvalidPath)
	assert.ErrorIs(t, fs.Touch(ctx, "/"), fserrors.ErrInvalidPath)
}

func TestTouch_PropagatesLookupError(t *testing.T) {
	fs, backend := newTestFS(t)
	throttled := errors.New("throttled")
	backend.FailOn(memory.OpHead, "a", throttled)

	err := fs.Touch(context.Background(), "/a")
	assert.ErrorIs(t, err, throttled)
	assert.Zero(t, backend.Calls(memory.OpPut))
	_, ok := backend.Object("a")
	assert.False(t, ok)
}

func TestOpen_ObjectDeletedAfterOpen(t *testing.T) {
	fs, backend := newTestFS(t, "a")
	ctx := context.Background()

	f, err := fs.Open(ctx, "/a", "rb")
	require.NoError(t, err)
	require.NoError(t, backend.Delete(ctx, "a"))

	_, err = f.Read(make([]byte, 4))
	assert.ErrorIs(t, err, fserrors.ErrObjectNotFound)
	require.NoError(t, f.Close())
}

func TestCat(t *testing.T) {
	fs, backend := newTestFS(t)
	backend.SetObject("digits", []byte("0123456789"), "")
	ctx := context.Background()

	tests := []struct {
		name       string
		start, end int64
		want       string
	}{
		{"prefix", 0, 4, "0123"},
		{"suffix from end", -3, math.MaxInt64, "789"},
		{"negative end", 2, -2, "234567"},
		{"clamped", 8, 100, "89"},
		{"empty", 5, 5, ""},
		{"inverted", 6, 2, ""},
		{"past end", 20, 30, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.Cat(ctx, "/digits", tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	all, err := fs.ReadFile(ctx, "/digits")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(all))

	_, err = fs.Cat(ctx, "/missing", 0, 1)
	assert.ErrorIs(t, err, fserrors.ErrObjectNotFound)
}

func TestPipe(t *testing.T) {
	fs, backend := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Pipe(ctx, "/small", []byte("hello")))
	assert.Equal(t, 1, backend.Calls(memory.OpPut))
	assert.Equal(t, 0, backend.Calls(memory.OpMultipartInit))

	large := bytes.Repeat([]byte("abcdefgh"), 5)
	require.NoError(t, fs.Pipe(ctx, "/large", large))
	assert.Equal(t, 1, backend.Calls(memory.OpMultipartInit))
	assert.Equal(t, 1, backend.Calls(memory.OpMultipartComplete))

	stored, _ := backend.Object("large")
	assert.Equal(t, large, stored)
}

func TestPipe_FailureAborts(t *testing.T) {
	fs, backend := newTestFS(t)
	backend.FailOn(memory.OpMultipartPutPart, "", errors.New("boom"))

	err := fs.Pipe(context.Background(), "/large", make([]byte, 40))
	assert.ErrorIs(t, err, fserrors.ErrUploadFailed)
	assert.Equal(t, 1, backend.Calls(memory.OpMultipartAbort))
	assert.Equal(t, 0, backend.PendingUploads())
}

func TestCopy_ServerSide(t *testing.T) {
	fs, backend := newTestFS(t, "src")
	ctx := context.Background()

	require.NoError(t, fs.Copy(ctx, "/src", "/dst"))
	assert.Equal(t, 1, backend.Calls(memory.OpCopy))
	assert.Equal(t, 0, backend.Calls(memory.OpGetRange))

	data, ok := backend.Object("dst")
	require.True(t, ok)
	assert.Equal(t, "data:src", string(data))
}

func TestCopy_Streamed(t *testing.T) {
	backend := memory.New()
	payload := bytes.Repeat([]byte("xyz"), 20)
	backend.SetObject("src", payload, "")

	fs, err := New(plainBackend{backend}, testConfig(), testLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, fs.Copy(context.Background(), "/src", "/copy/dst"))
	assert.Equal(t, 0, backend.Calls(memory.OpCopy))

	data, ok := backend.Object("copy/dst")
	require.True(t, ok)
	assert.Equal(t, payload, data)
}

func TestCopy_StreamedFailureAborts(t *testing.T) {
	backend := memory.New()
	backend.SetObject("src", make([]byte, 60), "")
	backend.FailOn(memory.OpMultipartComplete, "", errors.New("complete failed"))

	fs, err := New(plainBackend{backend}, testConfig(), testLogger(), nil)
	require.NoError(t, err)

	err = fs.Copy(context.Background(), "/src", "/dst")
	assert.ErrorIs(t, err, fserrors.ErrUploadFailed)
	assert.Equal(t, 1, backend.Calls(memory.OpMultipartAbort))
	assert.Equal(t, 0, backend.PendingUploads())
}

func TestCopy_Missing(t *testing.T) {
	fs, _ := newTestFS(t)
	err := fs.Copy(context.Background(), "/missing", "/dst")
	assert.ErrorIs(t, err, fserrors.ErrObjectNotFound)
}

func TestChecksum(t *testing.T) {
	fs, _ := newTestFS(t, "a", "b")
	ctx := context.Background()

	first, err := fs.Checksum(ctx, "/a")
	require.NoError(t, err)
	assert.Len(t, first, 64)

	again, err := fs.Checksum(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := fs.Checksum(ctx, "/b")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	require.NoError(t, fs.Pipe(ctx, "/a", []byte("rewritten")))
	changed, err := fs.Checksum(ctx, "/a")
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	_, err = fs.Checksum(ctx, "/missing")
	assert.ErrorIs(t, err, fserrors.ErrObjectNotFound)
}

func TestModified(t *testing.T) {
	fs, _ := newTestFS(t, "file", "implicit/a", "marked/")
	ctx := context.Background()

	mtime, err := fs.Modified(ctx, "/file")
	require.NoError(t, err)
	assert.False(t, mtime.IsZero())

	mtime, err = fs.Modified(ctx, "/marked")
	require.NoError(t, err)
	assert.False(t, mtime.IsZero())

	_, err = fs.Modified(ctx, "/implicit")
	assert.ErrorIs(t, err, fserrors.ErrUnsupportedOperation)
}

func TestOperationsRecordMetrics(t *testing.T) {
	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Namespace: "test"}, testLogger())
	require.NoError(t, err)

	backend := memory.New()
	fs, err := New(backend, testConfig(), testLogger(), collector)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Pipe(ctx, "/a", []byte("hello")))
	_, err = fs.Ls(ctx, "/", false)
	require.NoError(t, err)
	_, err = fs.Info(ctx, "/missing")
	require.Error(t, err)

	f, err := fs.Open(ctx, "/b", "wb")
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ops := collector.GetMetrics()
	assert.Equal(t, int64(1), ops["pipe"].Count)
	assert.Equal(t, int64(5), ops["pipe"].TotalSize)
	assert.Equal(t, int64(1), ops["ls"].Count)
	assert.Equal(t, int64(1), ops["info"].Errors)
	assert.Equal(t, int64(1), ops["open"].Count)
	assert.Equal(t, int64(3), ops["write"].TotalSize)
}

func TestNewFromConfig_Memory(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Global.LogLevel = "ERROR"
	cfg.Storage.Backend = "memory"
	cfg.Monitoring.Metrics.Enabled = false

	fs, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, fs.Metrics())

	ctx := context.Background()
	require.NoError(t, fs.Pipe(ctx, "/x/y", []byte("z")))
	exists, err := fs.Exists(ctx, "/x")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg := config.NewDefault()
	_, err := NewFromConfig(context.Background(), cfg)
	assert.Error(t, err)
}
