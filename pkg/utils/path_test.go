package utils

import (
	"strings"
	"testing"
)

func TestCleanObjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		want        string
		wantErr     bool
		errContains string
	}{
		{name: "simple", path: "a/b/c", want: "a/b/c"},
		{name: "leading and trailing slash", path: "/a/b/", want: "a/b"},
		{name: "duplicate slashes", path: "a//b///c", want: "a/b/c"},
		{name: "dot segments", path: "./a/./b", want: "a/b"},
		{name: "dotdot inside", path: "a/b/../c", want: "a/c"},
		{name: "root", path: "/", want: ""},
		{name: "empty", path: "", want: ""},
		{name: "dots in filename", path: "a/file..txt", want: "a/file..txt"},
		{
			name:        "escapes root",
			path:        "a/../../etc",
			wantErr:     true,
			errContains: "directory traversal",
		},
		{
			name:        "nul byte",
			path:        "a/\x00b",
			wantErr:     true,
			errContains: "NUL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanObjectPath(tt.path, "/")
			if (err != nil) != tt.wantErr {
				t.Errorf("CleanObjectPath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("CleanObjectPath() error = %v, should contain %q", err, tt.errContains)
				}
				return
			}
			if got != tt.want {
				t.Errorf("CleanObjectPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCleanObjectPath_Idempotent(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"//a//b//", "a/./b/../c/", "x", "/"} {
		once, err := CleanObjectPath(p, "/")
		if err != nil {
			t.Fatalf("CleanObjectPath(%q) error = %v", p, err)
		}
		twice, err := CleanObjectPath(once, "/")
		if err != nil {
			t.Fatalf("CleanObjectPath(%q) error = %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", p, once, twice)
		}
	}
}

func TestStripScheme(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"s3://bucket/key", "bucket/key"},
		{"oss://bucket/a/b", "bucket/a/b"},
		{"https://oss-cn-hangzhou.aliyuncs.com/bucket/key", "/bucket/key"},
		{"http://localhost:9000/bucket", "/bucket"},
		{"http://localhost:9000", ""},
		{"/bucket/key", "/bucket/key"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := StripScheme(tt.in); got != tt.want {
			t.Errorf("StripScheme(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
