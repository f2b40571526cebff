package utils

import (
	"fmt"
	"strings"
)

// CleanObjectPath collapses duplicate separators, drops "." segments and
// resolves ".." against earlier segments of a delimiter-separated path.
// The result has no leading or trailing delimiter; the root cleans to "".
//
// Returns an error if a ".." segment would climb above the first segment,
// or if the path contains a NUL byte.
//
// Example usage:
//
//	clean, err := CleanObjectPath("a//b/./c/../d", "/")
//	// clean == "a/b/d"
func CleanObjectPath(path, delimiter string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains NUL byte: %q", path)
	}
	if delimiter == "" {
		delimiter = "/"
	}

	segments := strings.Split(path, delimiter)
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) == 0 {
				return "", fmt.Errorf("path contains directory traversal: %s", path)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}

	return strings.Join(out, delimiter), nil
}

// StripScheme removes a storage URL scheme from path. Both "scheme://rest"
// and "http(s)://endpoint/rest" forms are accepted; in the latter the
// endpoint host is dropped so that only "/rest" remains.
//
// Example usage:
//
//	StripScheme("s3://bucket/key")                          // "bucket/key"
//	StripScheme("https://oss-cn-hangzhou.aliyuncs.com/b/k") // "/b/k"
func StripScheme(path string) string {
	idx := strings.Index(path, "://")
	if idx <= 0 {
		return path
	}
	scheme := strings.ToLower(path[:idx])
	rest := path[idx+3:]
	if scheme == "http" || scheme == "https" {
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			return rest[slash:]
		}
		return ""
	}
	return rest
}
