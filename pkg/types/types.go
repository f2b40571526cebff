package types

import (
	"time"
)

// EntryType classifies a DirEntry.
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// ObjectInfo represents metadata about an object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
	StorageClass string    `json:"storage_class"`
}

// ListPage is one page of a prefix listing.
type ListPage struct {
	Objects        []ObjectInfo `json:"objects"`
	CommonPrefixes []string     `json:"common_prefixes"`
	// NextToken is empty when the listing is exhausted.
	NextToken string `json:"next_token"`
}

// DeleteResult is the per-key outcome of a batch delete.
type DeleteResult struct {
	Key string `json:"key"`
	Err error  `json:"-"`
}

// CompletedPart identifies one uploaded part of a multipart upload.
type CompletedPart struct {
	Number int32  `json:"number"`
	ETag   string `json:"etag"`
}

// DirEntry is a filesystem entry synthesized from an object or a common prefix.
type DirEntry struct {
	Name         string    `json:"name"`
	Type         EntryType `json:"type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	StorageClass string    `json:"storage_class,omitempty"`
	Key          string    `json:"key"`
	ETag         string    `json:"etag,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool {
	return e.Type == EntryDirectory
}
