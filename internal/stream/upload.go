package stream

import (
	"time"

	"github.com/objectfs/bucketfs/pkg/types"
)

// UploadStatus is the lifecycle state of a write stream's upload.
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusInProgress UploadStatus = "in_progress"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
	UploadStatusAborted    UploadStatus = "aborted"
)

// uploadState tracks the multipart upload behind a Writer.
type uploadState struct {
	ID            string
	Key           string
	Parts         []types.CompletedPart
	BytesUploaded int64
	Status        UploadStatus
	StartedAt     time.Time
	aborted       bool
}

func newUploadState(key string) *uploadState {
	return &uploadState{Key: key, Status: UploadStatusPending}
}

// started reports whether a multipart upload id has been obtained.
func (u *uploadState) started() bool {
	return u.ID != ""
}

func (u *uploadState) begin(id string) {
	u.ID = id
	u.Status = UploadStatusInProgress
	u.StartedAt = time.Now()
}

// nextPart returns the number the next uploaded part must carry.
func (u *uploadState) nextPart() int32 {
	return int32(len(u.Parts) + 1)
}

func (u *uploadState) addPart(number int32, etag string, size int) {
	u.Parts = append(u.Parts, types.CompletedPart{Number: number, ETag: etag})
	u.BytesUploaded += int64(size)
}
