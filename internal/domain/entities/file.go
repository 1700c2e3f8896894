package entities

import (
	"path"
	"strings"
	"time"
)

// DefaultMimeType is reported when nothing better is known about a file
const DefaultMimeType = "application/octet-stream"

// StoredFile represents a completed upload. It is also the shape of the
// sidecar record written next to the content file.
type StoredFile struct {
	Key              string                 `json:"key"`
	OwnerID          string                 `json:"user_id"`
	Folder           string                 `json:"folder,omitempty"`
	Size             int64                  `json:"size"`
	MimeType         string                 `json:"mime"`
	SHA256           string                 `json:"sha256"`
	OriginalFilename string                 `json:"original_name,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	Meta             map[string]interface{} `json:"meta,omitempty"`
}

// DisplayName returns the name shown to callers: the recorded original
// filename, or the last key segment without its discriminator prefix.
func (f *StoredFile) DisplayName() string {
	if f.OriginalFilename != "" {
		return f.OriginalFilename
	}
	return DisplayNameFromKey(f.Key)
}

// DisplayNameFromKey strips the random discriminator from the last key segment
func DisplayNameFromKey(key string) string {
	name := path.Base(key)
	if i := strings.Index(name, "_"); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}

// FileListing is the result of listing an owner's files
type FileListing struct {
	Files      []*StoredFile
	TotalCount int
	TotalSize  int64
}

// QuotaUsage describes an owner's capacity at the time of a check
type QuotaUsage struct {
	OwnerID    string
	UsedBytes  int64
	LimitBytes int64
	Requested  int64
}

// Allowed reports whether the requested bytes still fit. The limit is inclusive.
func (q QuotaUsage) Allowed() bool {
	return q.UsedBytes+q.Requested <= q.LimitBytes
}

// Remaining returns the bytes left before the limit is reached
func (q QuotaUsage) Remaining() int64 {
	if q.UsedBytes >= q.LimitBytes {
		return 0
	}
	return q.LimitBytes - q.UsedBytes
}
