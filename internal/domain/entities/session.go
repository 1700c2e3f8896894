package entities

import "time"

// UploadMode is the transfer style announced at init
type UploadMode string

const (
	UploadModeSingle  UploadMode = "single"
	UploadModeChunked UploadMode = "chunked"
	UploadModeBatch   UploadMode = "batch"
)

// Valid reports whether m is a known mode
func (m UploadMode) Valid() bool {
	switch m {
	case UploadModeSingle, UploadModeChunked, UploadModeBatch:
		return true
	}
	return false
}

// SessionState tracks an upload session through its lifecycle
type SessionState string

const (
	SessionStateInit       SessionState = "INIT"
	SessionStateReceiving  SessionState = "RECEIVING"
	SessionStateCompleting SessionState = "COMPLETING"
	SessionStateDone       SessionState = "DONE"
	SessionStateFailed     SessionState = "FAILED"
)

// Terminal reports whether no further transitions are possible
func (s SessionState) Terminal() bool {
	return s == SessionStateDone || s == SessionStateFailed
}

// DeclaredFile is one file announced by the client at init
type DeclaredFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime,omitempty"`
}

// UploadSession is the bookkeeping persisted as the session's metadata.json
type UploadSession struct {
	ID        string                 `json:"upload_id"`
	OwnerID   string                 `json:"user_id"`
	Mode      UploadMode             `json:"mode"`
	Files     []DeclaredFile         `json:"files"`
	Folder    string                 `json:"folder,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	State     SessionState           `json:"state"`
	CreatedAt time.Time              `json:"created_at"`
}

// DeclaredSize is the sum of all declared file sizes
func (s *UploadSession) DeclaredSize() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}
	return total
}

// MaxDeclaredSize is the largest declared file size
func (s *UploadSession) MaxDeclaredSize() int64 {
	var max int64
	for _, f := range s.Files {
		if f.Size > max {
			max = f.Size
		}
	}
	return max
}

// DeclaredFor returns the declared entry whose name matches filename
func (s *UploadSession) DeclaredFor(filename string) (DeclaredFile, bool) {
	for _, f := range s.Files {
		if f.Name == filename {
			return f, true
		}
	}
	return DeclaredFile{}, false
}

// InitRequest is the input to session initialization
type InitRequest struct {
	Mode    UploadMode             `json:"mode"`
	Files   []DeclaredFile         `json:"files"`
	Folder  string                 `json:"folder,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
	OwnerID string                 `json:"user_id,omitempty"`
}

// InitResult is returned once a session is allocated. Parts is only set for
// chunked mode and is a client hint.
type InitResult struct {
	UploadID string `json:"uploadId"`
	Parts    int64  `json:"parts,omitempty"`
}

// CompleteRequest finalizes a session
type CompleteRequest struct {
	UploadID string                 `json:"uploadId"`
	SHA256   string                 `json:"sha256,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}
