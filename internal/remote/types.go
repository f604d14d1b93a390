// Package remote implements the typed HTTP facade onto the server described
// in spec.md §4.4 and §6: list, stat, read, write, mkdir, delete and user
// registration, plus the HTTP-status-to-taxonomy error translation shared by
// every call.
package remote

import "time"

// Kind is the logical type of a filesystem entry, the wire's "kind" enum.
type Kind string

const (
	KindRegular   Kind = "regular_file"
	KindDirectory Kind = "directory"
	KindSoftLink  Kind = "soft_link"
	KindHardLink  Kind = "hard_link"
)

// Mode selects how the server should interpret a WriteRequest.
type Mode string

const (
	ModeWrite    Mode = "write"
	ModeAppend   Mode = "append"
	ModeWriteAt  Mode = "write_at"
	ModeTruncate Mode = "truncate"
)

// MetaFile is the wire representation of one directory entry or stat result.
type MetaFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Atime   string    `json:"atime"`
	Mtime   string    `json:"mtime"`
	Ctime   string    `json:"ctime"`
	Crtime  string    `json:"crtime"`
	Kind    Kind      `json:"kind"`
	Perm    string    `json:"perm"`
	Nlink   uint32  `json:"nlink"`
	RefPath *string `json:"refPath,omitempty"`
}

// Listing is an ordered directory listing, the unit the metadata cache holds.
type Listing struct {
	Entries []MetaFile
}

// Find returns the entry named name within the listing, if present.
func (l Listing) Find(name string) (MetaFile, bool) {
	for _, e := range l.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return MetaFile{}, false
}

// WriteRequest is the client-side request that becomes a PUT /files/<path>
// multipart body (metadata JSON part + optional binary content part).
type WriteRequest struct {
	Path    string
	Kind    Kind
	Mode    Mode
	Size    int64
	Perm    string
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Crtime  time.Time
	Content []byte

	// Optional fields, meaningful only for some modes/kinds.
	NewPath *string
	RefPath *string
	Offset  *int64
}

// writeMetadataJSON mirrors the wire schema documented in spec.md §4.4/§6.
type writeMetadataJSON struct {
	Size    int64   `json:"size"`
	Perm    string  `json:"perm"`
	Atime   string  `json:"atime"`
	Mtime   string  `json:"mtime"`
	Ctime   string  `json:"ctime"`
	Crtime  string  `json:"crtime"`
	Kind    Kind    `json:"kind"`
	Mode    Mode    `json:"mode"`
	NewPath *string `json:"newPath,omitempty"`
	RefPath *string `json:"refPath,omitempty"`
	Offset  *int64  `json:"offset,omitempty"`
}

// CredentialPair is the API key/HMAC secret pair issued on registration.
type CredentialPair struct {
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
}
