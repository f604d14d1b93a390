package fs

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/mistfs/mistfs/internal/remote"
)

// fuseOSMode is the permission-and-type bit field the kernel hands us in
// SetInodeAttributesOp.Mode. Aliased for readability at call sites.
type fuseOSMode = os.FileMode

const (
	uid = 1000
	gid = 1000
)

// statAttributes fetches metadata for path and converts it to the
// fuseops.InodeAttributes the kernel expects.
func (fsys *FileSystem) statAttributes(ctx context.Context, path string) (fuseops.InodeAttributes, error) {
	mf, err := fsys.client.GetFileMetadata(ctx, path)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return attributesFromMeta(mf), nil
}

// attributesFromMeta converts a remote.MetaFile into kernel-facing
// attributes. Size is reported verbatim for regular files, directories are
// reported with the synthetic size the server assigns them, and symlinks
// report the length of their target (spec.md §4.5).
func attributesFromMeta(mf remote.MetaFile) fuseops.InodeAttributes {
	mode := parsePerm(mf.Perm)

	switch mf.Kind {
	case remote.KindDirectory:
		mode |= os.ModeDir
	case remote.KindSoftLink:
		mode |= os.ModeSymlink
	}

	nlink := uint64(mf.Nlink)
	if nlink == 0 {
		nlink = 1
	}

	return fuseops.InodeAttributes{
		Size:   uint64(mf.Size),
		Nlink:  nlink,
		Mode:   mode,
		Atime:  remote.ParseTime(mf.Atime),
		Mtime:  remote.ParseTime(mf.Mtime),
		Ctime:  remote.ParseTime(mf.Ctime),
		Crtime: remote.ParseTime(mf.Crtime),
		Uid:    uid,
		Gid:    gid,
	}
}

// parsePerm accepts the three permission encodings spec.md §4.5 says the
// server may return: a bare octal string ("644" or "0644"), or a nine
// character symbolic string ("rw-r--r--"). Anything else falls back to
// 0644 rather than failing the whole stat.
func parsePerm(perm string) os.FileMode {
	if len(perm) == 9 && isSymbolicPerm(perm) {
		return symbolicToMode(perm)
	}

	if v, err := strconv.ParseUint(perm, 8, 32); err == nil {
		return os.FileMode(v) & os.ModePerm
	}

	return 0o644
}

func isSymbolicPerm(s string) bool {
	const legal = "rwxstST-"
	for _, c := range s {
		if !containsRune(legal, c) {
			return false
		}
	}
	return true
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func symbolicToMode(s string) os.FileMode {
	var mode os.FileMode
	bits := [9]os.FileMode{
		0o400, 0o200, 0o100,
		0o040, 0o020, 0o010,
		0o004, 0o002, 0o001,
	}
	for i, bit := range bits {
		if s[i] != '-' {
			mode |= bit
		}
	}
	return mode
}

// formatPerm renders the permission bits of mode as a zero-padded three
// digit octal string, the wire format the remote store expects.
func formatPerm(mode os.FileMode) string {
	return fmt.Sprintf("%03o", mode.Perm())
}
