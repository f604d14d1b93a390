package fs

import (
	"errors"
	"syscall"

	"github.com/jacobsa/fuse"

	"github.com/mistfs/mistfs/internal/remote"
)

// translateErr maps the internal/remote error taxonomy to the POSIX errno
// the kernel expects back from a fuseutil.FileSystem callback, the second
// stage of the two-stage translation in spec.md §4.4. fuse exports only a
// handful of named errnos (EIO, ENOENT, ENOSYS, ENOTEMPTY); everything else
// is returned as a bare syscall.Errno, which also implements error.
func translateErr(err error) error {
	if err == nil {
		return nil
	}

	var notFound *remote.NotFoundError
	if errors.As(err, &notFound) {
		return fuse.ENOENT
	}

	var denied *remote.PermissionDeniedError
	if errors.As(err, &denied) {
		return syscall.EACCES
	}

	var conflict *remote.ConflictError
	if errors.As(err, &conflict) {
		return syscall.EEXIST
	}

	var tooLarge *remote.TooLargeError
	if errors.As(err, &tooLarge) {
		return syscall.EFBIG
	}

	var noSpace *remote.NoSpaceError
	if errors.As(err, &noSpace) {
		return syscall.ENOSPC
	}

	var serverErr *remote.ServerError
	if errors.As(err, &serverErr) {
		return fuse.EIO
	}

	if errors.Is(err, remote.ErrAuth) {
		return syscall.EACCES
	}

	return fuse.EIO
}
