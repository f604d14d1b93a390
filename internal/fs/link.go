package fs

import (
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/mistfs/mistfs/internal/pathutil"
	"github.com/mistfs/mistfs/internal/remote"
)

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) (err error) {
	fsys.mu.Lock()
	parentPath, ok := fsys.pathForInode(op.Parent)
	fsys.mu.Unlock()

	if !ok {
		return fuse.ENOENT
	}

	childPath := pathutil.Join(parentPath, op.Name)
	now := fsys.clock()
	target := op.Target

	writeErr := fsys.client.WriteFile(op.Context(), remote.WriteRequest{
		Path: childPath, Kind: remote.KindSoftLink, Mode: remote.ModeWrite,
		Size: int64(len(target)), Perm: "777", RefPath: &target,
		Atime: now, Mtime: now, Ctime: now, Crtime: now,
	})
	if writeErr != nil {
		return translateErr(writeErr)
	}

	mf, err := fsys.client.GetFileMetadata(op.Context(), childPath)
	if err != nil {
		return translateErr(err)
	}

	fsys.mu.Lock()
	child := fsys.inodeForPath(childPath)
	fsys.mu.Unlock()

	op.Entry.Child = child
	op.Entry.Attributes = attributesFromMeta(mf)
	op.Entry.AttributesExpiration = now.Add(attrEntryTTL)
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration

	return nil
}

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) ReadSymlink(op *fuseops.ReadSymlinkOp) (err error) {
	fsys.mu.Lock()
	path, ok := fsys.pathForInode(op.Inode)
	fsys.mu.Unlock()

	if !ok {
		return fuse.ENOENT
	}

	mf, err := fsys.client.GetFileMetadata(op.Context(), path)
	if err != nil {
		return translateErr(err)
	}

	if mf.RefPath == nil {
		return fuse.EIO
	}

	op.Target = *mf.RefPath
	return nil
}

// CreateLink creates a hard link: a second name bound to the same backing
// inode, which the server tracks via Nlink and RefPath (spec.md §4.5, §8).
//
// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) CreateLink(op *fuseops.CreateLinkOp) (err error) {
	fsys.mu.Lock()
	parentPath, ok := fsys.pathForInode(op.Parent)
	targetPath, targetOK := fsys.pathForInode(op.Target)
	fsys.mu.Unlock()

	if !ok || !targetOK {
		return fuse.ENOENT
	}

	mf, err := fsys.client.GetFileMetadata(op.Context(), targetPath)
	if err != nil {
		return translateErr(err)
	}

	newPath := pathutil.Join(parentPath, op.Name)
	now := fsys.clock()
	ref := targetPath

	writeErr := fsys.client.WriteFile(op.Context(), remote.WriteRequest{
		Path: newPath, Kind: remote.KindHardLink, Mode: remote.ModeWrite,
		Size: mf.Size, Perm: mf.Perm, RefPath: &ref,
		Atime: now, Mtime: now, Ctime: now, Crtime: now,
	})
	if writeErr != nil {
		return translateErr(writeErr)
	}

	newMeta, err := fsys.client.GetFileMetadata(op.Context(), newPath)
	if err != nil {
		return translateErr(err)
	}

	fsys.mu.Lock()
	fsys.register(op.Target, newPath)
	fsys.mu.Unlock()

	op.Entry.Child = op.Target
	op.Entry.Attributes = attributesFromMeta(newMeta)
	op.Entry.AttributesExpiration = now.Add(attrEntryTTL)
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration

	return nil
}

// Rename moves (and possibly renames) an entry. A source that still has an
// open file handle is refused with EBUSY; on success the inode table is
// rebound through renameInode, which also retargets any handle still at the
// old path.
//
// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) Rename(op *fuseops.RenameOp) (err error) {
	if op.OldName == "." || op.OldName == ".." || op.NewName == "." || op.NewName == ".." {
		return syscall.EINVAL
	}

	fsys.mu.Lock()
	oldParentPath, ok1 := fsys.pathForInode(op.OldParent)
	newParentPath, ok2 := fsys.pathForInode(op.NewParent)
	fsys.mu.Unlock()

	if !ok1 || !ok2 {
		return fuse.ENOENT
	}

	oldPath := pathutil.Join(oldParentPath, op.OldName)
	newPath := pathutil.Join(newParentPath, op.NewName)

	if oldPath == "/" {
		return syscall.EBUSY
	}

	// Renaming a path onto itself is a documented no-op, no server call
	// required (spec.md §8).
	if oldPath == newPath {
		return nil
	}

	ctx := op.Context()

	mf, err := fsys.client.GetFileMetadata(ctx, oldPath)
	if err != nil {
		return translateErr(err)
	}

	fsys.mu.Lock()
	for _, h := range fsys.openFiles {
		if h.path == oldPath {
			fsys.mu.Unlock()
			return syscall.EBUSY
		}
	}
	fsys.mu.Unlock()

	if destMeta, err := fsys.client.GetFileMetadata(ctx, newPath); err == nil {
		if destMeta.Kind != mf.Kind {
			if mf.Kind == remote.KindDirectory {
				return syscall.ENOTDIR
			}
			return syscall.EISDIR
		}

		if destMeta.Kind == remote.KindDirectory {
			listing, err := fsys.client.ListDirectory(ctx, newPath)
			if err != nil && !remote.IsNotFound(err) {
				return translateErr(err)
			}
			if len(listing.Entries) != 0 {
				return fuse.ENOTEMPTY
			}
		}
	} else if !remote.IsNotFound(err) {
		return translateErr(err)
	}

	now := fsys.clock()
	writeErr := fsys.client.WriteFile(ctx, remote.WriteRequest{
		Path: oldPath, Kind: mf.Kind, Mode: remote.ModeWrite,
		Size: mf.Size, Perm: mf.Perm, NewPath: &newPath, RefPath: mf.RefPath,
		Atime: remote.ParseTime(mf.Atime), Mtime: now, Ctime: now,
		Crtime: remote.ParseTime(mf.Crtime),
	})
	if writeErr != nil {
		return translateErr(writeErr)
	}

	fsys.mu.Lock()
	fsys.renameInode(oldPath, newPath)
	fsys.mu.Unlock()

	return nil
}
