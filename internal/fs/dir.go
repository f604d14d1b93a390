package fs

import (
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/mistfs/mistfs/internal/pathutil"
	"github.com/mistfs/mistfs/internal/remote"
)

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) OpenDir(op *fuseops.OpenDirOp) (err error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	path, ok := fsys.pathForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	handle := fsys.allocHandle()
	fsys.openDirs[handle] = &openDirHandle{path: path}
	op.Handle = handle

	return nil
}

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) ReadDir(op *fuseops.ReadDirOp) (err error) {
	fsys.mu.Lock()
	dh, ok := fsys.openDirs[op.Handle]
	fsys.mu.Unlock()

	if !ok {
		return syscall.EBADF
	}

	if !dh.loaded {
		listing, err := fsys.client.ListDirectory(op.Context(), dh.path)
		if err != nil {
			return translateErr(err)
		}
		dh.entries = listing.Entries
		dh.loaded = true
	}

	offset := int(op.Offset)
	if offset > len(dh.entries) {
		offset = len(dh.entries)
	}

	fsys.mu.Lock()
	for i := offset; i < len(dh.entries); i++ {
		mf := dh.entries[i]
		childPath := pathutil.Join(dh.path, mf.Name)
		childInode := fsys.inodeForPath(childPath)

		dirent := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  childInode,
			Name:   mf.Name,
			Type:   direntType(mf.Kind),
		}

		data := fuseutil.AppendDirent(op.Data, dirent)
		if len(data) > op.Size {
			break
		}
		op.Data = data
	}
	fsys.mu.Unlock()

	return nil
}

func direntType(kind remote.Kind) fuseutil.DirentType {
	switch kind {
	case remote.KindDirectory:
		return fuseutil.DT_Directory
	case remote.KindSoftLink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) (err error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	delete(fsys.openDirs, op.Handle)
	return nil
}

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) MkDir(op *fuseops.MkDirOp) (err error) {
	fsys.mu.Lock()
	parentPath, ok := fsys.pathForInode(op.Parent)
	fsys.mu.Unlock()

	if !ok {
		return fuse.ENOENT
	}

	childPath := pathutil.Join(parentPath, op.Name)

	if err := fsys.client.CreateDirectory(op.Context(), childPath); err != nil {
		return translateErr(err)
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
	op.Entry.AttributesExpiration = fsys.clock().Add(attrEntryTTL)
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration

	return nil
}

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) RmDir(op *fuseops.RmDirOp) (err error) {
	fsys.mu.Lock()
	parentPath, ok := fsys.pathForInode(op.Parent)
	fsys.mu.Unlock()

	if !ok {
		return fuse.ENOENT
	}

	childPath := pathutil.Join(parentPath, op.Name)

	listing, err := fsys.client.ListDirectory(op.Context(), childPath)
	if err != nil && !remote.IsNotFound(err) {
		return translateErr(err)
	}
	if len(listing.Entries) != 0 {
		return fuse.ENOTEMPTY
	}

	if err := fsys.client.Delete(op.Context(), childPath); err != nil {
		return translateErr(err)
	}

	fsys.mu.Lock()
	if id, ok := fsys.paths[childPath]; ok {
		fsys.unregister(id)
	}
	fsys.mu.Unlock()

	return nil
}
