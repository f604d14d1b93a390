package fs

import (
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/mistfs/mistfs/internal/pathutil"
	"github.com/mistfs/mistfs/internal/remote"
)

// LOCKS_EXCLUDED(fsys.mu)
func (fsys *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	fsys.mu.Lock()
	parentPath, ok := fsys.pathForInode(op.Parent)
	fsys.mu.Unlock()

	if !ok {
		return fuse.ENOENT
	}

	// "." resolves to the parent directory's own entry; no server round trip
	// beyond the stat it would need anyway.
	if op.Name == "." {
		return fsys.lookupKnownPath(op, parentPath, op.Parent)
	}

	// ".." resolves to the grandparent's entry. The root is its own parent.
	if op.Name == ".." {
		grandparentPath := parentPath
		if op.Parent != rootInode {
			grandparentPath = pathutil.Parent(parentPath)
		}

		fsys.mu.Lock()
		grandparent := fsys.inodeForPath(grandparentPath)
		fsys.mu.Unlock()

		return fsys.lookupKnownPath(op, grandparentPath, grandparent)
	}

	childPath := pathutil.Join(parentPath, op.Name)

	mf, err := fsys.client.GetFileMetadata(op.Context(), childPath)
	if err != nil {
		if remote.IsNotFound(err) {
			fsys.mu.Lock()
			if id, ok := fsys.paths[childPath]; ok {
				fsys.unregister(id)
			}
			fsys.mu.Unlock()
		}
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

// lookupKnownPath fills op.Entry for a path whose inode is already known
// (the "." and ".." special cases), fetching only its attributes.
func (fsys *FileSystem) lookupKnownPath(op *fuseops.LookUpInodeOp, path string, inode fuseops.InodeID) error {
	mf, err := fsys.client.GetFileMetadata(op.Context(), path)
	if err != nil {
		return translateErr(err)
	}

	op.Entry.Child = inode
	op.Entry.Attributes = attributesFromMeta(mf)
	op.Entry.AttributesExpiration = fsys.clock().Add(attrEntryTTL)
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration

	return nil
}
