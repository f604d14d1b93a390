package fs

import (
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mistfs/mistfs/internal/remote"
)

func newTestFS(remote *fakeRemote) *FileSystem {
	fsys := New(remote)
	fsys.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return fsys
}

// openChild registers path under the root inode and returns its inode ID,
// so tests can call pathForInode-dependent ops without a full LookUpInode.
func (fsys *FileSystem) openChild(path string) fuseops.InodeID {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.inodeForPath(path)
}

func TestOpenFileRejectsDirectory(t *testing.T) {
	r := newFakeRemote()
	r.put("/d", remote.MetaFile{Kind: remote.KindDirectory, Perm: "755"}, nil)
	fsys := newTestFS(r)
	inode := fsys.openChild("/d")

	err := fsys.OpenFile(&fuseops.OpenFileOp{Inode: inode, Flags: syscall.O_RDONLY})
	assert.Equal(t, syscall.ENOTDIR, err)
}

func TestOpenFileRejectsUnreadableKind(t *testing.T) {
	r := newFakeRemote()
	r.put("/x", remote.MetaFile{Kind: remote.Kind("bogus"), Perm: "644"}, nil)
	fsys := newTestFS(r)
	inode := fsys.openChild("/x")

	err := fsys.OpenFile(&fuseops.OpenFileOp{Inode: inode, Flags: syscall.O_RDONLY})
	assert.Equal(t, syscall.EPERM, err)
}

func TestOpenFilePermissionChecks(t *testing.T) {
	cases := []struct {
		name string
		perm string
		open func(inode fuseops.InodeID) *fuseops.OpenFileOp
		want error
	}{
		{"read-only file opened for read", "444", func(i fuseops.InodeID) *fuseops.OpenFileOp {
			return &fuseops.OpenFileOp{Inode: i, Flags: syscall.O_RDONLY}
		}, nil},
		{"read-only file opened for write", "444", func(i fuseops.InodeID) *fuseops.OpenFileOp {
			return &fuseops.OpenFileOp{Inode: i, Flags: syscall.O_WRONLY}
		}, syscall.EACCES},
		{"write-only file opened for read", "200", func(i fuseops.InodeID) *fuseops.OpenFileOp {
			return &fuseops.OpenFileOp{Inode: i, Flags: syscall.O_RDONLY}
		}, syscall.EACCES},
		{"rdwr file opened rdwr", "600", func(i fuseops.InodeID) *fuseops.OpenFileOp {
			return &fuseops.OpenFileOp{Inode: i, Flags: syscall.O_RDWR}
		}, nil},
		{"read-only file opened rdwr", "400", func(i fuseops.InodeID) *fuseops.OpenFileOp {
			return &fuseops.OpenFileOp{Inode: i, Flags: syscall.O_RDWR}
		}, syscall.EACCES},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newFakeRemote()
			r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: tc.perm}, []byte("data"))
			fsys := newTestFS(r)
			inode := fsys.openChild("/f")

			err := fsys.OpenFile(tc.open(inode))
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tc.want, err)
			}
		})
	}
}

func TestOpenFileUnknownInode(t *testing.T) {
	fsys := newTestFS(newFakeRemote())
	err := fsys.OpenFile(&fuseops.OpenFileOp{Inode: fuseops.InodeID(9999)})
	assert.Error(t, err)
}

// openForTest opens path and returns the resulting handle. The caller builds
// op with Flags set directly from untyped constants (e.g. syscall.O_RDONLY)
// so the literal converts to whatever concrete type OpenFileOp.Flags has.
func openForTest(t *testing.T, fsys *FileSystem, path string, op *fuseops.OpenFileOp) fuseops.HandleID {
	t.Helper()
	op.Inode = fsys.openChild(path)
	require.NoError(t, fsys.OpenFile(op))
	return op.Handle
}

func TestReadFileClampsToFileSize(t *testing.T) {
	r := newFakeRemote()
	content := []byte("hello world")
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644", Size: int64(len(content))}, content)
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_RDONLY})

	op := &fuseops.ReadFileOp{Handle: handle, Offset: 6, Size: 100}
	require.NoError(t, fsys.ReadFile(op))
	assert.Equal(t, "world", string(op.Data))
}

func TestReadFilePastEOFReturnsEmpty(t *testing.T) {
	r := newFakeRemote()
	content := []byte("short")
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644", Size: int64(len(content))}, content)
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_RDONLY})

	op := &fuseops.ReadFileOp{Handle: handle, Offset: 1000, Size: 10}
	require.NoError(t, fsys.ReadFile(op))
	assert.Empty(t, op.Data)
}

func TestReadFileNegativeOffsetRejected(t *testing.T) {
	r := newFakeRemote()
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644"}, nil)
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_RDONLY})

	err := fsys.ReadFile(&fuseops.ReadFileOp{Handle: handle, Offset: -1, Size: 10})
	assert.Equal(t, syscall.EINVAL, err)
}

func TestReadFileRejectsWriteOnlyHandle(t *testing.T) {
	r := newFakeRemote()
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "666"}, []byte("x"))
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_WRONLY})

	err := fsys.ReadFile(&fuseops.ReadFileOp{Handle: handle, Offset: 0, Size: 1})
	assert.Equal(t, syscall.EBADF, err)
}

func TestReadFileUnknownHandle(t *testing.T) {
	fsys := newTestFS(newFakeRemote())
	err := fsys.ReadFile(&fuseops.ReadFileOp{Handle: 999, Size: 1})
	assert.Equal(t, syscall.EBADF, err)
}

func TestReadFileZeroSizeIsNoop(t *testing.T) {
	fsys := newTestFS(newFakeRemote())
	err := fsys.ReadFile(&fuseops.ReadFileOp{Handle: 999, Size: 0})
	assert.NoError(t, err)
}

func TestWriteFileRejectsReadOnlyHandle(t *testing.T) {
	r := newFakeRemote()
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644"}, nil)
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_RDONLY})

	err := fsys.WriteFile(&fuseops.WriteFileOp{Handle: handle, Data: []byte("x")})
	assert.Equal(t, syscall.EBADF, err)
}

func TestWriteFileRejectsDirectory(t *testing.T) {
	r := newFakeRemote()
	r.put("/d", remote.MetaFile{Kind: remote.KindDirectory, Perm: "755"}, nil)
	fsys := newTestFS(r)

	fsys.mu.Lock()
	handle := fsys.allocHandle()
	fsys.openFiles[handle] = &openFileHandle{path: "/d", flags: syscall.O_RDWR}
	fsys.mu.Unlock()

	err := fsys.WriteFile(&fuseops.WriteFileOp{Handle: handle, Data: []byte("x")})
	assert.Equal(t, syscall.EISDIR, err)
}

func TestWriteFileSequentialWritesAreBuffered(t *testing.T) {
	r := newFakeRemote()
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644", Size: 0}, nil)
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_WRONLY})

	require.NoError(t, fsys.WriteFile(&fuseops.WriteFileOp{Handle: handle, Offset: 0, Data: []byte("hello")}))
	require.NoError(t, fsys.WriteFile(&fuseops.WriteFileOp{Handle: handle, Offset: 5, Data: []byte(" world")}))

	fsys.mu.Lock()
	h := fsys.openFiles[handle]
	fsys.mu.Unlock()

	assert.Equal(t, "hello world", string(h.buffer))
	assert.True(t, h.dirty)

	r.mu.Lock()
	_, written := r.data["/f"]
	r.mu.Unlock()
	assert.False(t, written, "sequential writes must stay buffered until flush")
}

func TestWriteFileNonSequentialUsesWriteMode(t *testing.T) {
	r := newFakeRemote()
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644", Size: 100}, make([]byte, 100))
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_WRONLY})

	require.NoError(t, fsys.WriteFile(&fuseops.WriteFileOp{Handle: handle, Offset: 10, Data: []byte("patched")}))

	r.mu.Lock()
	mf := r.files["/f"]
	mode := r.lastMode
	r.mu.Unlock()
	require.NotNil(t, mf)
	// A non-sequential write is sent as mode write, never write_at or
	// append.
	assert.Equal(t, remote.ModeWrite, mode)
	assert.Equal(t, "patched", string(r.data["/f"]))
}

func TestWriteFileAppendFlagIgnoresOffset(t *testing.T) {
	r := newFakeRemote()
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644", Size: 5}, []byte("hello"))
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_WRONLY | syscall.O_APPEND})

	// Offset 0 would normally be non-sequential against a 5-byte file, but
	// O_APPEND must force the effective offset to the file's end, making it
	// sequential and therefore buffered.
	require.NoError(t, fsys.WriteFile(&fuseops.WriteFileOp{Handle: handle, Offset: 0, Data: []byte(" there")}))

	fsys.mu.Lock()
	h := fsys.openFiles[handle]
	fsys.mu.Unlock()
	assert.Equal(t, " there", string(h.buffer))
}

func TestWriteFileEmptyDataIsNoop(t *testing.T) {
	fsys := newTestFS(newFakeRemote())
	err := fsys.WriteFile(&fuseops.WriteFileOp{Handle: 999, Data: nil})
	assert.NoError(t, err)
}

func TestReleaseFileHandleFlushesBuffer(t *testing.T) {
	r := newFakeRemote()
	r.put("/f", remote.MetaFile{Kind: remote.KindRegular, Perm: "644", Size: 0}, nil)
	fsys := newTestFS(r)
	handle := openForTest(t, fsys, "/f", &fuseops.OpenFileOp{Flags: syscall.O_WRONLY})

	require.NoError(t, fsys.WriteFile(&fuseops.WriteFileOp{Handle: handle, Offset: 0, Data: []byte("buffered")}))
	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: handle}))

	r.mu.Lock()
	got := string(r.data["/f"])
	r.mu.Unlock()
	assert.Equal(t, "buffered", got)

	fsys.mu.Lock()
	_, stillOpen := fsys.openFiles[handle]
	fsys.mu.Unlock()
	assert.False(t, stillOpen)
}
