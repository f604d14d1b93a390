package fs

import (
	"context"
	"sync"

	"github.com/mistfs/mistfs/internal/remote"
)

// fakeRemote is an in-memory stand-in for the HTTP-backed remote.Client,
// letting the FUSE adaptation layer be exercised without a network.
type fakeRemote struct {
	mu    sync.Mutex
	files map[string]*remote.MetaFile
	data  map[string][]byte

	// getErr, when non-nil, is returned verbatim by GetFileMetadata
	// regardless of path, for tests of error translation.
	getErr error

	// lastMode is the Mode of the most recent WriteFile request.
	lastMode remote.Mode
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files: make(map[string]*remote.MetaFile),
		data:  make(map[string][]byte),
	}
}

// put registers a file or directory directly, bypassing WriteFile.
func (f *fakeRemote) put(path string, mf remote.MetaFile, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := mf
	f.files[path] = &cp
	if content != nil {
		f.data[path] = content
	}
}

func (f *fakeRemote) ListDirectory(ctx context.Context, path string) (remote.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.files[path]; !ok && path != "/" {
		return remote.Listing{}, &remote.NotFoundError{Path: path}
	}

	prefix := path
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}

	var entries []remote.MetaFile
	for p, mf := range f.files {
		if p == path {
			continue
		}
		rest, ok := cutPrefix(p, prefix)
		if !ok || rest == "" || containsRune(rest, '/') {
			continue
		}
		entries = append(entries, *mf)
	}
	return remote.Listing{Entries: entries}, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

func (f *fakeRemote) GetFileMetadata(ctx context.Context, path string) (remote.MetaFile, error) {
	if f.getErr != nil {
		return remote.MetaFile{}, f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	mf, ok := f.files[path]
	if !ok {
		return remote.MetaFile{}, &remote.NotFoundError{Path: path}
	}
	return *mf, nil
}

func (f *fakeRemote) ReadFile(ctx context.Context, path string, offset, size *int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, ok := f.data[path]
	if !ok {
		return nil, &remote.NotFoundError{Path: path}
	}

	start := int64(0)
	if offset != nil {
		start = *offset
	}
	end := int64(len(content))
	if size != nil && start+*size < end {
		end = start + *size
	}
	if start >= int64(len(content)) {
		return nil, nil
	}
	return content[start:end], nil
}

func (f *fakeRemote) WriteFile(ctx context.Context, req remote.WriteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastMode = req.Mode

	if req.NewPath != nil {
		mf, ok := f.files[req.Path]
		if !ok {
			return &remote.NotFoundError{Path: req.Path}
		}
		content := f.data[req.Path]
		delete(f.files, req.Path)
		delete(f.data, req.Path)
		cp := *mf
		cp.Name = *req.NewPath
		f.files[*req.NewPath] = &cp
		if content != nil {
			f.data[*req.NewPath] = content
		}
		return nil
	}

	existing := f.files[req.Path]

	switch req.Mode {
	case remote.ModeAppend:
		f.data[req.Path] = append(f.data[req.Path], req.Content...)
	default:
		if req.Content != nil {
			f.data[req.Path] = append([]byte(nil), req.Content...)
		}
	}

	size := req.Size
	if req.Mode == remote.ModeAppend && existing != nil {
		size = existing.Size + int64(len(req.Content))
	}

	mf := remote.MetaFile{
		Name:    req.Path,
		Size:    size,
		Kind:    req.Kind,
		Perm:    req.Perm,
		RefPath: req.RefPath,
		Atime:   remote.FormatTime(req.Atime),
		Mtime:   remote.FormatTime(req.Mtime),
		Ctime:   remote.FormatTime(req.Ctime),
		Crtime:  remote.FormatTime(req.Crtime),
	}
	if existing != nil {
		mf.Nlink = existing.Nlink
	}
	f.files[req.Path] = &mf
	return nil
}

func (f *fakeRemote) CreateDirectory(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = &remote.MetaFile{Name: path, Kind: remote.KindDirectory, Perm: "755"}
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.files[path]; !ok {
		return &remote.NotFoundError{Path: path}
	}
	delete(f.files, path)
	delete(f.data, path)
	return nil
}
