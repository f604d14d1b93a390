package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/mistfs/mistfs/internal/auth"
	"github.com/mistfs/mistfs/internal/cache"
	"github.com/mistfs/mistfs/internal/pathutil"
)

const (
	routeList  = "/list"
	routeFiles = "/files"
	routeMkdir = "/mkdir"
	routeUsers = "/users"
)

// rootStat is the constant synthetic directory record for "/" (spec.md
// §4.4: get_file_metadata bypasses the network for the root).
func rootStat(now time.Time) MetaFile {
	ts := FormatTime(now)
	return MetaFile{
		Name:  "/",
		Size:  4096,
		Atime: ts, Mtime: ts, Ctime: ts, Crtime: ts,
		Kind:  KindDirectory,
		Perm:  "755",
		Nlink: 2,
	}
}

// Client is the typed HTTP facade onto the remote object store (spec.md
// §4.4). It owns the HTTP client, the credential pair (via Signer) and the
// listing cache; no other component performs network I/O.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *auth.Signer
	cache   *cache.Listings
	now     func() time.Time
}

// Config bundles the dependencies needed to construct a Client.
type Config struct {
	BaseURL string
	Creds   auth.Credentials
	Timeout time.Duration
}

// New builds a Client. Timeout bounds every HTTP call (default 60s per
// spec.md §5).
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		signer:  auth.NewSigner(cfg.Creds),
		cache:   cache.New(cache.DefaultTTL, cache.DefaultTTL/12),
		now:     time.Now,
	}
}

// Close stops the client's background cache sweeper.
func (c *Client) Close() {
	c.cache.Stop()
}

func (c *Client) do(ctx context.Context, method, route string, extraHeaders map[string]string, signedExtra []string, bodyParts [][]byte, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	h := c.signer.Sign(method, route, signedExtra, bodyParts)
	req.Header.Set(auth.HeaderAPIKey, h.APIKey)
	req.Header.Set(auth.HeaderSignature, h.Signature)
	req.Header.Set(auth.HeaderTimestamp, h.Timestamp)
	req.Header.Set(auth.HeaderNonce, h.Nonce)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	return resp, nil
}

// errorFromResponse consumes and classifies a non-2xx response.
func errorFromResponse(resp *http.Response, path string) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return translateStatus(resp.StatusCode, path, string(body))
}

// ListDirectory returns the listing for path, consulting the cache first.
func (c *Client) ListDirectory(ctx context.Context, path string) (Listing, error) {
	if l, ok := c.cache.Get(path); ok {
		return l, nil
	}

	route := pathutil.EncodeRoute(routeList, path)
	resp, err := c.do(ctx, http.MethodGet, route, nil, nil, nil, nil, "")
	if err != nil {
		return Listing{}, err
	}
	defer resp.Body.Close()

	if err := errorFromResponse(resp, path); err != nil {
		return Listing{}, err
	}

	var entries []MetaFile
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return Listing{}, fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	listing := Listing{Entries: entries}
	c.cache.Put(path, listing)

	return listing, nil
}

// GetFileMetadata resolves path to its MetaFile by listing its parent and
// searching for its basename, per spec.md §4.4. The root is synthesized
// without a network call.
func (c *Client) GetFileMetadata(ctx context.Context, path string) (MetaFile, error) {
	if path == "/" {
		return rootStat(c.now()), nil
	}

	parent := pathutil.Parent(path)
	listing, err := c.ListDirectory(ctx, parent)
	if err != nil {
		return MetaFile{}, err
	}

	mf, ok := listing.Find(pathutil.Base(path))
	if !ok {
		return MetaFile{}, &NotFoundError{Path: path}
	}

	mf.Name = path
	return mf, nil
}

// ReadFile reads path's content. If size is nil, the full remainder from
// offset is requested (an open-ended Range); if offset is nil, no Range
// header is sent at all.
func (c *Client) ReadFile(ctx context.Context, path string, offset, size *int64) ([]byte, error) {
	route := pathutil.EncodeRoute(routeFiles, path)

	extraHeaders := map[string]string{}
	var signedExtra []string
	if offset != nil {
		var rangeVal string
		if size != nil {
			rangeVal = fmt.Sprintf("bytes=%d-%d", *offset, *offset+*size-1)
		} else {
			rangeVal = fmt.Sprintf("bytes=%d-", *offset)
		}
		extraHeaders["Range"] = rangeVal
		signedExtra = append(signedExtra, rangeVal)
	}

	resp, err := c.do(ctx, http.MethodGet, route, extraHeaders, signedExtra, nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := errorFromResponse(resp, path); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	return data, nil
}

// WriteFile validates req per spec.md §4.4's mode preconditions, invalidates
// the cache entry for parent(req.Path), and issues the multipart PUT.
func (c *Client) WriteFile(ctx context.Context, req WriteRequest) error {
	if err := validateWriteRequest(req); err != nil {
		return err
	}

	metaJSON, err := json.Marshal(writeMetadataJSON{
		Size:    req.Size,
		Perm:    req.Perm,
		Atime:   FormatTime(req.Atime),
		Mtime:   FormatTime(req.Mtime),
		Ctime:   FormatTime(req.Ctime),
		Crtime:  FormatTime(req.Crtime),
		Kind:    req.Kind,
		Mode:    req.Mode,
		NewPath: req.NewPath,
		RefPath: req.RefPath,
		Offset:  req.Offset,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	// Invalidate before sending: spec.md §5 requires that a racing listing
	// sees either the pre-mutation state or a subsequent fresh fetch, never a
	// cache entry populated before this mutation returned.
	c.cache.Invalidate(pathutil.Parent(req.Path))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreateFormField("metadata")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	bodyParts := [][]byte{metaJSON}

	sendContent := req.Mode != ModeTruncate && (len(req.Content) > 0 || req.Mode == ModeAppend || req.Mode == ModeWriteAt)
	if sendContent {
		contentPart, err := mw.CreateFormFile("content", "file")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHTTP, err)
		}
		if _, err := contentPart.Write(req.Content); err != nil {
			return fmt.Errorf("%w: %v", ErrHTTP, err)
		}
		bodyParts = append(bodyParts, req.Content)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	route := pathutil.EncodeRoute(routeFiles, req.Path)
	resp, err := c.do(ctx, http.MethodPut, route, nil, nil, bodyParts, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return errorFromResponse(resp, req.Path)
}

func validateWriteRequest(req WriteRequest) error {
	badRequest := func(msg string) error {
		return &ServerError{Status: http.StatusBadRequest, Message: msg}
	}

	switch req.Kind {
	case KindSoftLink, KindHardLink:
		if req.RefPath == nil || *req.RefPath == "" {
			return badRequest("symlink/hardlink requires a non-empty reference path")
		}
	}

	switch req.Mode {
	case ModeWrite:
		if len(req.Content) > 0 && req.Size != int64(len(req.Content)) {
			return badRequest("declared size must equal content length")
		}
	case ModeAppend:
		if req.Content == nil {
			return badRequest("append requires content")
		}
		if req.Size != int64(len(req.Content)) {
			return badRequest("declared size must equal content length")
		}
	case ModeWriteAt:
		if req.Content == nil {
			return badRequest("write_at requires content")
		}
		if req.Offset == nil {
			return badRequest("write_at requires an offset")
		}
		if req.Size != int64(len(req.Content)) {
			return badRequest("declared size must equal content length")
		}
	case ModeTruncate:
		// Content is ignored; Size is the desired final length.
	default:
		return badRequest("unknown mode")
	}

	return nil
}

// CreateDirectory issues POST /mkdir/<path> and invalidates parent(path).
func (c *Client) CreateDirectory(ctx context.Context, path string) error {
	c.cache.Invalidate(pathutil.Parent(path))

	route := pathutil.EncodeRoute(routeMkdir, path)
	resp, err := c.do(ctx, http.MethodPost, route, nil, nil, nil, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return errorFromResponse(resp, path)
}

// Delete issues DELETE /files/<path> and invalidates parent(path).
func (c *Client) Delete(ctx context.Context, path string) error {
	c.cache.Invalidate(pathutil.Parent(path))

	route := pathutil.EncodeRoute(routeFiles, path)
	resp, err := c.do(ctx, http.MethodDelete, route, nil, nil, nil, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return errorFromResponse(resp, path)
}

// UserRegistration registers username and returns the issued credential
// pair. It requires no authentication.
func (c *Client) UserRegistration(ctx context.Context, username string) (CredentialPair, error) {
	body, err := json.Marshal(struct {
		Username string `json:"username"`
	}{Username: username})
	if err != nil {
		return CredentialPair{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+routeUsers, bytes.NewReader(body))
	if err != nil {
		return CredentialPair{}, fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return CredentialPair{}, fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	defer resp.Body.Close()

	if err := errorFromResponse(resp, routeUsers); err != nil {
		return CredentialPair{}, err
	}

	var creds CredentialPair
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return CredentialPair{}, fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	return creds, nil
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsPermissionDenied reports whether err is (or wraps) a
// PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var e *PermissionDeniedError
	return errors.As(err, &e)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsTooLarge reports whether err is (or wraps) a TooLargeError.
func IsTooLarge(err error) bool {
	var e *TooLargeError
	return errors.As(err, &e)
}

// IsNoSpace reports whether err is (or wraps) a NoSpaceError.
func IsNoSpace(err error) bool {
	var e *NoSpaceError
	return errors.As(err, &e)
}
