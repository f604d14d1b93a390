// Package pathutil implements the pure path manipulation helpers shared by
// the remote client and the filesystem adaptation layer: parent/basename
// extraction and the percent-encoding used to build wire routes.
package pathutil

import (
	"net/url"
	"strings"
)

// Parent returns the parent directory of p. Parent("/") is "/".
func Parent(p string) string {
	if p == "/" {
		return "/"
	}

	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return "/"
	}

	return trimmed[:idx]
}

// Base returns the final path segment of p. Base("/") is "".
func Base(p string) string {
	if p == "/" {
		return ""
	}

	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	return trimmed[idx+1:]
}

// Join inserts exactly one '/' between parent and name.
func Join(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}

	return strings.TrimSuffix(parent, "/") + "/" + name
}

// EncodeRoute builds a wire route by stripping the leading '/' from p,
// percent-encoding the remainder as a single path segment, and appending it
// to base (e.g. base "/list" + p "/a/b" -> "/list/a%2Fb").
func EncodeRoute(base, p string) string {
	trimmed := strings.TrimPrefix(p, "/")
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(trimmed)
}
