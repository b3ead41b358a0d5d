// Package filestore keeps uploaded assets addressable by an opaque id.
package filestore

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrStorage wraps failures to persist an upload.
var ErrStorage = errors.New("error saving file")

// maxSaveAttempts bounds retries when a freshly generated id collides.
const maxSaveAttempts = 3

// Store saves uploads under {subdir}/{id}{ext} and finds them again by id.
type Store interface {
	// Save stores r under a fresh id, keeping the extension of filename.
	Save(ctx context.Context, r io.Reader, filename, subdir string) (path, id string, err error)
	// Resolve returns a local path for the first stored file whose name is id
	// followed by any extension. ok is false when nothing matches.
	Resolve(ctx context.Context, id, subdir string) (path string, ok bool, err error)
	// Delete removes the file for id. It reports false when nothing matched.
	Delete(ctx context.Context, id, subdir string) (bool, error)
	Ping(ctx context.Context) error
}

// safeSegment reports whether s can be used as a single path element.
func safeSegment(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "..")
}

// matchesID reports whether a stored file name belongs to id.
func matchesID(name, id string) bool {
	return name == id || strings.HasPrefix(name, id+".")
}
