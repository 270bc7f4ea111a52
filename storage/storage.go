// Package storage opens structured array files and reads records along their leading dimension.
package storage

import (
	"errors"
	"strings"

	"segloader/volume"
)

var (
	ErrArrayNotFound = errors.New("array not found")
	ErrClosed        = errors.New("file is closed")
	ErrScalarArray   = errors.New("array has no leading dimension")
)

// File is an open structured array file.
type File interface {
	Path() string
	Array(internalPath string) (Array, error)
	Close() error
}

// Array is a view of one array inside a File.
type Array interface {
	Shape() []int
	// Len is the size of the leading dimension.
	Len() int
	// ReadAt reads record i along the leading dimension.
	ReadAt(i int) (*volume.Volume, error)
	// ReadAll loads the whole array into memory.
	ReadAll() (*volume.Volume, error)
}

// Opener opens a File read-only.
type Opener func(path string) (File, error)

// normalizeInternalPath maps "raw", "/raw" and "/raw/" to "/raw".
func normalizeInternalPath(p string) string {
	p = strings.Trim(p, "/")
	return "/" + p
}
