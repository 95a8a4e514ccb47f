// Package storage defines the object store used by the audit archive shipper.
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so the configured one is available.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when no object exists at the path
var ErrNotFound = errors.New("object not found")

// Storage is a write-mostly object store
type Storage interface {
	// Put writes data to path, replacing any existing object
	Put(ctx context.Context, path string, data []byte, contentType string) (*PutResult, error)

	// Get opens the object at path; ErrNotFound when it does not exist
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks if an object exists at path
	Exists(ctx context.Context, path string) (bool, error)
}

// PutResult describes a stored object
type PutResult struct {
	Path string

	Size int64

	// Checksum is the hex SHA256 of the object contents
	Checksum string
}
