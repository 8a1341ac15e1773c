// Package blob is the object store layer under every pipeline stage.
// Stages never talk to S3 directly; they depend on Store and pick a
// backend through config.
package blob

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the key has no object.
	ErrNotFound = errors.New("blob: object not found")

	// ErrPreconditionFailed is returned when a conditional write loses:
	// PutIfAbsent found an existing object, or PutIfMatch saw a
	// different ETag than expected.
	ErrPreconditionFailed = errors.New("blob: precondition failed")
)

// ObjectInfo describes a stored object. ETag is opaque; it changes on
// every successful write and is only meaningful to pass back into
// PutIfMatch.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// Object is a stored object together with its body.
type Object struct {
	ObjectInfo
	Body []byte
}

// Store is the object store every layer reads and writes through.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes the object unconditionally, replacing any previous body.
	Put(ctx context.Context, key string, body []byte) (ObjectInfo, error)

	// PutIfAbsent writes only when the key has no object yet. A lost
	// race returns ErrPreconditionFailed.
	PutIfAbsent(ctx context.Context, key string, body []byte) (ObjectInfo, error)

	// PutIfMatch writes only when the current object's ETag equals etag.
	// A concurrent change returns ErrPreconditionFailed; a missing
	// object returns ErrNotFound.
	PutIfMatch(ctx context.Context, key string, body []byte, etag string) (ObjectInfo, error)

	// Get reads the object, or ErrNotFound.
	Get(ctx context.Context, key string) (Object, error)

	// Head reads object metadata without the body, or ErrNotFound.
	Head(ctx context.Context, key string) (ObjectInfo, error)

	// List returns metadata for every object under prefix in ascending
	// key order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Exists reports whether key currently has an object.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
