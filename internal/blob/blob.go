// Package blob abstracts the object store holding raw event files.
//
// Keys are '/'-separated and listed in lexicographic order, the order S3
// returns them in.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open for a missing bucket or key.
var ErrNotFound = errors.New("blob: not found")

// Store lists and opens objects.
type Store interface {
	// List returns every key in bucket starting with prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	// Open returns the object's content. The caller closes it.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
