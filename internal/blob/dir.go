package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir serves objects from the local filesystem, laid out as
// <root>/<bucket>/<key>. It is used to replay downloaded hours without
// AWS credentials.
type Dir struct{ root string }

// NewDir returns a store rooted at root.
func NewDir(root string) *Dir { return &Dir{root: root} }

// List walks <root>/<bucket> and returns the keys starting with prefix,
// sorted like an S3 listing.
func (d *Dir) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	base := filepath.Join(d.root, bucket)
	if _, err := os.Stat(base); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: bucket %s", ErrNotFound, bucket)
		}
		return nil, err
	}

	var keys []string
	err := filepath.WalkDir(base, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Open opens <root>/<bucket>/<key>.
func (d *Dir) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, bucket, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, err
	}
	return f, nil
}
