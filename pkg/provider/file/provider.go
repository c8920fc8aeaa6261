// Package file implements delimiter listing over a local directory tree in
// which each top-level directory is a bucket and each file below it an object.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/3leaps/objmanifest/pkg/provider"
)

// DefaultMaxKeys is the default page size.
const DefaultMaxKeys = 1000

// Ensure Provider implements provider capability interfaces.
var (
	_ provider.DelimiterLister = (*Provider)(nil)
	_ provider.BucketChecker   = (*Provider)(nil)
)

// Config configures a file provider.
type Config struct {
	// Root is the directory holding one subdirectory per bucket. A file://
	// prefix is accepted.
	Root string

	// Bucket is the default bucket name (required).
	Bucket string

	// MaxKeys is the default page size. Zero uses DefaultMaxKeys.
	MaxKeys int
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("file config: root directory is required")
	}
	if err := validBucket(c.Bucket); err != nil {
		return fmt.Errorf("file config: %w", err)
	}
	return nil
}

// Provider lists a local directory tree as if it were a bucket.
type Provider struct {
	fs      billy.Filesystem
	bucket  string
	maxKeys int
}

// New returns a provider rooted at cfg.Root on the local disk.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root := filepath.Clean(strings.TrimPrefix(cfg.Root, "file://"))
	return NewFromFS(osfs.New(root), cfg), nil
}

// NewFromFS returns a provider over fs. The fs root holds the buckets.
func NewFromFS(fs billy.Filesystem, cfg Config) *Provider {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Provider{fs: fs, bucket: cfg.Bucket, maxKeys: maxKeys}
}

// Bucket returns the default bucket.
func (p *Provider) Bucket() string {
	return p.bucket
}

// entry is one listing result: an object, or a common prefix ending in "/".
type entry struct {
	name     string
	isPrefix bool
	size     int64
	modTime  time.Time
}

// ListWithDelimiter lists one page. Only the "/" delimiter and no delimiter
// are supported; entries are returned in key order.
func (p *Provider) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket := opts.Bucket
	if bucket == "" {
		bucket = p.bucket
	}
	if err := validBucket(bucket); err != nil {
		return nil, p.wrapError("ListWithDelimiter", bucket, opts.Prefix, err)
	}
	if strings.Contains(opts.Prefix, "..") {
		return nil, p.wrapError("ListWithDelimiter", bucket, opts.Prefix, errors.New("invalid prefix"))
	}

	var (
		entries []entry
		err     error
	)
	switch opts.Delimiter {
	case "/":
		entries, err = p.listLevel(bucket, opts.Prefix)
	case "":
		entries, err = p.listAll(bucket, opts.Prefix)
	default:
		err = fmt.Errorf("unsupported delimiter %q", opts.Delimiter)
	}
	if err != nil {
		return nil, p.wrapError("ListWithDelimiter", bucket, opts.Prefix, err)
	}
	if err := p.checkBucketDir(bucket, entries); err != nil {
		return nil, p.wrapError("ListWithDelimiter", bucket, opts.Prefix, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	start := 0
	if tok := opts.ContinuationToken; tok != "" {
		start = sort.Search(len(entries), func(i int) bool { return entries[i].name > tok })
	}

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > p.maxKeys {
		maxKeys = p.maxKeys
	}
	end := start + maxKeys
	if end > len(entries) {
		end = len(entries)
	}

	res := &provider.ListWithDelimiterResult{
		Objects:        make([]provider.ObjectSummary, 0, end-start),
		CommonPrefixes: []string{},
	}
	for _, e := range entries[start:end] {
		if e.isPrefix {
			res.CommonPrefixes = append(res.CommonPrefixes, e.name)
			continue
		}
		res.Objects = append(res.Objects, provider.ObjectSummary{Key: e.name, Size: e.size, LastModified: e.modTime})
	}
	if end < len(entries) {
		res.IsTruncated = true
		res.ContinuationToken = entries[end-1].name
	}
	return res, nil
}

// CheckBucket verifies that the bucket directory exists.
func (p *Provider) CheckBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" {
		bucket = p.bucket
	}
	if err := validBucket(bucket); err != nil {
		return p.wrapError("CheckBucket", bucket, "", err)
	}
	fi, err := p.fs.Stat(bucket)
	if err != nil {
		return p.wrapError("CheckBucket", bucket, "", bucketErr(err))
	}
	if !fi.IsDir() {
		return p.wrapError("CheckBucket", bucket, "", provider.ErrBucketNotFound)
	}
	return nil
}

// listLevel reads only the directory that holds prefix: files become
// objects and subdirectories with at least one file become common prefixes.
func (p *Provider) listLevel(bucket, prefix string) ([]entry, error) {
	dir, base := "", prefix
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, base = prefix[:i+1], prefix[i+1:]
	}

	infos, err := p.fs.ReadDir(path.Join(bucket, dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []entry
	for _, fi := range infos {
		if !strings.HasPrefix(fi.Name(), base) {
			continue
		}
		key := dir + fi.Name()
		switch {
		case fi.IsDir():
			ok, err := p.hasObjects(path.Join(bucket, key))
			if err != nil {
				return nil, err
			}
			if ok {
				entries = append(entries, entry{name: key + "/", isPrefix: true})
			}
		case fi.Mode().IsRegular():
			entries = append(entries, entry{name: key, size: fi.Size(), modTime: fi.ModTime()})
		}
	}
	return entries, nil
}

// listAll returns every object under the bucket whose key starts with prefix.
func (p *Provider) listAll(bucket, prefix string) ([]entry, error) {
	var entries []entry
	err := p.walk(bucket, "", func(key string, fi os.FileInfo) error {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, entry{name: key, size: fi.Size(), modTime: fi.ModTime()})
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

// walk calls fn for every regular file below root/rel, depth first. An error
// from fn stops the walk and is returned.
func (p *Provider) walk(root, rel string, fn func(key string, fi os.FileInfo) error) error {
	infos, err := p.fs.ReadDir(path.Join(root, rel))
	if err != nil {
		return err
	}
	for _, fi := range infos {
		key := path.Join(rel, fi.Name())
		switch {
		case fi.IsDir():
			if err := p.walk(root, key, fn); err != nil {
				return err
			}
		case fi.Mode().IsRegular():
			if err := fn(key, fi); err != nil {
				return err
			}
		}
	}
	return nil
}

var errFound = errors.New("found")

func (p *Provider) hasObjects(dir string) (bool, error) {
	err := p.walk(dir, "", func(string, os.FileInfo) error { return errFound })
	switch {
	case errors.Is(err, errFound):
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

// checkBucketDir distinguishes an empty listing from a missing bucket.
func (p *Provider) checkBucketDir(bucket string, entries []entry) error {
	if len(entries) > 0 {
		return nil
	}
	fi, err := p.fs.Stat(bucket)
	if err != nil {
		return bucketErr(err)
	}
	if !fi.IsDir() {
		return provider.ErrBucketNotFound
	}
	return nil
}

func validBucket(bucket string) error {
	switch {
	case bucket == "":
		return errors.New("bucket name is required")
	case strings.ContainsAny(bucket, `/\`), bucket == ".", bucket == "..":
		return fmt.Errorf("invalid bucket name %q", bucket)
	}
	return nil
}

func bucketErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return provider.ErrBucketNotFound
	}
	return err
}

func (p *Provider) wrapError(op, bucket, key string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		err = provider.ErrAccessDenied
	}
	return &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: bucket, Key: key, Err: err}
}
