package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cellenics/internal/blob/core"
)

// Store keeps blobs on local disk for development and tests. Each bucket is
// a directory under root and each key a relative file path inside it. A JSON
// sidecar (key + ".meta") holds the content type, user metadata and the sha256
// fingerprint used as ETag.
type Store struct {
	root string
}

// New opens a store at root (./blobdata when empty), creating the directory.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sanitizeKey accepts slash separated relative keys without "." or ".."
// elements, so every object stays inside its bucket directory.
func sanitizeKey(key string) (string, error) {
	if key == "." || !fs.ValidPath(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.FromSlash(key), nil
}

func (s *Store) bucketDir(bucket string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || strings.Contains(bucket, "..") {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	return filepath.Join(s.root, bucket), nil
}

func (s *Store) pathFor(bucket, key string) (dataPath, metaPath string, err error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", "", err
	}
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(dir, k)
	metaPath = dataPath + ".meta"
	return
}

// sidecar is the JSON document stored next to each object.
type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	Modified    time.Time         `json:"modified"`
}

func (sc sidecar) info(bucket, key string) core.Info {
	return core.Info{
		Bucket:       bucket,
		Key:          key,
		Size:         sc.Size,
		ContentType:  sc.ContentType,
		ETag:         sc.ETag,
		Metadata:     maps.Clone(sc.Metadata),
		LastModified: sc.Modified,
	}
}

// store writes r and its sidecar under bucket/key.
func (s *Store) store(bucket, key string, r io.Reader, contentType string, md map[string]string) (core.Info, error) {
	dataPath, metaPath, err := s.pathFor(bucket, key)
	if err != nil {
		return core.Info{}, err
	}
	size, etag, err := writeAtomic(dataPath, r)
	if err != nil {
		return core.Info{}, err
	}
	sc := sidecar{ContentType: contentType, Metadata: maps.Clone(md), ETag: etag, Size: size, Modified: time.Now().UTC()}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return core.Info{}, err
	}
	return sc.info(bucket, key), nil
}

// Put creates an object. Existing objects are never overwritten.
func (s *Store) Put(_ context.Context, bucket, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, _, err := s.pathFor(bucket, key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return core.Info{}, fmt.Errorf("blob %s/%s already exists", bucket, key)
	}
	return s.store(bucket, key, r, opts.ContentType, opts.Metadata)
}

// writeAtomic streams r into a temp file next to dataPath, then renames it into place.
func writeAtomic(dataPath string, r io.Reader) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return 0, "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return 0, "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, "", err
	}
	if err := tmp.Close(); err != nil {
		return 0, "", err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

// Get opens an object for reading.
func (s *Store) Get(_ context.Context, bucket, key string) (core.Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.pathFor(bucket, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, nil, fmt.Errorf("blob %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	return sc.info(bucket, key), file, nil
}

func (s *Store) Head(_ context.Context, bucket, key string) (core.Info, error) {
	_, metaPath, err := s.pathFor(bucket, key)
	if err != nil {
		return core.Info{}, err
	}
	sc, err := readSidecar(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, fmt.Errorf("blob %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, err
	}
	return sc.info(bucket, key), nil
}

func (s *Store) Matches(ctx context.Context, bucket, key, etag string) (bool, error) {
	info, err := s.Head(ctx, bucket, key)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return etag != "" && info.ETag == etag, nil
}

// Copy duplicates an object, replacing the target.
func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (core.Info, error) {
	src, rc, err := s.Get(ctx, srcBucket, srcKey)
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = rc.Close() }()
	return s.store(dstBucket, dstKey, rc, src.ContentType, src.Metadata)
}

// List returns the objects of bucket whose keys start with prefix, in key order.
// A missing bucket directory lists as empty.
func (s *Store) List(_ context.Context, bucket, prefix string) ([]core.Info, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	var infos []core.Info
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".meta") {
			return nil
		}
		rel, err := filepath.Rel(dir, strings.TrimSuffix(path, ".meta"))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		sc, err := readSidecar(path)
		if err != nil {
			return err
		}
		infos = append(infos, sc.info(bucket, key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(infos, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return infos, nil
}

func readSidecar(path string) (sidecar, error) {
	var sc sidecar
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	err = json.Unmarshal(data, &sc)
	return sc, err
}
