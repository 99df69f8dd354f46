// Package memory implements an in-memory blob Store for tests.
package memory

import (
	"bytes"
	"cellenics/internal/blob/core"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type blobEntry struct {
	info core.Info
	data []byte
}

// Hooks inject failures. A nil hook never fails.
type Hooks struct {
	List    func(bucket, prefix string) error
	Copy    func(srcBucket, srcKey, dstBucket, dstKey string) error
	Matches func(bucket, key string) error
}

// Store implements core.Store backed by process memory. Intended for tests.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]blobEntry
	hooks   Hooks
	calls   atomic.Int64
	copies  atomic.Int64
}

// New returns an in-memory blob store.
func New() *Store { return &Store{buckets: make(map[string]map[string]blobEntry)} }

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// SetHooks installs failure hooks.
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Calls returns the number of operations served so far.
func (s *Store) Calls() int64 { return s.calls.Load() }

// Copies returns the number of successful Copy calls.
func (s *Store) Copies() int64 { return s.copies.Load() }

// Put stores a new blob; errors if key exists.
func (s *Store) Put(_ context.Context, bucket, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	s.calls.Add(1)
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.buckets[bucket][key]; exists {
		return core.Info{}, fmt.Errorf("blob %s/%s already exists", bucket, key)
	}
	sum := sha256.Sum256(b)
	info := core.Info{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.bucket(bucket)[key] = blobEntry{info: info, data: b}
	return copyInfo(info), nil
}

// bucket must be called with mu held for writing.
func (s *Store) bucket(name string) map[string]blobEntry {
	b, ok := s.buckets[name]
	if !ok {
		b = make(map[string]blobEntry)
		s.buckets[name] = b
	}
	return b
}

// Get returns blob metadata and a read closer to its content.
func (s *Store) Get(_ context.Context, bucket, key string) (core.Info, io.ReadCloser, error) {
	s.calls.Add(1)
	s.mu.RLock()
	obj, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)
	return copyInfo(obj.info), io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// Head returns blob metadata only.
func (s *Store) Head(_ context.Context, bucket, key string) (core.Info, error) {
	s.calls.Add(1)
	s.mu.RLock()
	obj, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	return copyInfo(obj.info), nil
}

// List returns all blobs of bucket matching prefix, ordered by key.
func (s *Store) List(_ context.Context, bucket, prefix string) ([]core.Info, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hooks.List != nil {
		if err := s.hooks.List(bucket, prefix); err != nil {
			return nil, err
		}
	}
	out := make([]core.Info, 0, len(s.buckets[bucket]))
	for k, v := range s.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyInfo(v.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Matches reports whether bucket/key exists with the given ETag.
func (s *Store) Matches(_ context.Context, bucket, key, etag string) (bool, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hooks.Matches != nil {
		if err := s.hooks.Matches(bucket, key); err != nil {
			return false, err
		}
	}
	obj, ok := s.buckets[bucket][key]
	return ok && etag != "" && obj.info.ETag == etag, nil
}

// Copy duplicates an object, replacing any existing target. Content,
// fingerprint and metadata are carried over.
func (s *Store) Copy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) (core.Info, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hooks.Copy != nil {
		if err := s.hooks.Copy(srcBucket, srcKey, dstBucket, dstKey); err != nil {
			return core.Info{}, err
		}
	}
	obj, ok := s.buckets[srcBucket][srcKey]
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s/%s: %w", srcBucket, srcKey, core.ErrNotFound)
	}
	info := copyInfo(obj.info)
	info.Bucket, info.Key = dstBucket, dstKey
	info.LastModified = time.Now().UTC()
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	s.bucket(dstBucket)[dstKey] = blobEntry{info: info, data: data}
	s.copies.Add(1)
	return copyInfo(info), nil
}

// Keys returns the keys stored in bucket, sorted.
func (s *Store) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyInfo(in core.Info) core.Info {
	in.Metadata = cloneMetadata(in.Metadata)
	return in
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
