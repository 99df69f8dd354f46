package memory

import (
	"bytes"
	"cellenics/internal/blob/core"
	"context"
	"errors"
	"io"
	"testing"
)

func TestStore_MissingHeadGet(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "b", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := store.Get(ctx, "b", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Copy(ctx, "b", "missing", "c", "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_PutListMatchesCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	info, err := store.Put(ctx, "src", "e1/raw.h5", bytes.NewReader([]byte("payload")), core.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"a": "b"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size != 7 || info.Bucket != "src" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "src", "e1/raw.h5", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	if _, err := store.Put(ctx, "src", "e10/raw.h5", bytes.NewReader([]byte("other")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := store.List(ctx, "src", "e1")
	if err != nil || len(list) != 2 || list[0].Key != "e1/raw.h5" {
		t.Fatalf("unexpected list %#v err=%v", list, err)
	}

	if ok, _ := store.Matches(ctx, "dst", "ns-e1/raw.h5", info.ETag); ok {
		t.Fatalf("missing target must not match")
	}
	copied, err := store.Copy(ctx, "src", "e1/raw.h5", "dst", "ns-e1/raw.h5")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if copied.ETag != info.ETag || copied.Metadata["a"] != "b" {
		t.Fatalf("copy lost fingerprint or metadata: %#v", copied)
	}
	if ok, _ := store.Matches(ctx, "dst", "ns-e1/raw.h5", info.ETag); !ok {
		t.Fatalf("expected match after copy")
	}
	if ok, _ := store.Matches(ctx, "dst", "ns-e1/raw.h5", "other"); ok {
		t.Fatalf("different etag must not match")
	}
	if ok, _ := store.Matches(ctx, "dst", "ns-e1/raw.h5", ""); ok {
		t.Fatalf("empty etag must not match")
	}
	_, rc, err := store.Get(ctx, "dst", "ns-e1/raw.h5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "payload" {
		t.Fatalf("unexpected content %q", data)
	}
	if store.Copies() != 1 || len(store.Keys("dst")) != 1 {
		t.Fatalf("unexpected copy accounting %d %v", store.Copies(), store.Keys("dst"))
	}
}

func TestStore_Hooks(t *testing.T) {
	store := New()
	ctx := context.Background()
	boom := errors.New("boom")
	store.SetHooks(Hooks{
		List:    func(string, string) error { return boom },
		Copy:    func(string, string, string, string) error { return boom },
		Matches: func(string, string) error { return boom },
	})
	if _, err := store.List(ctx, "b", ""); !errors.Is(err, boom) {
		t.Fatalf("expected list hook error, got %v", err)
	}
	if _, err := store.Copy(ctx, "b", "k", "c", "k"); !errors.Is(err, boom) {
		t.Fatalf("expected copy hook error, got %v", err)
	}
	if _, err := store.Matches(ctx, "b", "k", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected matches hook error, got %v", err)
	}
	if store.Calls() != 3 || store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected calls %d driver %s", store.Calls(), store.Driver())
	}
}
