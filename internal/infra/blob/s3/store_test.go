package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"

	"cellenics/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store, _ := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "originals", "folder/file.txt", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain", Metadata: map[string]string{"owner": "e1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Bucket != "originals" || info.Key != "folder/file.txt" || info.ContentType != "text/plain" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.Metadata["owner"] != "e1" {
		t.Fatalf("metadata lost: %#v", info.Metadata)
	}
	if _, err := store.Put(ctx, "originals", "folder/file.txt", bytes.NewReader([]byte("ignored")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	_, rc, err := store.Get(ctx, "originals", "folder/file.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "originals", "folder/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if list[0].ETag != info.ETag || list[0].Bucket != "originals" {
		t.Fatalf("list entry %+v does not match head %+v", list[0], info)
	}
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
}

func TestStore_NotFoundMapping(t *testing.T) {
	store, _ := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "b", "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "b", "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found from get, got %v", err)
	}
	if _, err := store.Copy(ctx, "b", "nope", "c", "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found from copy, got %v", err)
	}
}

func TestStore_MatchesUsesConditionalHead(t *testing.T) {
	store, mock := NewMockForTests()
	ctx := context.Background()
	mock.Put("src", "e1/r.h5", []byte("payload"))
	mock.Put("dst", "ns-e1/r.h5", []byte("payload"))
	mock.Put("dst", "ns-e1/other.h5", []byte("different"))
	src, err := store.Head(ctx, "src", "e1/r.h5")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	cases := []struct {
		key  string
		etag string
		want bool
	}{
		{"ns-e1/r.h5", src.ETag, true},
		{"ns-e1/other.h5", src.ETag, false},
		{"ns-e1/missing.h5", src.ETag, false},
		{"ns-e1/r.h5", "", false},
	}
	for _, tc := range cases {
		got, err := store.Matches(ctx, "dst", tc.key, tc.etag)
		if err != nil {
			t.Fatalf("matches %s: %v", tc.key, err)
		}
		if got != tc.want {
			t.Fatalf("matches %s = %v, want %v", tc.key, got, tc.want)
		}
	}
	mock.Fail["head"] = true
	if _, err := store.Matches(ctx, "dst", "ns-e1/r.h5", src.ETag); err == nil {
		t.Fatalf("expected transport error to surface")
	}
}

func TestStore_CopyIsServerSide(t *testing.T) {
	store, mock := NewMockForTests()
	ctx := context.Background()
	mock.Put("src", "e1/file with space.h5", []byte("payload"))
	info, err := store.Copy(ctx, "src", "e1/file with space.h5", "dst", "ns-e1/file with space.h5")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if info.Bucket != "dst" || info.Key != "ns-e1/file with space.h5" || info.ETag == "" {
		t.Fatalf("unexpected copy info %+v", info)
	}
	body, ok := mock.Object("dst", "ns-e1/file with space.h5")
	if !ok || string(body) != "payload" {
		t.Fatalf("copied object missing: %q %v", body, ok)
	}
	if mock.Calls("copy") != 1 || mock.Calls("get") != 0 {
		t.Fatalf("expected one server-side copy and no download, got copy=%d get=%d", mock.Calls("copy"), mock.Calls("get"))
	}
}

func TestStore_ListPaginates(t *testing.T) {
	store, mock := NewMockForTests()
	mock.SetListPageSize(2)
	for i := 0; i < 5; i++ {
		mock.Put("b", fmt.Sprintf("e1/%d", i), []byte("x"))
	}
	mock.Put("b", "e2/0", []byte("x"))
	list, err := store.List(context.Background(), "b", "e1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 keys, got %d", len(list))
	}
	if mock.Calls("list") != 3 {
		t.Fatalf("expected 3 list pages, got %d", mock.Calls("list"))
	}
	if empty, err := store.List(context.Background(), "b", "none/"); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, empty)
	}
	mock.Fail["list"] = true
	if _, err := store.List(context.Background(), "b", ""); err == nil {
		t.Fatalf("expected list failure")
	}
}

func TestStore_New(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := New(context.Background(), Config{Region: "us-east-1", Endpoint: "https://mock.s3.local", PathStyle: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
	if _, err := New(context.Background(), Config{AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}); err != nil {
		t.Fatalf("New with static credentials: %v", err)
	}
}

func TestStore_OpenFromEnv_Minimal(t *testing.T) {
	t.Setenv("CELLENICS_REGION", "us-east-1")
	t.Setenv("CELLENICS_BLOB_S3_PATH_STYLE", "true")
	if _, err := OpenFromEnv(context.Background()); err != nil {
		t.Fatalf("OpenFromEnv: %v", err)
	}
}

func TestFromHeadNilBranches(t *testing.T) {
	info := fromHead("b", "k", 10, nil, aws.String("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Bucket != "b" || info.Size != 10 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestCopySourceEscapesSegments(t *testing.T) {
	if got := copySource("b", "e1/a b/c.h5"); got != "b/e1/a%20b/c.h5" {
		t.Fatalf("unexpected copy source %q", got)
	}
}

func TestDecodeChunkedHelper(t *testing.T) {
	if _, ok := decodeChunkedLite([]byte("not-chunked")); ok {
		t.Fatalf("expected fail 1")
	}
	if _, ok := decodeChunkedLite([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunkedLite([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}

func TestMockUnsupportedMethod(t *testing.T) {
	_, mock := NewMockForTests()
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := mock.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
