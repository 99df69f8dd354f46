package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Mock is an in-memory fake of the S3 REST subset used by Store: HEAD (with
// If-Match), GET, PUT, PUT with x-amz-copy-source and ListObjectsV2.
type Mock struct {
	mu       sync.Mutex
	buckets  map[string]map[string]mockObj
	calls    map[string]int
	listPage int
	// Fail makes the named operation (head, get, put, copy, list) answer 500.
	Fail map[string]bool
}

type mockObj struct {
	body        []byte
	contentType string
	etag        string
	metadata    map[string]string
}

// NewMockForTests returns a Store wired to a fresh Mock transport.
func NewMockForTests() (*Store, *Mock) {
	m := &Mock{buckets: make(map[string]map[string]mockObj), calls: make(map[string]int), listPage: 1000, Fail: map[string]bool{}}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: m}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client}, m
}

// SetListPageSize bounds the number of keys per ListObjectsV2 page.
func (m *Mock) SetListPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.listPage = n
	}
}

// Put seeds an object directly.
func (m *Mock) Put(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(bucket, key, mockObj{body: body})
}

// Object returns the stored body of bucket/key.
func (m *Mock) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	return obj.body, ok
}

// Calls returns how many requests of op (head, get, put, copy, list) were served.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// store must be called with mu held.
func (m *Mock) store(bucket, key string, obj mockObj) {
	sum := md5.Sum(obj.body)
	obj.etag = hex.EncodeToString(sum[:])
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]mockObj)
	}
	m.buckets[bucket][key] = obj
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header, ContentLength: int64(len(body))}
}

func objectHeader(obj mockObj) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"ETag":           {"\"" + obj.etag + "\""},
		"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
	}
	if obj.contentType != "" {
		h.Set("Content-Type", obj.contentType)
	}
	for k, v := range obj.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func (m *Mock) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	bucket, key := parts[0], ""
	if len(parts) == 2 {
		key = parts[1]
	}
	op := strings.ToLower(req.Method)
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		op = "list"
	case req.Method == http.MethodPut && req.Header.Get("X-Amz-Copy-Source") != "":
		op = "copy"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if m.Fail[op] {
		return respond(http.StatusInternalServerError, "<Error><Code>InternalError</Code><Message>injected</Message></Error>", http.Header{"Content-Type": {"application/xml"}}), nil
	}

	switch op {
	case "list":
		return m.list(bucket, req.URL.Query()), nil
	case "copy":
		return m.copyObject(bucket, key, req.Header.Get("X-Amz-Copy-Source")), nil
	case "head":
		obj, ok := m.buckets[bucket][key]
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		if want := req.Header.Get("If-Match"); want != "" && strings.Trim(want, "\"") != obj.etag {
			return respond(http.StatusPreconditionFailed, "", nil), nil
		}
		h := objectHeader(obj)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: h}, nil
	case "get":
		obj, ok := m.buckets[bucket][key]
		if !ok {
			return respond(http.StatusNotFound, "<Error><Code>NoSuchKey</Code></Error>", http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(obj.body)), Header: objectHeader(obj), ContentLength: int64(len(obj.body))}, nil
	case "put":
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunkedLite(body); ok { // handle aws-chunked encoding
			body = dec
		}
		md := map[string]string{}
		for h, v := range req.Header {
			if name, ok := strings.CutPrefix(strings.ToLower(h), "x-amz-meta-"); ok && len(v) > 0 {
				md[name] = v[0]
			}
		}
		m.store(bucket, key, mockObj{body: body, contentType: req.Header.Get("Content-Type"), metadata: md})
		return respond(http.StatusOK, "", http.Header{"ETag": {"\"" + m.buckets[bucket][key].etag + "\""}}), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

// copyObject must be called with mu held.
func (m *Mock) copyObject(dstBucket, dstKey, source string) *http.Response {
	src, err := url.PathUnescape(strings.TrimPrefix(source, "/"))
	if err != nil {
		return respond(http.StatusBadRequest, "", nil)
	}
	parts := strings.SplitN(src, "/", 2)
	if len(parts) != 2 {
		return respond(http.StatusBadRequest, "", nil)
	}
	obj, ok := m.buckets[parts[0]][parts[1]]
	if !ok {
		return respond(http.StatusNotFound, "<Error><Code>NoSuchKey</Code></Error>", http.Header{"Content-Type": {"application/xml"}})
	}
	m.store(dstBucket, dstKey, obj)
	body := fmt.Sprintf("<?xml version=\"1.0\"?><CopyObjectResult><ETag>&quot;%s&quot;</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></CopyObjectResult>", obj.etag)
	return respond(http.StatusOK, body, http.Header{"Content-Type": {"application/xml"}})
}

// list must be called with mu held. Continuation tokens are the last key returned.
func (m *Mock) list(bucket string, q url.Values) *http.Response {
	prefix, after := q.Get("prefix"), q.Get("continuation-token")
	var keys []string
	for k := range m.buckets[bucket] {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	truncated := len(keys) > m.listPage
	if truncated {
		keys = keys[:m.listPage]
	}
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?><ListBucketResult>")
	if truncated {
		b.WriteString("<IsTruncated>true</IsTruncated><NextContinuationToken>")
		b.WriteString(keys[len(keys)-1])
		b.WriteString("</NextContinuationToken>")
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys {
		obj := m.buckets[bucket][k]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;%s&quot;</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(obj.body), obj.etag)
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunkedLite decodes a minimal single-chunk aws-chunked style payload: <hex>\r\n<body>\r\n0\r\n...
func decodeChunkedLite(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	sz, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != sz || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}
