package dynamodb

import (
	"bytes"
	"cellenics/internal/table/core"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Mock is an in-memory fake of the DynamoDB JSON protocol. It serves GetItem,
// Query, Scan and BatchWriteItem.
type Mock struct {
	mu       sync.Mutex
	resolve  core.KeyResolver
	tables   map[string]map[string]core.Record
	pageSize int
	calls    map[string]int
	// Unprocessed bounces this many items of the next BatchWriteItem call.
	Unprocessed int
	// Fail makes the named operation answer with a validation error.
	Fail map[string]bool
}

// NewMockForTests returns a Store whose client talks to an in-memory fake
// transport, and the fake itself for seeding and inspection.
func NewMockForTests(resolve core.KeyResolver) (*Store, *Mock) {
	m := &Mock{resolve: resolve, tables: map[string]map[string]core.Record{}, pageSize: 10, calls: map[string]int{}, Fail: map[string]bool{}}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("eu-west-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.HTTPClient = &http.Client{Transport: m}
		o.BaseEndpoint = aws.String("https://mock.dynamodb.local")
		o.DisableValidateResponseChecksum = true
	})
	s := NewWithClient(client, resolve)
	s.backoff = 0
	return s, m
}

// SetPageSize sets the default number of items per scan page.
func (m *Mock) SetPageSize(n int) {
	m.mu.Lock()
	m.pageSize = n
	m.mu.Unlock()
}

// Put seeds a record.
func (m *Mock) Put(table string, rec core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(table, rec)
}

// Len returns the number of items stored in table.
func (m *Mock) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// Calls returns how many requests hit op.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Mock) put(table string, rec core.Record) error {
	ks, err := m.resolve(table)
	if err != nil {
		return err
	}
	pk, sk, err := ks.KeyOf(rec)
	if err != nil {
		return err
	}
	t, ok := m.tables[table]
	if !ok {
		t = map[string]core.Record{}
		m.tables[table] = t
	}
	t[pk+"\x00"+sk] = rec.Clone()
	return nil
}

type item = map[string]core.AttributeValue

type mockRequest struct {
	TableName                 string
	Key                       item
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues item
	ExclusiveStartKey         item
	Segment                   int
	TotalSegments             int
	Limit                     int
	RequestItems              map[string][]struct {
		PutRequest *struct{ Item item }
	}
}

// RoundTrip implements http.RoundTripper.
func (m *Mock) RoundTrip(req *http.Request) (*http.Response, error) {
	op := strings.TrimPrefix(req.Header.Get("X-Amz-Target"), "DynamoDB_20120810.")
	var in mockRequest
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return fail(fmt.Sprintf("decode: %v", err)), nil
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if m.Fail[op] {
		return fail("injected failure"), nil
	}
	var (
		out any
		err error
	)
	switch op {
	case "GetItem":
		out, err = m.getItem(in)
	case "Query":
		out, err = m.query(in)
	case "Scan":
		out, err = m.scan(in)
	case "BatchWriteItem":
		out, err = m.batchWrite(in)
	default:
		err = fmt.Errorf("unsupported operation %q", op)
	}
	if err != nil {
		return fail(err.Error()), nil
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/x-amz-json-1.0"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func fail(msg string) *http.Response {
	body, _ := json.Marshal(map[string]string{
		"__type":  "com.amazonaws.dynamodb.v20120810#ValidationException",
		"message": msg,
	})
	return &http.Response{
		StatusCode: http.StatusBadRequest,
		Header:     http.Header{"Content-Type": {"application/x-amz-json-1.0"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func (m *Mock) sorted(table string) ([]string, core.KeySchema, error) {
	ks, err := m.resolve(table)
	if err != nil {
		return nil, ks, err
	}
	keys := make([]string, 0, len(m.tables[table]))
	for k := range m.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, ks, nil
}

func (m *Mock) getItem(in mockRequest) (any, error) {
	key, err := core.DecodeRecord(in.Key)
	if err != nil {
		return nil, err
	}
	ks, err := m.resolve(in.TableName)
	if err != nil {
		return nil, err
	}
	pk, sk, err := ks.KeyOf(key)
	if err != nil {
		return nil, err
	}
	rec, ok := m.tables[in.TableName][pk+"\x00"+sk]
	if !ok {
		return map[string]any{}, nil
	}
	enc, err := core.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return map[string]any{"Item": enc}, nil
}

func (m *Mock) query(in mockRequest) (any, error) {
	field := in.ExpressionAttributeNames["#pk"]
	want, err := in.ExpressionAttributeValues[":pk"].Decode()
	if err != nil {
		return nil, err
	}
	wantKey, err := core.KeyString(want)
	if err != nil {
		return nil, err
	}
	keys, _, err := m.sorted(in.TableName)
	if err != nil {
		return nil, err
	}
	items := []item{}
	for _, k := range keys {
		rec := m.tables[in.TableName][k]
		if got, err := core.KeyString(rec[field]); err == nil && got == wantKey {
			enc, err := core.EncodeRecord(rec)
			if err != nil {
				return nil, err
			}
			items = append(items, enc)
		}
	}
	return map[string]any{"Items": items, "Count": len(items)}, nil
}

func (m *Mock) scan(in mockRequest) (any, error) {
	keys, ks, err := m.sorted(in.TableName)
	if err != nil {
		return nil, err
	}
	total := in.TotalSegments
	if total == 0 {
		total = 1
	}
	var after string
	if len(in.ExclusiveStartKey) > 0 {
		start, err := core.DecodeRecord(in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		pk, sk, err := ks.KeyOf(start)
		if err != nil {
			return nil, err
		}
		after = pk + "\x00" + sk
	}
	limit := in.Limit
	if limit == 0 {
		limit = m.pageSize
	}
	items := []item{}
	var last core.Record
	more := false
	for _, k := range keys {
		if after != "" && k <= after {
			continue
		}
		rec := m.tables[in.TableName][k]
		pk, _, _ := ks.KeyOf(rec)
		if core.SegmentOf(pk, total) != in.Segment {
			continue
		}
		if len(items) == limit {
			more = true
			break
		}
		enc, err := core.EncodeRecord(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, enc)
		last = rec
	}
	out := map[string]any{"Items": items, "Count": len(items)}
	if more {
		key := core.Record{ks.Partition: last[ks.Partition]}
		if ks.Sort != "" {
			key[ks.Sort] = last[ks.Sort]
		}
		enc, err := core.EncodeRecord(key)
		if err != nil {
			return nil, err
		}
		out["LastEvaluatedKey"] = enc
	}
	return out, nil
}

func (m *Mock) batchWrite(in mockRequest) (any, error) {
	unprocessed := map[string][]any{}
	for table, reqs := range in.RequestItems {
		if len(reqs) > maxBatch {
			return nil, fmt.Errorf("too many items in batch: %d", len(reqs))
		}
		for _, r := range reqs {
			if r.PutRequest == nil {
				return nil, fmt.Errorf("only put requests are supported")
			}
			if m.Unprocessed > 0 {
				m.Unprocessed--
				unprocessed[table] = append(unprocessed[table], map[string]any{"PutRequest": map[string]any{"Item": r.PutRequest.Item}})
				continue
			}
			rec, err := core.DecodeRecord(r.PutRequest.Item)
			if err != nil {
				return nil, err
			}
			if err := m.put(table, rec); err != nil {
				return nil, err
			}
		}
	}
	return map[string]any{"UnprocessedItems": unprocessed}, nil
}
