// Package dynamodb implements the table Store on AWS DynamoDB.
package dynamodb

import (
	"cellenics/internal/table/core"
	"context"
	"fmt"
	"os"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// maxBatch is the DynamoDB BatchWriteItem request limit.
	maxBatch         = 25
	defaultRetries   = 8
	defaultBackoff   = 50 * time.Millisecond
	defaultScanLimit = 0
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Store implements core.Store using DynamoDB.
type Store struct {
	client     API
	resolve    core.KeyResolver
	scanLimit  int32
	maxRetries int
	backoff    time.Duration
}

// Config holds explicit construction parameters. Credentials fall back to the
// default chain when AccessKeyID is empty.
type Config struct {
	Region          string
	Endpoint        string // optional; e.g. DynamoDB Local
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// ScanLimit caps items per scan page; zero leaves it to the service (1 MB pages).
	ScanLimit int32
}

// Environment variables:
//   CELLENICS_REGION=<region> (default eu-west-1)
//   CELLENICS_TABLE_DYNAMODB_ENDPOINT=<url> (optional)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates a DynamoDB table store.
func New(ctx context.Context, cfg Config, resolve core.KeyResolver) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "eu-west-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	s := NewWithClient(client, resolve)
	s.scanLimit = cfg.ScanLimit
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, resolve core.KeyResolver) *Store {
	return &Store{client: client, resolve: resolve, scanLimit: defaultScanLimit, maxRetries: defaultRetries, backoff: defaultBackoff}
}

// OpenFromEnv constructs a store from process environment.
func OpenFromEnv(ctx context.Context, resolve core.KeyResolver) (*Store, error) {
	return New(ctx, Config{
		Region:   os.Getenv("CELLENICS_REGION"),
		Endpoint: os.Getenv("CELLENICS_TABLE_DYNAMODB_ENDPOINT"),
	}, resolve)
}

func (s *Store) Driver() core.Driver { return core.DriverDynamoDB }

func (s *Store) keyItem(table string, key core.Record) (map[string]types.AttributeValue, error) {
	ks, err := s.resolve(table)
	if err != nil {
		return nil, err
	}
	if _, _, err := ks.KeyOf(key); err != nil {
		return nil, err
	}
	out := core.Record{ks.Partition: key[ks.Partition]}
	if ks.Sort != "" {
		out[ks.Sort] = key[ks.Sort]
	}
	return toItem(out)
}

func (s *Store) GetItem(ctx context.Context, table string, key core.Record) (core.Record, bool, error) {
	item, err := s.keyItem(table, key)
	if err != nil {
		return nil, false, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(table), Key: item})
	if err != nil {
		return nil, false, fmt.Errorf("get item from %s: %w", table, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	rec, err := fromItem(out.Item)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Query reads every page of a partition key query.
func (s *Store) Query(ctx context.Context, table, field string, value any) ([]core.Record, error) {
	ks, err := s.resolve(table)
	if err != nil {
		return nil, err
	}
	if field != ks.Partition {
		return nil, fmt.Errorf("query %s on %q: %w", table, field, core.ErrUnsupported)
	}
	av, err := toAttribute(value)
	if err != nil {
		return nil, err
	}
	p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": field},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": av},
	})
	var out []core.Record
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		for _, item := range page.Items {
			rec, err := fromItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// ScanSegment issues one native parallel-scan page request.
func (s *Store) ScanSegment(ctx context.Context, table string, segment, total int, cursor string) (core.Page, error) {
	if err := core.CheckSegment(segment, total); err != nil {
		return core.Page{}, err
	}
	start, err := decodeCursor(cursor)
	if err != nil {
		return core.Page{}, err
	}
	in := &dynamodb.ScanInput{
		TableName:         aws.String(table),
		Segment:           aws.Int32(int32(segment)),
		TotalSegments:     aws.Int32(int32(total)),
		ExclusiveStartKey: start,
	}
	if s.scanLimit > 0 {
		in.Limit = aws.Int32(s.scanLimit)
	}
	out, err := s.client.Scan(ctx, in)
	if err != nil {
		return core.Page{}, fmt.Errorf("scan %s segment %d: %w", table, segment, err)
	}
	page := core.Page{Records: make([]core.Record, 0, len(out.Items))}
	for _, item := range out.Items {
		rec, err := fromItem(item)
		if err != nil {
			return core.Page{}, err
		}
		page.Records = append(page.Records, rec)
	}
	if page.Next, err = encodeCursor(out.LastEvaluatedKey); err != nil {
		return core.Page{}, err
	}
	return page, nil
}

// BatchWrite puts records in chunks of 25, retrying unprocessed items with
// exponential backoff. Duplicate keys within a call keep the last record.
func (s *Store) BatchWrite(ctx context.Context, table string, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	ks, err := s.resolve(table)
	if err != nil {
		return err
	}
	index := map[string]int{}
	var reqs []types.WriteRequest
	for i, rec := range records {
		pk, sk, err := ks.KeyOf(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		item, err := toItem(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		req := types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
		k := pk + "\x00" + sk
		if at, dup := index[k]; dup {
			reqs[at] = req
			continue
		}
		index[k] = len(reqs)
		reqs = append(reqs, req)
	}
	for lo := 0; lo < len(reqs); lo += maxBatch {
		hi := min(lo+maxBatch, len(reqs))
		if err := s.writeChunk(ctx, table, reqs[lo:hi]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeChunk(ctx context.Context, table string, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{table: reqs}
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write %s: %w", table, err)
		}
		if len(out.UnprocessedItems[table]) == 0 {
			return nil
		}
		if attempt >= s.maxRetries {
			return fmt.Errorf("batch write %s: %d items unprocessed after %d attempts", table, len(out.UnprocessedItems[table]), attempt+1)
		}
		pending = out.UnprocessedItems
		wait := s.backoff << attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
