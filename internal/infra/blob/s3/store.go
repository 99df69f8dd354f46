package s3

import (
	"cellenics/internal/blob/core"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store implements core.Store using an S3-compatible backend (AWS S3 or MinIO).
// Buckets map to S3 buckets and keys to object keys directly.
type Store struct {
	client *s3.Client
}

// Config holds explicit construction parameters. For prod we rely primarily
// on environment variables and the default credentials chain.
type Config struct {
	Region          string
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
}

// Environment variables:
//   CELLENICS_BLOB_DRIVER=s3
//   CELLENICS_REGION=<region> (default eu-west-1)
//   CELLENICS_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//   CELLENICS_BLOB_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 blob store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
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
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client}, nil
}

// OpenFromEnv constructs an S3 store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg := Config{
		Region:    os.Getenv("CELLENICS_REGION"),
		Endpoint:  os.Getenv("CELLENICS_BLOB_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("CELLENICS_BLOB_S3_PATH_STYLE"), "true"),
	}
	return New(ctx, cfg)
}

func (s *Store) Driver() core.Driver { return core.DriverS3 }

// statusOf extracts the HTTP status of a failed S3 call, or 0.
func statusOf(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

func notFound(bucket, key string, err error) error {
	if statusOf(err) == http.StatusNotFound {
		return fmt.Errorf("blob %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	return err
}

func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	input := &s3.PutObjectInput{Bucket: &bucket, Key: &key, Body: r}
	if opts.ContentType != "" {
		input.ContentType = &opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	// Emulate create-only via Head first.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err == nil {
		return core.Info{}, fmt.Errorf("blob %s/%s already exists", bucket, key)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Info{}, err
	}
	return s.Head(ctx, bucket, key)
}

func (s *Store) Get(ctx context.Context, bucket, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return core.Info{}, nil, notFound(bucket, key, err)
	}
	info := fromHead(bucket, key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified)
	return info, out.Body, nil
}

func (s *Store) Head(ctx context.Context, bucket, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return core.Info{}, notFound(bucket, key, err)
	}
	return fromHead(bucket, key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Matches issues a conditional HEAD with If-Match. A 404 or 412 answer means
// the target is absent or differs.
func (s *Store) Matches(ctx context.Context, bucket, key, etag string) (bool, error) {
	if etag == "" {
		return false, nil
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key, IfMatch: aws.String(quote(etag))})
	switch status := statusOf(err); {
	case err == nil:
		return true, nil
	case status == http.StatusNotFound, status == http.StatusPreconditionFailed:
		return false, nil
	default:
		return false, err
	}
}

// Copy performs a server-side CopyObject. The returned Info carries no size.
// TODO: switch to UploadPartCopy for sources over the 5 GiB CopyObject limit.
func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (core.Info, error) {
	out, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &dstBucket,
		Key:        &dstKey,
		CopySource: aws.String(copySource(srcBucket, srcKey)),
	})
	if err != nil {
		return core.Info{}, notFound(srcBucket, srcKey, err)
	}
	info := core.Info{Bucket: dstBucket, Key: dstKey, LastModified: time.Now().UTC()}
	if res := out.CopyObjectResult; res != nil {
		info.ETag = strings.Trim(aws.ToString(res.ETag), "\"")
		if res.LastModified != nil {
			info.LastModified = *res.LastModified
		}
	}
	return info, nil
}

func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]core.Info, error) {
	var infos []core.Info
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: &bucket, Prefix: &prefix})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			infos = append(infos, core.Info{
				Bucket:       bucket,
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

func quote(etag string) string { return "\"" + strings.Trim(etag, "\"") + "\"" }

func fromHead(bucket, key string, size int64, contentType *string, etag *string, md map[string]string, lastModified *time.Time) core.Info {
	var ct, et string
	if contentType != nil {
		ct = *contentType
	}
	if etag != nil {
		et = strings.Trim(*etag, "\"")
	}
	lm := time.Now().UTC()
	if lastModified != nil {
		lm = *lastModified
	}
	return core.Info{Bucket: bucket, Key: key, Size: size, ContentType: ct, ETag: et, Metadata: md, LastModified: lm}
}
