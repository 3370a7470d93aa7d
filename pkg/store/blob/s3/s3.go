// Package s3 implements S3-based blob storage for DittoBox.
//
// Object keys are the blob refs with an optional prefix, so the bucket
// mirrors the "<owner>/<uuid>-<name>" layout and stays human-inspectable.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/store/blob"
)

const (
	minPartSize     = 5 * 1024 * 1024
	maxPartSize     = 5 * 1024 * 1024 * 1024
	defaultPartSize = 10 * 1024 * 1024
	abortTimeout    = 30 * time.Second

	// maxCopyObjectSize is the largest object a single CopyObject accepts.
	maxCopyObjectSize   = 5 * 1024 * 1024 * 1024
	defaultCopyPartSize = 512 * 1024 * 1024
)

// S3BlobStore implements blob.BlobStore using Amazon S3 or an S3 compatible
// service (MinIO, Localstack, Cubbit DS3).
//
// Implemented Interfaces:
//   - blob.BlobStore
//   - blob.Copier (server-side CopyObject, UploadPartCopy above 5GB)
//   - blob.Lister (ListObjectsV2 pagination)
//   - blob.BatchDeleter (DeleteObjects, 1000 keys per request)
//
// Upload Strategy:
// Put buffers at most one part in memory. Streams that end before PartSize
// are sent with a single PutObject; longer streams switch to a multipart
// upload that is aborted on any failure, so a partial object never becomes
// visible.
//
// Thread Safety:
// Safe for concurrent use. Refs are unique per upload, so concurrent writers
// never race on a key.
type S3BlobStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	partSize  int64
	metrics   S3Metrics

	// Objects above copyThreshold are copied part by part with
	// UploadPartCopy, copyPartSize bytes at a time.
	copyThreshold int64
	copyPartSize  int64
}

// S3BlobStoreConfig contains configuration for the S3 blob store.
type S3BlobStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "dittobox/" results in keys like "dittobox/alice/<uuid>-a.txt"
	KeyPrefix string

	// PartSize is the multipart part size (default 10MB, between 5MB and 5GB)
	PartSize int64

	// Metrics is optional; nil disables S3 metrics.
	Metrics S3Metrics
}

// NewS3BlobStore creates a new S3-based blob store and verifies bucket access.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3BlobStore: Initialized store
//   - error: If the configuration is invalid or the bucket is unreachable
func NewS3BlobStore(ctx context.Context, cfg S3BlobStoreConfig) (*S3BlobStore, error) {
	// ========================================================================
	// Step 1: Validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = defaultPartSize
	}
	if partSize < minPartSize {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > maxPartSize {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	store := &S3BlobStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		partSize:  partSize,
		metrics:   metrics,

		copyThreshold: maxCopyObjectSize,
		copyPartSize:  defaultCopyPartSize,
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	if err := store.Healthcheck(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// S3ClientConfig holds the connection settings used by NewS3ClientFromConfig.
type S3ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
	ForcePathStyle  bool
}

// NewS3ClientFromConfig builds an S3 client from static settings.
//
// A custom Endpoint enables S3 compatible services and implies path-style
// addressing. Static credentials are used when both keys are set; otherwise
// the default AWS credential chain applies.
func NewS3ClientFromConfig(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	var opts []func(*awsConfig.LoadOptions) error

	opts = append(opts, awsConfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	opts = append(opts, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// getObjectKey returns the full object key for ref.
func (s *S3BlobStore) getObjectKey(ref blob.Ref) string {
	return s.keyPrefix + string(ref)
}

// refFromKey strips the key prefix. ok is false for keys outside the prefix.
func (s *S3BlobStore) refFromKey(key string) (blob.Ref, bool) {
	if !strings.HasPrefix(key, s.keyPrefix) {
		return "", false
	}
	ref := blob.Ref(strings.TrimPrefix(key, s.keyPrefix))
	if blob.ValidateRef(ref) != nil {
		return "", false
	}
	return ref, true
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

// ============================================================================
// BlobStore Interface Implementation
// ============================================================================

// Put uploads r under ref. See S3BlobStore for the upload strategy.
func (s *S3BlobStore) Put(ctx context.Context, ref blob.Ref, r io.Reader) (n int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return 0, err
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("Put", time.Since(start), err)
		if err == nil {
			s.metrics.RecordBytes("write", n)
		}
	}()

	first, eof, err := readPart(r, s.partSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}

	if eof {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.getObjectKey(ref)),
			Body:          bytes.NewReader(first),
			ContentLength: aws.Int64(int64(len(first))),
		})
		if err != nil {
			return 0, fmt.Errorf("failed to write blob %s to S3: %w", ref, err)
		}
		return int64(len(first)), nil
	}

	return s.putMultipart(ctx, ref, first, r)
}

// putMultipart uploads first and the rest of r as sequential parts.
func (s *S3BlobStore) putMultipart(ctx context.Context, ref blob.Ref, first []byte, r io.Reader) (int64, error) {
	key := s.getObjectKey(ref)

	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create multipart upload for %s: %w", ref, err)
	}
	uploadID := created.UploadId

	abort := func() {
		abortCtx, cancel := context.WithTimeout(context.Background(), abortTimeout)
		defer cancel()
		if _, err := s.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		}); err != nil {
			logger.Warn("s3 blob store: failed to abort multipart upload %s for %s: %v", aws.ToString(uploadID), ref, err)
		}
	}

	var (
		parts []types.CompletedPart
		total int64
		part  = first
		eof   bool
	)

	for partNum := int32(1); ; partNum++ {
		if err := ctx.Err(); err != nil {
			abort()
			return 0, err
		}

		out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNum),
			Body:          bytes.NewReader(part),
			ContentLength: aws.Int64(int64(len(part))),
		})
		if err != nil {
			abort()
			return 0, fmt.Errorf("failed to upload part %d of %s: %w", partNum, ref, err)
		}

		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNum)})
		total += int64(len(part))

		if eof {
			break
		}

		part, eof, err = readPart(r, s.partSize)
		if err != nil {
			abort()
			return 0, fmt.Errorf("failed to read blob %s: %w", ref, err)
		}
		if len(part) == 0 {
			break
		}
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		abort()
		return 0, fmt.Errorf("failed to complete multipart upload for %s: %w", ref, err)
	}

	return total, nil
}

// readPart reads up to size bytes. eof reports that r is exhausted.
func readPart(r io.Reader, size int64) ([]byte, bool, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, size); err != nil {
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), true, nil
		}
		return nil, false, err
	}
	return buf.Bytes(), false, nil
}

// copySource builds the URL-encoded "bucket/key" CopyObject expects.
func (s *S3BlobStore) copySource(ref blob.Ref) string {
	segments := strings.Split(s.getObjectKey(ref), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.bucket + "/" + strings.Join(segments, "/")
}

func (s *S3BlobStore) Get(ctx context.Context, ref blob.Ref) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(ref)),
	})
	s.metrics.ObserveOperation("Get", time.Since(start), err)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", ref, blob.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("failed to read blob %s from S3: %w", ref, err)
	}

	return &metricsReadCloser{ReadCloser: out.Body, metrics: s.metrics, operation: "read"}, nil
}

// Delete removes the object. S3 reports success for absent keys.
func (s *S3BlobStore) Delete(ctx context.Context, ref blob.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(ref)),
	})
	s.metrics.ObserveOperation("Delete", time.Since(start), err)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete blob %s from S3: %w", ref, err)
	}
	return nil
}

func (s *S3BlobStore) Exists(ctx context.Context, ref blob.Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return false, err
	}

	start := time.Now()
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(ref)),
	})
	s.metrics.ObserveOperation("Head", time.Since(start), err)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat blob %s in S3: %w", ref, err)
	}
	return true, nil
}

// List returns every object under the key prefix.
func (s *S3BlobStore) List(ctx context.Context) ([]blob.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []blob.BlobInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			ref, ok := s.refFromKey(aws.ToString(obj.Key))
			if !ok {
				continue
			}
			infos = append(infos, blob.BlobInfo{
				Ref:     ref,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Ref < infos[j].Ref })
	return infos, nil
}

// Healthcheck verifies the bucket is reachable with HeadBucket.
func (s *S3BlobStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("failed to access bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *S3BlobStore) Close() error {
	return nil
}
