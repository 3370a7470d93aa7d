package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/store/blob"
)

// Copy duplicates src into dst without moving the bytes through DittoBox.
//
// Objects up to 5GB use a single CopyObject. Larger objects exceed that
// call's limit and are copied as a multipart upload of UploadPartCopy ranges,
// aborted on any failure.
func (s *S3BlobStore) Copy(ctx context.Context, src, dst blob.Ref) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateRef(src); err != nil {
		return err
	}
	if err := blob.ValidateRef(dst); err != nil {
		return err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveOperation("Copy", time.Since(start), err) }()

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(src)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("copy %s: %w", src, blob.ErrBlobNotFound)
		}
		return fmt.Errorf("failed to stat blob %s in S3: %w", src, err)
	}

	size := aws.ToInt64(head.ContentLength)
	if size > s.copyThreshold {
		return s.copyMultipart(ctx, src, dst, size)
	}

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.getObjectKey(dst)),
		CopySource: aws.String(s.copySource(src)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("copy %s: %w", src, blob.ErrBlobNotFound)
		}
		return fmt.Errorf("failed to copy blob %s to %s: %w", src, dst, err)
	}
	return nil
}

// copyMultipart copies a size-byte object range by range.
func (s *S3BlobStore) copyMultipart(ctx context.Context, src, dst blob.Ref, size int64) error {
	key := s.getObjectKey(dst)

	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to create multipart copy for %s: %w", dst, err)
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
			logger.Warn("s3 blob store: failed to abort multipart copy %s for %s: %v", aws.ToString(uploadID), dst, err)
		}
	}

	ranges := copyRanges(size, s.copyPartSize)
	parts := make([]types.CompletedPart, 0, len(ranges))
	for i, byteRange := range ranges {
		if err := ctx.Err(); err != nil {
			abort()
			return err
		}

		partNum := int32(i + 1)
		out, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(key),
			UploadId:        uploadID,
			PartNumber:      aws.Int32(partNum),
			CopySource:      aws.String(s.copySource(src)),
			CopySourceRange: aws.String(byteRange),
		})
		if err != nil {
			abort()
			if isNotFound(err) {
				return fmt.Errorf("copy %s: %w", src, blob.ErrBlobNotFound)
			}
			return fmt.Errorf("failed to copy part %d of %s: %w", partNum, src, err)
		}

		var etag *string
		if out.CopyPartResult != nil {
			etag = out.CopyPartResult.ETag
		}
		parts = append(parts, types.CompletedPart{ETag: etag, PartNumber: aws.Int32(partNum)})
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		abort()
		return fmt.Errorf("failed to complete multipart copy for %s: %w", dst, err)
	}
	return nil
}

// copyRanges splits size bytes into inclusive "bytes=first-last" ranges of
// at most partSize bytes.
func copyRanges(size, partSize int64) []string {
	var ranges []string
	for first := int64(0); first < size; first += partSize {
		last := min(first+partSize, size) - 1
		ranges = append(ranges, fmt.Sprintf("bytes=%d-%d", first, last))
	}
	return ranges
}
