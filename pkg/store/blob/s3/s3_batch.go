package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittobox/pkg/store/blob"
)

// maxDeleteObjects is the S3 limit of keys per DeleteObjects request.
const maxDeleteObjects = 1000

// DeleteBatch removes refs with DeleteObjects, chunked to the S3 limit.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - refs: Blobs to delete
//
// Returns:
//   - map[blob.Ref]error: Failed deletions (empty = all succeeded)
//   - error: Context cancellation only
func (s *S3BlobStore) DeleteBatch(ctx context.Context, refs []blob.Ref) (map[blob.Ref]error, error) {
	failures := make(map[blob.Ref]error)

	for i := 0; i < len(refs); i += maxDeleteObjects {
		if err := ctx.Err(); err != nil {
			for _, ref := range refs[i:] {
				failures[ref] = err
			}
			return failures, err
		}

		end := min(i+maxDeleteObjects, len(refs))
		batch := refs[i:end]

		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, ref := range batch {
			if err := blob.ValidateRef(ref); err != nil {
				failures[ref] = err
				continue
			}
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(s.getObjectKey(ref))})
		}
		if len(objects) == 0 {
			continue
		}

		start := time.Now()
		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		s.metrics.ObserveOperation("DeleteBatch", time.Since(start), err)
		if err != nil {
			for _, ref := range batch {
				if _, failed := failures[ref]; !failed {
					failures[ref] = fmt.Errorf("failed to delete blob %s from S3: %w", ref, err)
				}
			}
			continue
		}

		for _, deleteErr := range result.Errors {
			ref, ok := s.refFromKey(aws.ToString(deleteErr.Key))
			if !ok {
				continue
			}
			failures[ref] = fmt.Errorf("%s: %s", aws.ToString(deleteErr.Code), aws.ToString(deleteErr.Message))
		}
	}

	return failures, nil
}
