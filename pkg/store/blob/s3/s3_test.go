package s3

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3BlobStore_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3BlobStore(ctx, S3BlobStoreConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewS3BlobStore(ctx, S3BlobStoreConfig{})
	assert.Error(t, err)
}

func TestReadPart(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10)

	part, eof, err := readPart(bytes.NewReader(data), 4)
	require.NoError(t, err)
	assert.False(t, eof)
	assert.Len(t, part, 4)

	part, eof, err = readPart(bytes.NewReader(data), 20)
	require.NoError(t, err)
	assert.True(t, eof)
	assert.Len(t, part, 10)
}

func TestKeyMapping(t *testing.T) {
	s := &S3BlobStore{bucket: "bucket", keyPrefix: "dittobox/"}

	assert.Equal(t, "dittobox/alice/x-a.txt", s.getObjectKey("alice/x-a.txt"))

	ref, ok := s.refFromKey("dittobox/alice/x-a.txt")
	assert.True(t, ok)
	assert.Equal(t, blob.Ref("alice/x-a.txt"), ref)

	_, ok = s.refFromKey("other/alice/x")
	assert.False(t, ok)

	assert.Equal(t, "bucket/dittobox/alice/x-my%20file.txt", s.copySource("alice/x-my file.txt"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestCopyRanges(t *testing.T) {
	assert.Equal(t, []string{"bytes=0-4", "bytes=5-9", "bytes=10-11"}, copyRanges(12, 5))
	assert.Equal(t, []string{"bytes=0-9"}, copyRanges(10, 10))
	assert.Empty(t, copyRanges(0, 10))

	// 6GB is above the CopyObject limit: twelve 512MB parts.
	ranges := copyRanges(6*1024*1024*1024, defaultCopyPartSize)
	assert.Len(t, ranges, 12)
	assert.Equal(t, "bytes=5905580032-6442450943", ranges[len(ranges)-1])
}
