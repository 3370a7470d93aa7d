package testing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	return context.Background()
}

// newRef derives a unique ref for a test blob.
func newRef(t *testing.T, name string) blob.Ref {
	t.Helper()
	ref, err := blob.NewRef("tester", name)
	require.NoError(t, err)
	return ref
}

// generateTestData returns size bytes of a repeating pattern.
func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func mustPut(t *testing.T, store blob.BlobStore, ref blob.Ref, data []byte) {
	t.Helper()
	n, err := store.Put(testContext(), ref, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)
}

func mustGet(t *testing.T, store blob.BlobStore, ref blob.Ref) []byte {
	t.Helper()
	r, err := store.Get(testContext(), ref)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func assertExists(t *testing.T, store blob.BlobStore, ref blob.Ref, want bool) {
	t.Helper()
	ok, err := store.Exists(testContext(), ref)
	require.NoError(t, err)
	require.Equal(t, want, ok, "Exists(%s)", ref)
}

// failingReader yields some data and then fails, simulating a client that
// disconnects mid-upload.
type failingReader struct {
	data []byte
	read bool
}

var errStreamBroken = errors.New("stream broken")

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, errStreamBroken
}
