package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are buffered for content-type detection.
const sniffLen = 3072

var errUploadTooLarge = errors.New("upload exceeds maximum size")

// uploadStream wraps an upload body. It enforces the size limit, hashes the
// bytes as they flow to the blob store, and sniffs the content type from the
// first bytes.
type uploadStream struct {
	r           io.Reader
	hash        hash.Hash
	remaining   int64
	contentType string
}

func newUploadStream(r io.Reader, maxSize int64) (*uploadStream, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	header = header[:n]

	s := &uploadStream{
		hash:        sha256.New(),
		remaining:   maxSize,
		contentType: mimetype.Detect(header).String(),
	}
	s.r = io.TeeReader(io.MultiReader(bytes.NewReader(header), r), s.hash)
	return s, nil
}

func (s *uploadStream) Read(p []byte) (int, error) {
	if int64(len(p)) > s.remaining+1 {
		p = p[:s.remaining+1]
	}
	n, err := s.r.Read(p)
	s.remaining -= int64(n)
	if s.remaining < 0 {
		return n, errUploadTooLarge
	}
	return n, err
}

// Checksum returns the hex SHA-256 of everything read so far.
func (s *uploadStream) Checksum() string {
	return hex.EncodeToString(s.hash.Sum(nil))
}

func (s *uploadStream) ContentType() string {
	return s.contentType
}
