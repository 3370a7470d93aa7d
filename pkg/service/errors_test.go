package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := newError(KindNotFound, "catalog.get", "not found", nil)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("disk full")
	err := newError(KindStorageFailure, "catalog.upload", "storage failure", cause)

	assert.Equal(t, "catalog.upload: storage failure: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "not_found", ErrNotFound.Error())
}

func TestFromStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *Error
	}{
		{"not found", metadata.NewNotFoundError("file"), ErrNotFound},
		{"duplicate username", metadata.NewAlreadyExistsError(metadata.FieldUsername), ErrDuplicateUsername},
		{"duplicate email", metadata.NewAlreadyExistsError(metadata.FieldEmail), ErrDuplicateEmail},
		{"duplicate filename", metadata.NewAlreadyExistsError(metadata.FieldFilename), ErrDuplicateFilename},
		{"invalid argument", metadata.NewInvalidArgumentError("bad"), ErrInvalidInput},
		{"io", metadata.NewIOError("write", errors.New("boom")), ErrStorageFailure},
		{"invalid name", fmt.Errorf("x: %w", blob.ErrInvalidName), ErrInvalidInput},
		{"unknown", errors.New("boom"), ErrStorageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, fromStore("op", tt.err), tt.want)
		})
	}

	assert.NoError(t, fromStore("op", nil))
	assert.Equal(t, context.Canceled, fromStore("op", context.Canceled))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", outcome(nil))
	assert.Equal(t, "cancelled", outcome(context.DeadlineExceeded))
	assert.Equal(t, "forbidden", outcome(ErrForbidden))
	assert.Equal(t, "unknown", outcome(errors.New("x")))
}
