package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	e := New(ErrKindNotFound, "table missing")
	assert.Equal(t, "[not_found] table missing", e.Error())

	wrapped := Wrap(ErrKindTimeout, "insert batch", context.DeadlineExceeded)
	assert.Equal(t, "[timeout] insert batch: context deadline exceeded", wrapped.Error())
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestPredicates_ThroughWrapping(t *testing.T) {
	base := New(ErrKindPermissionDenied, "nope")
	err := fmt.Errorf("updating table: %w", base)

	assert.True(t, IsPermissionDenied(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{}
	assert.NoError(t, fe.Err())

	fe.Add("name", "Please assign a name for your column")
	fe.Add("name", "ignored second message")
	fe.Add("format", "Please select a type for your column")

	err := fe.Err()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "Please assign a name for your column", FieldsOf(err)["name"])
	assert.Contains(t, err.Error(), "format: Please select a type")
}

func TestFieldErrors_Merge(t *testing.T) {
	fe := FieldErrors{}
	fe.Merge("columns[1].", FieldErrors{"name": "missing"})
	assert.Equal(t, "missing", fe["columns[1].name"])
}

func TestErrKind_String(t *testing.T) {
	tests := map[ErrKind]string{
		ErrKindUnknown:        "unknown",
		ErrKindValidation:     "validation",
		ErrKindPartialFailure: "partial_failure",
		ErrKindQueryFailed:    "query_failed",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}
