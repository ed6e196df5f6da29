package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := Invalid("name", "is required")
	assert.EqualError(t, err, "validation: name: is required")
	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsStoreWrite(err))
}

func TestPartialWriteError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &PartialWriteError{
		Succeeded: 2,
		Failed:    []*StoreWriteError{{Op: "merge", Path: "users/u/objectives/a", Err: cause}},
	}
	assert.True(t, IsStoreWrite(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "users/u/objectives/a")
}

func TestExternalServiceError(t *testing.T) {
	err := &ExternalServiceError{Op: "desire", Err: errors.New("bad json")}
	assert.True(t, IsExternal(err))
	assert.Equal(t, "external service desire: bad json", err.Error())
}
