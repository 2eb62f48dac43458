package vdberr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	vdbErr := New(ErrCodeRecordNotFound, "record not found: a", originalErr)

	require.NotNil(t, vdbErr)
	assert.Equal(t, originalErr, errors.Unwrap(vdbErr))
	assert.True(t, errors.Is(vdbErr, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "not found error",
			code:     ErrCodeRecordNotFound,
			message:  "record not found",
			expected: "[ERR_301_RECORD_NOT_FOUND] record not found",
		},
		{
			name:     "dimension error",
			code:     ErrCodeDimensionMismatch,
			message:  "expected 384 got 128",
			expected: "[ERR_101_DIMENSION_MISMATCH] expected 384 got 128",
		},
		{
			name:     "persistence error",
			code:     ErrCodeWriteFailed,
			message:  "write failed",
			expected: "[ERR_501_WRITE_FAILED] write failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeRecordNotFound, "id a not found", nil)
	err2 := New(ErrCodeRecordNotFound, "id b not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeRecordNotFound, "not found", nil)
	err2 := New(ErrCodeDuplicateID, "duplicate", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "dimension mismatch", nil)

	err = err.WithDetail("expected", "384")
	err = err.WithDetail("got", "128")

	assert.Equal(t, "384", err.Details["expected"])
	assert.Equal(t, "128", err.Details["got"])
}

func TestError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeWriteFailed, "write failed", nil)

	err = err.WithSuggestion("retry the operation")

	assert.Equal(t, "retry the operation", err.Suggestion)
}

func TestError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeInvalidID, CategoryValidation},
		{ErrCodeDuplicateID, CategoryConflict},
		{ErrCodeRecordNotFound, CategoryNotFound},
		{ErrCodeCapacityExceeded, CategoryCapacity},
		{ErrCodeWriteFailed, CategoryPersistence},
		{ErrCodeInvariantViolation, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeSnapshotCorrupt, SeverityFatal},
		{ErrCodeInvariantViolation, SeverityFatal},
		{ErrCodeRecordNotFound, SeverityError},
		{ErrCodeWriteFailed, SeverityWarning}, // retryable, so warning
		{ErrCodeLockContention, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeWriteFailed, true},
		{ErrCodeLockContention, true},
		{ErrCodeRecordNotFound, false},
		{ErrCodeInvalidConfig, false},
		{ErrCodeSnapshotCorrupt, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	wrapped := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrCodeInternal, wrapped.Code)
	assert.Equal(t, "something went wrong", wrapped.Message)
	assert.Equal(t, originalErr, wrapped.Cause)
}

func TestConflict_CreatesConflictCategoryError(t *testing.T) {
	err := Conflict("id \"a\" already exists", nil)

	assert.Equal(t, CategoryConflict, err.Category)
	assert.Contains(t, err.Code, "DUPLICATE")
}

func TestNotFound_CreatesNotFoundCategoryError(t *testing.T) {
	err := NotFound("id \"a\" not found")

	assert.Equal(t, CategoryNotFound, err.Category)
}

func TestPersistence_CreatesRetryableError(t *testing.T) {
	err := Persistence(ErrCodeWriteFailed, "disk write failed", nil)

	assert.Equal(t, CategoryPersistence, err.Category)
	assert.True(t, err.Retryable)
}

func TestValidation_CreatesValidationCategoryError(t *testing.T) {
	err := Validation(ErrCodeInvalidK, "k must be between 1 and 100", nil)

	assert.Equal(t, CategoryValidation, err.Category)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable error",
			err:      New(ErrCodeWriteFailed, "write failed", nil),
			expected: true,
		},
		{
			name:     "non-retryable error",
			err:      New(ErrCodeRecordNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeWriteFailed, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "fatal error",
			err:      New(ErrCodeSnapshotCorrupt, "snapshot corrupt", nil),
			expected: true,
		},
		{
			name:     "invariant violation",
			err:      New(ErrCodeInvariantViolation, "entry_point missing with size_live > 0", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeRecordNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}
