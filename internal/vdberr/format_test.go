package vdberr

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(ErrCodeRecordNotFound, "id 'a' not found", nil)

	result := FormatForUser(err)

	assert.Contains(t, result, "id 'a' not found")
	assert.Contains(t, result, "[ERR_301_RECORD_NOT_FOUND]")
}

func TestFormatForUser_WithSuggestion(t *testing.T) {
	err := New(ErrCodeWriteFailed, "persistence write failed", nil).
		WithSuggestion("check disk space and retry")

	result := FormatForUser(err)

	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "check disk space")
}

func TestFormatForUser_StandardError(t *testing.T) {
	err := errors.New("something went wrong")

	result := FormatForUser(err)

	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	result := FormatForUser(nil)

	assert.Empty(t, result)
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(ErrCodeRecordNotFound, "record not found", nil).
		WithDetail("id", "a").
		WithSuggestion("check the id")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeRecordNotFound, result["code"])
	assert.Equal(t, "record not found", result["message"])
	assert.Equal(t, string(CategoryNotFound), result["category"])
	assert.Equal(t, string(SeverityError), result["severity"])
	assert.Equal(t, "check the id", result["suggestion"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", details["id"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeInternal, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)

	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause)

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForCLI_IncludesMessageAndCode(t *testing.T) {
	err := New(ErrCodeSnapshotCorrupt, "snapshot is corrupted", nil).
		WithSuggestion("restore from the last good snapshot")

	result := FormatForCLI(err)

	assert.Contains(t, result, "snapshot is corrupted")
	assert.Contains(t, result, "ERR_502_SNAPSHOT_CORRUPT")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	err := New(ErrCodeRecordNotFound, "record not found", nil)

	result := FormatForCLI(err)

	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "Should be concise")
}

func TestEnvelope_StatusCodes(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{New(ErrCodeInvalidK, "bad k", nil), 400},
		{New(ErrCodeDuplicateID, "dup", nil), 409},
		{New(ErrCodeRecordNotFound, "missing", nil), 404},
		{New(ErrCodeCapacityExceeded, "full", nil), 429},
		{New(ErrCodeInternal, "boom", nil), 500},
		{errors.New("plain"), 500},
	}

	for _, tt := range tests {
		_, status := Envelope(tt.err)
		assert.Equal(t, tt.wantStatus, status)
	}
}
