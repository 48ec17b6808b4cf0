package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pims/pkg/domain-errors"
)

func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseFileID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseWorkflowID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseActivationRequestID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, ActivationRequestID(raw), id)
		assert.Equal(t, raw.String(), id.String())
	})
}

func TestTypeDistinction(t *testing.T) {
	userID := UserID(uuid.New())
	fileID := FileID(uuid.New())

	// var _ UserID = fileID would not compile.
	assert.NotEqual(t, uuid.UUID(userID), uuid.UUID(fileID))
	assert.False(t, userID.IsNil())
	assert.True(t, FileID{}.IsNil())
}

func TestIDsEncodeAsStrings(t *testing.T) {
	raw := uuid.New()
	payload := struct {
		File FileID  `json:"file"`
		User *UserID `json:"user,omitempty"`
	}{File: FileID(raw)}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"file":"`+raw.String()+`"}`, string(b))

	var back struct {
		File FileID `json:"file"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, FileID(raw), back.File)
}
