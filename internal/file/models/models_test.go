package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
)

func TestCheckTransition(t *testing.T) {
	t.Run("wrong status names the current status", func(t *testing.T) {
		err := CheckTransition(TransitionArchive, StatusActive)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.Contains(t, err.Error(), "file is active")
	})

	t.Run("registry path skips pending", func(t *testing.T) {
		from, to, ok := TransitionRegistryActivation.Edge()
		assert.True(t, ok)
		assert.Equal(t, StatusInactive, from)
		assert.Equal(t, StatusActive, to)
		assert.NoError(t, CheckTransition(TransitionRegistryActivation, StatusInactive))
	})

	t.Run("archived has no way out", func(t *testing.T) {
		for tr := range lifecycle {
			assert.Error(t, CheckTransition(tr, StatusArchived), tr)
		}
	})
}

func TestCreateRequestValidate(t *testing.T) {
	owner := domain.UserID(uuid.New())

	t.Run("personal maps employment type to code", func(t *testing.T) {
		req := CreateRequest{Category: domain.CategoryPersonal, SubType: " Locum ", OwnerID: &owner}
		req.Normalize()
		sub, code, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, "locum", sub)
		assert.Equal(t, "LS", code)
	})

	t.Run("personal without owner", func(t *testing.T) {
		req := CreateRequest{Category: domain.CategoryPersonal, SubType: "permanent"}
		_, _, err := req.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("policy needs exactly one scope", func(t *testing.T) {
		both := CreateRequest{Category: domain.CategoryPolicy, DepartmentCode: "FIN", ExternalParty: "NHIS"}
		_, _, err := both.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		neither := CreateRequest{Category: domain.CategoryPolicy}
		_, _, err = neither.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("external party policy uses EXT", func(t *testing.T) {
		req := CreateRequest{Category: domain.CategoryPolicy, ExternalParty: "National Health Insurance"}
		sub, code, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, ExternalPartyCode, sub)
		assert.Equal(t, ExternalPartyCode, code)
	})

	t.Run("title is upper-cased", func(t *testing.T) {
		req := CreateRequest{Title: "  staff welfare "}
		req.Normalize()
		assert.Equal(t, "STAFF WELFARE", req.Title)
	})
}

func TestAccessRequestIsActive(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	approver := domain.UserID(uuid.New())

	t.Run("pending is not active", func(t *testing.T) {
		r := &AccessRequest{Status: RequestPending}
		assert.False(t, r.IsActive(now))
	})

	t.Run("approved is active until expiry", func(t *testing.T) {
		r := &AccessRequest{Status: RequestPending}
		r.ApplyApproval(approver, 5*time.Hour, now)
		assert.True(t, r.IsActive(now.Add(4*time.Hour)))
		assert.False(t, r.IsActive(now.Add(5*time.Hour)))
		assert.Equal(t, RequestExpired, r.EffectiveStatus(now.Add(6*time.Hour)))
	})

	t.Run("no expiry stays active", func(t *testing.T) {
		r := &AccessRequest{Status: RequestPending}
		r.ApplyApproval(approver, 0, now)
		assert.Nil(t, r.ExpiresAt)
		assert.True(t, r.IsActive(now.AddDate(1, 0, 0)))
	})

	t.Run("decided requests cannot be decided again", func(t *testing.T) {
		r := &AccessRequest{Status: RequestRejected}
		assert.True(t, dErrors.HasCode(r.CanDecide(), dErrors.CodeConflict))
	})
}

func TestFileCustody(t *testing.T) {
	holder := domain.UserID(uuid.New())
	other := domain.UserID(uuid.New())
	now := time.Now()
	f := &File{Status: StatusActive}
	f.ApplyCustody(holder, now)

	assert.NoError(t, f.CanDispatch(holder))
	assert.True(t, dErrors.HasCode(f.CanDispatch(other), dErrors.CodeForbidden))

	f.Status = StatusClosed
	assert.True(t, dErrors.HasCode(f.CanDispatch(holder), dErrors.CodeConflict))
	assert.NoError(t, f.CanRecall())

	f.Status = StatusArchived
	assert.True(t, dErrors.HasCode(f.CanRecall(), dErrors.CodeConflict))
}

func TestListFilter(t *testing.T) {
	archived := &File{Status: StatusArchived}
	active := &File{Status: StatusActive}

	assert.False(t, ListFilter{}.Matches(archived))
	assert.True(t, ListFilter{IncludeArchived: true}.Matches(archived))
	s := StatusArchived
	assert.True(t, ListFilter{Status: &s}.Matches(archived))
	assert.True(t, ListFilter{}.Matches(active))
}
