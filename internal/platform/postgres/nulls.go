package postgres

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"pims/pkg/domain"
)

// NullUser maps an optional user reference onto a nullable UUID column.
func NullUser(u *domain.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

// UserPtr is the inverse of NullUser.
func UserPtr(n uuid.NullUUID) *domain.UserID {
	if !n.Valid {
		return nil
	}
	u := domain.UserID(n.UUID)
	return &u
}

// NullString stores empty strings as NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// TimePtr converts a nullable timestamp.
func TimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
