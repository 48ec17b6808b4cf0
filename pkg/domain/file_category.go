package domain

import (
	"strings"

	dErrors "pims/pkg/domain-errors"
)

// FileCategory separates personnel folders from policy folders.
type FileCategory string

const (
	CategoryPersonal FileCategory = "personal"
	CategoryPolicy   FileCategory = "policy"
)

func (c FileCategory) IsValid() bool {
	return c == CategoryPersonal || c == CategoryPolicy
}

func (c FileCategory) String() string { return string(c) }

func ParseFileCategory(raw string) (FileCategory, error) {
	c := FileCategory(strings.ToLower(strings.TrimSpace(raw)))
	if !c.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown file category %q", raw)
	}
	return c, nil
}
