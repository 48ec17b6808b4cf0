// Package numbering issues file numbers.
//
// Serials come from counter rows keyed by (year, category, code). Each call
// increments the row atomically inside the caller's unit of work, so numbers
// are unique and gap-free per bucket as long as the unit of work commits.
package numbering

import (
	"context"
	"fmt"
	"strings"

	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	"pims/pkg/requestcontext"
)

// CounterKey identifies one serial sequence.
type CounterKey struct {
	Year     int
	Category domain.FileCategory
	Code     string
}

// CounterStore increments and returns the serial for key, starting at 1.
type CounterStore interface {
	Next(ctx context.Context, key CounterKey) (int, error)
}

type Authority struct {
	counters CounterStore
	prefix   string
	width    int
}

type Option func(*Authority)

func WithPrefix(prefix string) Option {
	return func(a *Authority) {
		if p := strings.TrimSpace(prefix); p != "" {
			a.prefix = strings.ToUpper(p)
		}
	}
}

// WithSerialWidth sets the zero padding of serials.
func WithSerialWidth(width int) Option {
	return func(a *Authority) {
		if width > 0 {
			a.width = width
		}
	}
}

func New(counters CounterStore, opts ...Option) *Authority {
	a := &Authority{counters: counters, prefix: "FMCAB", width: 3}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate issues the next number for category and code.
//
//	personal: PREFIX/YEAR/CODE/SERIAL
//	policy:   PREFIX/CODE/YEAR/SERIAL
func (a *Authority) Generate(ctx context.Context, category domain.FileCategory, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !category.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown file category %q", category)
	}
	if code == "" {
		return "", dErrors.Newf(dErrors.CodeConflict, "%s files require a sub-type code", category)
	}
	year := requestcontext.Now(ctx).Year()

	serial, err := a.counters.Next(ctx, CounterKey{Year: year, Category: category, Code: code})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate file number")
	}

	s := fmt.Sprintf("%0*d", a.width, serial)
	if category == domain.CategoryPersonal {
		return fmt.Sprintf("%s/%d/%s/%s", a.prefix, year, code, s), nil
	}
	return fmt.Sprintf("%s/%s/%d/%s", a.prefix, code, year, s), nil
}
