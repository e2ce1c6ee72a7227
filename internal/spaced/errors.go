package spaced

import "github.com/pkg/errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrInternal   = errors.New("internal scheduler error")
)

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
