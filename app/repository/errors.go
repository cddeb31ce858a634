package repository

import (
	"errors"

	"gorm.io/gorm"
)

// IsDuplicateKey reports whether err is a unique-index violation. The
// database layer opens GORM with TranslateError, so driver errors surface
// as gorm.ErrDuplicatedKey and survive wrapping.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
