package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"duplicated key", gorm.ErrDuplicatedKey, true},
		{"wrapped duplicated key", fmt.Errorf("create user: %w", gorm.ErrDuplicatedKey), true},
		{"record not found", gorm.ErrRecordNotFound, false},
		{"other error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateKey(tt.err))
		})
	}
}
