package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "clubpay/pkg/domain-errors"
)

type sample struct {
	Email  string `json:"email" validate:"required,email"`
	Amount int64  `json:"amount" validate:"gt=0"`
	Note   string `json:"note" validate:"max=5"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{Email: "a@x.com", Amount: 1}))

	tests := []struct {
		name string
		in   sample
		want string
	}{
		{"missing email", sample{Amount: 1}, "email is required"},
		{"bad email", sample{Email: "nope", Amount: 1}, "email must be a valid email address"},
		{"zero amount", sample{Email: "a@x.com"}, "amount must be at least 0"},
		{"long note", sample{Email: "a@x.com", Amount: 1, Note: "toolong"}, "note must be at most 5 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			var de *dErrors.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.want, de.Message)
		})
	}
}
