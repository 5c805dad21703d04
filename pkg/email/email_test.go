package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got, err := Normalize("  Ana.Pop@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "ana.pop@example.com", got)

	got, err = Normalize("Ana <ana@x.com>")
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com", got)

	_, err = Normalize("not-an-address")
	require.Error(t, err)
	_, err = Normalize("   ")
	require.Error(t, err)
}

func TestNormalizeList(t *testing.T) {
	valid, invalid := NormalizeList([]string{"B@x.com", "a@x.com", " b@x.com", "", "broken", "A@X.COM"})
	assert.Equal(t, []string{"b@x.com", "a@x.com"}, valid)
	assert.Equal(t, []string{"broken"}, invalid)
}

func TestGreetingName(t *testing.T) {
	tests := []struct {
		name, addr, want string
	}{
		{" Ana ", "x@y.com", "Ana"},
		{"", "maria.ionescu@club.ro", "Maria"},
		{"", "JOHN_doe@x.com", "John"},
		{"", "1234@x.com", "Supporter"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GreetingName(tt.name, tt.addr), tt.addr)
	}
}

func TestDeriveNameFromEmail(t *testing.T) {
	first, last := DeriveNameFromEmail("maria.ionescu+club@x.com")
	assert.Equal(t, "Maria", first)
	assert.Equal(t, "Club", last)

	first, last = DeriveNameFromEmail("solo@x.com")
	assert.Equal(t, "Solo", first)
	assert.Equal(t, "Supporter", last)
}
