package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignAdminToken returns an HS256 token with the given subject and roles,
// shaped like the access tokens the site issues.
func SignAdminToken(t *testing.T, key, subject string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   subject,
		"roles": roles,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign admin token: %v", err)
	}
	return token
}
