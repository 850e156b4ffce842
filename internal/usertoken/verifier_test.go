package usertoken

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"studyhelper/pkg/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{Secret: "short"}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
}

func TestVerifyReturnsUser(t *testing.T) {
	v, err := NewVerifier(Config{Secret: testSecret, Issuer: "studyhelper-web"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := Sign(testSecret, domain.User{ID: "user-1", Email: "a@example.com", Name: "Ada"}, "studyhelper-web", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	user, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != "user-1" || user.Email != "a@example.com" || user.Name != "Ada" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewVerifier(Config{Secret: testSecret, Issuer: "studyhelper-web"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	user := domain.User{ID: "user-1"}

	wrongSecret, _ := Sign("ffffffffffffffffffffffffffffffff", user, "studyhelper-web", time.Minute)
	wrongIssuer, _ := Sign(testSecret, user, "someone-else", time.Minute)
	expired, _ := Sign(testSecret, user, "studyhelper-web", -time.Hour)
	noSubject, _ := Sign(testSecret, domain.User{}, "studyhelper-web", time.Minute)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "studyhelper-web",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"none alg":     noneAlg,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); err == nil {
				t.Fatalf("expected %s token to be rejected", name)
			}
		})
	}

	if _, err := v.Verify(noSubject); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}
