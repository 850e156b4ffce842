package filetoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTTL is the lifetime of a PDF download token.
	DefaultTTL = 5 * time.Minute
	// DefaultLeeway is clock skew tolerance for token validation.
	DefaultLeeway = 15 * time.Second

	audience = "book-file"
	issuer   = "studyhelper-api"
)

var ErrBookMismatch = errors.New("file token issued for another book")

type fileClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Grant is what a verified file token allows.
type Grant struct {
	BookID    string
	UserID    string
	ExpiresAt time.Time
}

// Signer issues and checks short-lived tokens that let the PDF viewer fetch a
// book file with a plain GET (no Authorization header).
type Signer struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
}

// NewSigner creates a signer. The secret must be at least 32 bytes.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 {
		return nil, errors.New("file token secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, leeway: DefaultLeeway}, nil
}

// Sign issues a token scoped to one book for one user.
func (s *Signer) Sign(bookID, userID string) (string, time.Time, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return "", time.Time{}, errors.New("file token book id is required")
	}
	now := time.Now().UTC()
	expires := now.Add(s.ttl)
	claims := fileClaims{
		UserID: strings.TrimSpace(userID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   bookID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        randomHexID(8),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign file token: %w", err)
	}
	return signed, expires, nil
}

// Verify validates token and checks it was issued for bookID.
func (s *Signer) Verify(token, bookID string) (Grant, error) {
	claims := fileClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return Grant{}, errors.New("token required")
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return Grant{}, err
	}
	if claims.Subject != strings.TrimSpace(bookID) {
		return Grant{}, ErrBookMismatch
	}
	grant := Grant{BookID: claims.Subject, UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		grant.ExpiresAt = claims.ExpiresAt.Time
	}
	return grant, nil
}

// BearerToken extracts a bearer token from request header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
