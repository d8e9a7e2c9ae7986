// Package session issues and verifies the bearer tokens storefronts send.
// A token names an anonymous shopper, a signed-in customer, or both while a
// guest cart is being claimed.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
	issuer      = "storefront-checkout"
)

// Claims is the token payload. Subject carries the customer id when the
// shopper is signed in.
type Claims struct {
	ProjectID   string `json:"pid"`
	AnonymousID string `json:"aid,omitempty"`
	Kind        string `json:"knd"`
	jwt.RegisteredClaims
}

func (c Claims) CustomerID() string {
	return c.Subject
}

type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func New(secret string) *Service {
	return &Service{
		secret:     []byte(secret),
		accessTTL:  3 * time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
		now:        time.Now,
	}
}

// IssueAnonymous starts an anonymous session with a fresh anonymous id.
func (s *Service) IssueAnonymous(projectID string) (accessToken, refreshToken, anonymousID string, err error) {
	anonymousID = uuid.NewString()
	accessToken, err = s.sign(projectID, "", anonymousID, kindAccess, s.accessTTL)
	if err != nil {
		return "", "", "", err
	}
	refreshToken, err = s.sign(projectID, "", anonymousID, kindRefresh, s.refreshTTL)
	if err != nil {
		return "", "", "", err
	}
	return accessToken, refreshToken, anonymousID, nil
}

// IssueCustomer returns an access token for a signed-in customer. anonymousID
// may be empty; when set, the customer's checkout can still find the cart
// they built before signing in.
func (s *Service) IssueCustomer(projectID, customerID, anonymousID string) (string, error) {
	if customerID == "" {
		return "", errors.New("customer id required")
	}
	return s.sign(projectID, customerID, anonymousID, kindAccess, s.accessTTL)
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(projectID, refreshToken string) (string, error) {
	c, err := s.parse(projectID, refreshToken, kindRefresh)
	if err != nil {
		return "", err
	}
	return s.sign(projectID, c.Subject, c.AnonymousID, kindAccess, s.accessTTL)
}

// Verify checks an access token and that it was issued for projectID.
func (s *Service) Verify(projectID, token string) (Claims, error) {
	return s.parse(projectID, token, kindAccess)
}

func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}

func (s *Service) sign(projectID, customerID, anonymousID, kind string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		ProjectID:   projectID,
		AnonymousID: anonymousID,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   customerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *Service) parse(projectID, token, kind string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Kind != kind || c.ProjectID != projectID {
		return Claims{}, ErrInvalidToken
	}
	if c.Subject == "" && c.AnonymousID == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}
