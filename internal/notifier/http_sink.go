package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HTTPSink posts the event to the inventory sync endpoint. Requests carry a
// short-lived HS256 token signed with the shared secret.
type HTTPSink struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

func NewHTTPSink(url, secret string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{url: url, secret: []byte(secret), client: client, now: time.Now}
}

func (s *HTTPSink) Name() string { return "inventory_sync" }

func (s *HTTPSink) Deliver(ctx context.Context, evt OrderPlaced) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPermanent, err)
	}
	token, err := s.sign(evt)
	if err != nil {
		return fmt.Errorf("%w: sign: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", evt.OrderID)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	default:
		return fmt.Errorf("inventory sync: status %d", resp.StatusCode)
	}
}

func (s *HTTPSink) sign(evt OrderPlaced) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    "storefront-checkout",
		Subject:   evt.OrderID,
		Audience:  jwt.ClaimStrings{"inventory-sync"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
