package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSinkPostsSignedEvent(t *testing.T) {
	var gotAuth, gotKey string
	var body OrderPlaced
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "shared", srv.Client())
	evt := OrderPlaced{OrderID: "o1", OrderNumber: "ORD-ABCDEFGH", Items: []Item{{VariantID: "v1", SKU: "SKU-1", Quantity: 3}}}
	require.NoError(t, sink.Deliver(context.Background(), evt))

	assert.Equal(t, "o1", gotKey)
	assert.Equal(t, evt.OrderNumber, body.OrderNumber)
	require.Len(t, body.Items, 1)
	assert.Equal(t, 3, body.Items[0].Quantity)

	require.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(gotAuth, "Bearer "), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("shared"), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience("inventory-sync"))
	require.NoError(t, err)
	assert.Equal(t, "o1", claims.Subject)
}

func TestHTTPSinkClassifiesStatus(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	sink := NewHTTPSink(srv.URL, "shared", srv.Client())

	err := sink.Deliver(context.Background(), OrderPlaced{OrderID: "o1"})
	assert.True(t, errors.Is(err, ErrPermanent))

	status = http.StatusServiceUnavailable
	err = sink.Deliver(context.Background(), OrderPlaced{OrderID: "o1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPermanent))
}
