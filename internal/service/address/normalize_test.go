package address

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSynonyms(t *testing.T) {
	n := NewNormalizer("BD")

	got, err := n.Normalize(Input{
		"fullName": "  Rahim   Uddin ",
		"mobile":   "01712345678",
		"house":    "12",
		"road":     float64(5),
		"thana":    "Dhanmondi",
		"district": "Dhaka",
		"postcode": "1209",
	})
	require.NoError(t, err)
	assert.Equal(t, Fields{
		Name:       "Rahim Uddin",
		Phone:      "+8801712345678",
		Line1:      "12, 5",
		City:       "Dhanmondi",
		State:      "Dhaka",
		PostalCode: "1209",
		Country:    "BD",
	}, got)
}

func TestNormalizeInternational(t *testing.T) {
	n := NewNormalizer("BD")

	got, err := n.Normalize(Input{
		"firstName": "Ann",
		"lastName":  "Lee",
		"phone":     "(201) 555-0123",
		"street":    "1 Main St",
		"apartment": "Apt 4",
		"city":      "Newark",
		"state":     "NJ",
		"zip":       "07102",
		"country":   "us",
		"email":     "Ann@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", got.Name)
	assert.Equal(t, "+12015550123", got.Phone)
	assert.Equal(t, "US", got.Country)
	assert.Equal(t, "Apt 4", got.Line2)
	assert.Equal(t, "ann@example.com", got.Email)
}

func TestNormalizeHouseRoadGoToLine2WhenStreetGiven(t *testing.T) {
	got, err := NewNormalizer("BD").Normalize(Input{
		"name":    "Karim",
		"phone":   "+8801812345678",
		"address": "Lake Circus",
		"house":   "7",
		"city":    "Dhaka",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lake Circus", got.Line1)
	assert.Equal(t, "7", got.Line2)
}

func TestNormalizeIncomplete(t *testing.T) {
	n := NewNormalizer("BD")

	_, err := n.Normalize(Input{"name": "Rahim", "phone": "01712345678"})
	var inc *IncompleteError
	require.True(t, errors.As(err, &inc), "got %v", err)
	assert.Equal(t, []string{"city", "line1"}, inc.Fields)

	_, err = n.Normalize(Input{"name": "Rahim", "phone": "01712345678", "line1": "x", "city": "y", "email": "nope"})
	require.True(t, errors.As(err, &inc), "got %v", err)
	assert.Equal(t, []string{"email"}, inc.Fields)

	_, err = n.Normalize(Input{"name": "Rahim", "phone": "+8801712345678", "line1": "x", "city": "y", "country": "ZZ"})
	require.True(t, errors.As(err, &inc), "got %v", err)
	assert.Equal(t, []string{"country"}, inc.Fields)
}

func TestNormalizeMobileRequired(t *testing.T) {
	n := NewNormalizer("BD")
	base := Input{"name": "Rahim", "line1": "Road 1", "city": "Dhaka"}

	_, err := n.Normalize(base)
	assert.ErrorIs(t, err, ErrMobileRequired)

	withBad := Input{"phone": "12345"}
	for k, v := range base {
		withBad[k] = v
	}
	_, err = n.Normalize(withBad)
	assert.ErrorIs(t, err, ErrMobileRequired)
}

func TestNormalizeIncompleteReportedBeforePhone(t *testing.T) {
	_, err := NewNormalizer("BD").Normalize(Input{"name": "Rahim"})
	var inc *IncompleteError
	require.True(t, errors.As(err, &inc), "got %v", err)
	assert.NotContains(t, inc.Fields, "phone")
}

func TestCanonicalPhone(t *testing.T) {
	n := NewNormalizer("")
	got, err := n.CanonicalPhone("+880 1712-345678")
	require.NoError(t, err)
	assert.Equal(t, "+8801712345678", got)

	_, err = n.CanonicalPhone("")
	assert.ErrorIs(t, err, ErrMobileRequired)
}
