package address

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

// ErrMobileRequired is returned when the contact phone is missing or cannot
// be read as a valid number.
var ErrMobileRequired = errors.New("mobile number required")

// IncompleteError names the canonical fields that are missing or malformed.
type IncompleteError struct {
	Fields []string
}

func (e *IncompleteError) Error() string {
	return "address incomplete: " + strings.Join(e.Fields, ", ")
}

// Input is an address as posted by a storefront, under any of the field
// names Normalize understands.
type Input map[string]interface{}

// Fields is the canonical address shape used past the request boundary.
type Fields struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone" validate:"required,e164"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// synonyms lists, per canonical field, the inbound names accepted for it in
// priority order.
var synonyms = map[string][]string{
	"name":       {"name", "fullName", "full_name", "recipientName", "contactName"},
	"phone":      {"phone", "mobile", "phoneNumber", "phone_number", "mobileNumber", "contactNumber"},
	"email":      {"email", "emailAddress"},
	"line1":      {"line1", "address1", "addressLine1", "address_line1", "street", "streetAddress", "address"},
	"line2":      {"line2", "address2", "addressLine2", "address_line2", "apartment", "area", "landmark"},
	"house":      {"house", "houseNo", "houseNumber", "house_no"},
	"road":       {"road", "roadNo", "roadNumber", "road_no"},
	"city":       {"city", "upazila", "thana", "town", "locality"},
	"state":      {"state", "district", "division", "region", "province"},
	"postalCode": {"postalCode", "postal_code", "postcode", "postCode", "zip", "zipCode"},
	"country":    {"country", "countryCode", "country_code"},
	"firstName":  {"firstName", "first_name"},
	"lastName":   {"lastName", "last_name"},
}

// Normalizer maps Input onto Fields and validates the result.
type Normalizer struct {
	region   string
	validate *validator.Validate
}

// NewNormalizer returns a Normalizer that reads national phone numbers and
// fills a missing country using defaultRegion.
func NewNormalizer(defaultRegion string) *Normalizer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	region := strings.ToUpper(strings.TrimSpace(defaultRegion))
	if region == "" {
		region = "BD"
	}
	return &Normalizer{region: region, validate: v}
}

// Normalize returns the canonical address. Missing fields are reported with
// an *IncompleteError before an unusable phone is reported as
// ErrMobileRequired.
func (n *Normalizer) Normalize(in Input) (Fields, error) {
	f := Fields{
		Name:       pick(in, "name"),
		Email:      strings.ToLower(pick(in, "email")),
		Line1:      pick(in, "line1"),
		Line2:      pick(in, "line2"),
		City:       pick(in, "city"),
		State:      pick(in, "state"),
		PostalCode: pick(in, "postalCode"),
		Country:    strings.ToUpper(pick(in, "country")),
	}
	if f.Name == "" {
		f.Name = joinNonEmpty(" ", pick(in, "firstName"), pick(in, "lastName"))
	}
	if f.Line1 == "" {
		f.Line1 = joinNonEmpty(", ", pick(in, "house"), pick(in, "road"))
	} else if f.Line2 == "" {
		f.Line2 = joinNonEmpty(", ", pick(in, "house"), pick(in, "road"))
	}
	if f.Country == "" {
		f.Country = n.region
	}

	phone, phoneErr := n.canonicalPhone(pick(in, "phone"), f.Country)
	f.Phone = phone

	if err := n.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Fields{}, fmt.Errorf("validate address: %w", err)
		}
		var fields []string
		for _, fe := range verrs {
			// phone problems surface as ErrMobileRequired
			if fe.StructField() == "Phone" {
				continue
			}
			fields = append(fields, fe.Field())
		}
		if len(fields) > 0 {
			sort.Strings(fields)
			return Fields{}, &IncompleteError{Fields: fields}
		}
	}
	if phoneErr != nil {
		return Fields{}, phoneErr
	}
	return f, nil
}

// CanonicalPhone returns raw in E.164 form, reading national numbers in the
// default region.
func (n *Normalizer) CanonicalPhone(raw string) (string, error) {
	return n.canonicalPhone(raw, n.region)
}

func (n *Normalizer) canonicalPhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMobileRequired
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrMobileRequired
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func pick(in Input, canonical string) string {
	for _, key := range synonyms[canonical] {
		if s := stringValue(in[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return strings.Join(strings.Fields(v), " ")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
