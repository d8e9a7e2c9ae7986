package checkout

import (
	"fmt"

	"github.com/speps/go-hashids/v2"
)

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NumberEncoder turns order sequence values into short public order numbers
// that do not reveal order volume.
type NumberEncoder struct {
	prefix string
	h      *hashids.HashID
}

func NewNumberEncoder(salt string) (*NumberEncoder, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	hd.Alphabet = orderNumberAlphabet
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("order number encoder: %w", err)
	}
	return &NumberEncoder{prefix: "ORD-", h: h}, nil
}

func (e *NumberEncoder) Encode(seq int64) (string, error) {
	s, err := e.h.EncodeInt64([]int64{seq})
	if err != nil {
		return "", fmt.Errorf("encode order number %d: %w", seq, err)
	}
	return e.prefix + s, nil
}
