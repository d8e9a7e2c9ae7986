package checkout

import (
	"errors"
	"fmt"
)

// Code is the public failure taxonomy of a checkout.
type Code string

const (
	CodeCartEmpty         Code = "CART_EMPTY"
	CodeAddressIncomplete Code = "ADDRESS_INCOMPLETE"
	CodeMobileRequired    Code = "MOBILE_REQUIRED"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeUnknown           Code = "UNKNOWN"
)

// Stage is the state of an order assembly.
type Stage string

const (
	StageValidating        Stage = "VALIDATING"
	StagePricing           Stage = "PRICING"
	StageIdentityResolved  Stage = "IDENTITY_RESOLVED"
	StageAddressesUpserted Stage = "ADDRESSES_UPSERTED"
	StageTotalsComputed    Stage = "TOTALS_COMPUTED"
	StagePersisted         Stage = "PERSISTED"
	StageStockDecremented  Stage = "STOCK_DECREMENTED"
	StageCartConverted     Stage = "CART_CONVERTED"
	StageEventEmitted      Stage = "EVENT_EMITTED"
	StageCommitted         Stage = "COMMITTED"
)

// Error is a failed checkout. Stage is the state the assembly was in.
type Error struct {
	Code   Code
	Fields []string
	Stage  Stage
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("checkout %s at %s", e.Code, e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the public code carried by err, UNKNOWN for anything else
// and the empty code for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeUnknown
}

// FieldsOf returns the missing address fields carried by err.
func FieldsOf(err error) []string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Fields
	}
	return nil
}

func fail(code Code, stage Stage, err error) *Error {
	return &Error{Code: code, Stage: stage, Err: err}
}
