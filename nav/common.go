// Package nav is a client for the Hungarian tax authority's (NAV)
// Online Pénztárgép journal file service and Online Számla invoice
// digest service, with the aggregation used for KATA revenue tracking.
package nav

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentialFormat marks structurally broken key material,
	// e.g. a sign key with its hyphen groups stripped.
	ErrInvalidCredentialFormat = errors.New("nav: invalid credential format")

	// ErrAuthenticationRejected is returned when NAV rejects the login
	// or the request signature. Never retried.
	ErrAuthenticationRejected = errors.New("nav: authentication rejected")

	// ErrServiceUnavailable covers network failures and timeouts after
	// the single transport-level retry has been exhausted.
	ErrServiceUnavailable = errors.New("nav: service unavailable")

	// ErrMalformedResponse is returned when a response is missing
	// fields the protocol requires.
	ErrMalformedResponse = errors.New("nav: malformed response")

	// ErrMalformedJournal is returned when a journal file has no
	// parseable receipts section.
	ErrMalformedJournal = errors.New("nav: malformed journal file")

	// ErrCorruptArchive is returned when a downloaded archive cannot
	// be decompressed or contains no signed container.
	ErrCorruptArchive = errors.New("nav: corrupt journal archive")

	// ErrContainerExtraction is returned when both the structural and
	// the pattern-based container extraction fail.
	ErrContainerExtraction = errors.New("nav: container extraction failed")

	// ErrRequestTooLarge is returned when a file query names more
	// files than one call may carry and chunking is disabled.
	ErrRequestTooLarge = errors.New("nav: file request exceeds per-call limit")
)

// APIError carries the error block of a NAV response (funcCode != OK).
type APIError struct {
	FuncCode  string
	ErrorCode string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("NAV returned %s/%s: %s", e.FuncCode, e.ErrorCode, e.Message)
}

// Unwrap maps the well known signature and login faults onto
// ErrAuthenticationRejected so callers can errors.Is on it.
func (e *APIError) Unwrap() error {
	switch e.ErrorCode {
	case "INVALID_SECURITY_USER", "INVALID_REQUEST_SIGNATURE", "NOT_REGISTERED_CUSTOMER":
		return ErrAuthenticationRejected
	}
	return nil
}

// Environment selects the NAV endpoints.
type Environment int

const (
	Test Environment = iota
	Prod
)

// CashRegisterBaseURL returns the Online Pénztárgép service base URL.
func (e Environment) CashRegisterBaseURL() string {
	switch e {
	case Prod:
		return "https://api-onlinepenztargep.nav.gov.hu"
	case Test:
		return "https://api-test-onlinepenztargep.nav.gov.hu"
	}
	panic("invalid environment")
}

// InvoiceBaseURL returns the Online Számla v3 service base URL.
func (e Environment) InvoiceBaseURL() string {
	switch e {
	case Prod:
		return "https://api.onlineszamla.nav.gov.hu/invoiceService/v3"
	case Test:
		return "https://api-test.onlineszamla.nav.gov.hu/invoiceService/v3"
	}
	panic("invalid environment")
}

func (e Environment) Name() string {
	switch e {
	case Prod:
		return "prod"
	case Test:
		return "test"
	}
	panic("invalid environment")
}

func (e *Environment) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "prod":
		*e = Prod
	case "test":
		*e = Test
	default:
		return fmt.Errorf("invalid NAV_ENV: %q (allowed: prod, test)", text)
	}
	return nil
}
