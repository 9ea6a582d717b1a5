// Package model contains the shared data model for the NAV cash register
// and online invoice clients.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credentials holds the NAV technical user data for one taxpayer.
// It is owned by the caller and passed into every operation; the
// library never stores it.
type Credentials struct {
	// Login is the technical user login name.
	Login string

	// Password is the technical user password in plain text. Only its
	// SHA-512 hash ever leaves the process.
	Password string

	// SignKey is the request signing key (aláírókulcs). The literal
	// hyphens are part of the key and must not be stripped.
	SignKey string

	// ExchangeKey is the exchange key (cserekulcs). Required by the
	// online invoice service, optional for the cash register service.
	ExchangeKey string

	// TaxNumber is the first 8 digits of the taxpayer's tax number.
	TaxNumber string
}

// Software identifies the client software in every request header.
// NAV requires softwareId to match [0-9A-Z-]{18}.
type Software struct {
	ID             string
	Name           string
	Operation      string
	MainVersion    string
	DevName        string
	DevContact     string
	DevCountryCode string
	DevTaxNumber   string
}

// DefaultSoftware returns the software block registered for this client.
func DefaultSoftware() Software {
	return Software{
		ID:             "HU77317012-GONAVCL",
		Name:           "go-nav-client",
		Operation:      "LOCAL_SOFTWARE",
		MainVersion:    "1.0",
		DevName:        "Irvolta",
		DevContact:     "info@irvolta.hu",
		DevCountryCode: "HU",
		DevTaxNumber:   "77317012",
	}
}

// FileRange is the inclusive range of journal file numbers a cash
// register status query reports as available for download.
type FileRange struct {
	APNumber          string
	Min               int
	Max               int
	LastCommunication time.Time
	LastFileDate      time.Time
}

// Empty reports whether the register has no files available yet.
// NAV signals this with a 0-0 range.
func (r FileRange) Empty() bool {
	return r.Min == 0 && r.Max == 0
}

// Count returns the number of files in the range.
func (r FileRange) Count() int {
	if r.Empty() || r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min + 1
}

// Attachment is one named binary part of a multipart file query
// response. Data is the compressed journal archive as received.
type Attachment struct {
	Name       string
	FileNumber int
	Data       []byte
}

// ReceiptRecord is a single receipt parsed from a journal file.
type ReceiptRecord struct {
	Seq       int
	Time      time.Time
	Amount    int64 // gross total in HUF
	Cancelled bool
}

// DailyAggregate is the per-file revenue summary emitted for the record
// store. Exactly one aggregate is produced per downloaded journal file,
// even when no qualifying receipt was found in it.
type DailyAggregate struct {
	FileNumber   int
	Date         time.Time // calendar day from the file's own timestamp
	ReceiptCount int
	TotalAmount  int64
}

// InvoiceOperation is the kind of an invoice digest entry.
type InvoiceOperation string

const (
	OperationCreate InvoiceOperation = "CREATE"
	OperationStorno InvoiceOperation = "STORNO"
	OperationModify InvoiceOperation = "MODIFY"
)

// InvoiceDigestRecord is a compact invoice summary returned by the
// online invoice digest query. DeliveryDate drives the cross-year
// classification of corrections; it may be zero when NAV omits it.
type InvoiceDigestRecord struct {
	InvoiceNumber string
	Operation     InvoiceOperation
	NetAmount     decimal.Decimal // invoiceNetAmountHUF
	IssueDate     time.Time
	DeliveryDate  time.Time
}

// DigestPage is one page of an invoice digest query result.
type DigestPage struct {
	CurrentPage   int
	AvailablePage int
	Digests       []InvoiceDigestRecord
}

// PeriodSummary aggregates invoice digests over a month or a year.
//
// NetAmount always equals TotalAmount + ModifiedAmount - StornoAmount;
// the aggregation engine maintains this by construction.
type PeriodSummary struct {
	TotalAmount    decimal.Decimal
	StornoAmount   decimal.Decimal
	ModifiedAmount decimal.Decimal
	NetAmount      decimal.Decimal

	ValidInvoices    int
	StornoInvoices   int
	ModifiedInvoices int
	TotalInvoices    int

	// Corrections whose original delivery date falls in an earlier
	// year. Counted here and nowhere else; their amounts never touch
	// the monetary fields above.
	CrossYearStornos  int
	CrossYearModified int
}

// Add returns the field-wise sum of two summaries.
func (s PeriodSummary) Add(o PeriodSummary) PeriodSummary {
	return PeriodSummary{
		TotalAmount:       s.TotalAmount.Add(o.TotalAmount),
		StornoAmount:      s.StornoAmount.Add(o.StornoAmount),
		ModifiedAmount:    s.ModifiedAmount.Add(o.ModifiedAmount),
		NetAmount:         s.NetAmount.Add(o.NetAmount),
		ValidInvoices:     s.ValidInvoices + o.ValidInvoices,
		StornoInvoices:    s.StornoInvoices + o.StornoInvoices,
		ModifiedInvoices:  s.ModifiedInvoices + o.ModifiedInvoices,
		TotalInvoices:     s.TotalInvoices + o.TotalInvoices,
		CrossYearStornos:  s.CrossYearStornos + o.CrossYearStornos,
		CrossYearModified: s.CrossYearModified + o.CrossYearModified,
	}
}
