// Package sync drives a full data pull for one taxpayer: journal file
// download and daily aggregation per cash register, and the monthly
// plus yearly invoice digest folds. Failures of a single file or month
// are recorded in the report and never abort the remaining work; only
// entity-level failures (credentials, status query) surface as errors.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/aggregate"
	"github.com/irvolta/go-nav-client/nav/api"
	"github.com/irvolta/go-nav-client/nav/container"
	"github.com/irvolta/go-nav-client/nav/journal"
	"github.com/irvolta/go-nav-client/nav/model"
)

var logger = logrus.WithField("component", "nav.sync")

// Services bundles the two transport clients a sync run needs.
type Services struct {
	CashRegister api.CashRegisterService
	Invoice      api.InvoiceService
}

// NewServices wires both services onto one shared HTTP client.
func NewServices(env nav.Environment) *Services {
	client := api.New()
	return &Services{
		CashRegister: api.NewCashRegisterService(client, env),
		Invoice:      api.NewInvoiceService(client, env),
	}
}

// FileOutcome is the result for one requested journal file. Either
// Aggregate or Err is set.
type FileOutcome struct {
	FileNumber int
	Name       string

	// Verified is false when the journal came out of the pattern
	// based fallback extraction.
	Verified bool

	Aggregate *model.DailyAggregate
	Err       error
}

// RegisterReport is the structured outcome of one cash register sync.
type RegisterReport struct {
	APNumber  string
	Range     model.FileRange
	StartFile int
	EndFile   int
	Outcomes  []FileOutcome
}

// Aggregates returns the successfully produced daily aggregates in
// file number order, the shape the record store consumes.
func (r *RegisterReport) Aggregates() []model.DailyAggregate {
	var out []model.DailyAggregate
	for _, o := range r.Outcomes {
		if o.Err == nil && o.Aggregate != nil {
			out = append(out, *o.Aggregate)
		}
	}
	return out
}

// Failed counts the files that could not be processed.
func (r *RegisterReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Register pulls and aggregates the journal files of one cash register.
//
// lastSyncedFile continues an earlier run: files up to and including it
// are skipped. Pass 0 to take everything the status query offers. An
// empty 0-0 range is a successful no-op, not an error.
func Register(ctx context.Context, services *Services, creds model.Credentials, ap string, lastSyncedFile, year int) (*RegisterReport, error) {

	status, err := services.CashRegister.QueryStatus(ctx, ap, creds)
	if err != nil {
		return nil, err
	}

	report := &RegisterReport{APNumber: ap, Range: *status}

	if status.Empty() {
		logger.WithField("ap", ap).Debug("No journal files available yet")
		return report, nil
	}

	start := status.Min
	if lastSyncedFile >= start {
		start = lastSyncedFile + 1
	}
	if start > status.Max {
		logger.WithField("ap", ap).Debug("No new journal files since last sync")
		return report, nil
	}
	report.StartFile = start
	report.EndFile = status.Max

	fileNumbers := make([]int, 0, status.Max-start+1)
	for n := start; n <= status.Max; n++ {
		fileNumbers = append(fileNumbers, n)
	}

	attachments, err := services.CashRegister.QueryFiles(ctx, ap, creds, fileNumbers)
	if err != nil {
		return nil, err
	}

	byNumber := make(map[int]model.Attachment, len(attachments))
	for _, att := range attachments {
		byNumber[att.FileNumber] = att
	}

	for _, n := range fileNumbers {
		att, ok := byNumber[n]
		if !ok {
			report.Outcomes = append(report.Outcomes, FileOutcome{
				FileNumber: n,
				Err:        fmt.Errorf("file %d: %w", n, nav.ErrMalformedResponse),
			})
			continue
		}
		report.Outcomes = append(report.Outcomes, processAttachment(att, n, year))
	}

	logger.WithFields(logrus.Fields{
		"ap":     ap,
		"files":  len(fileNumbers),
		"failed": report.Failed(),
	}).Info("Cash register sync finished")

	return report, nil
}

func processAttachment(att model.Attachment, fileNumber, year int) FileOutcome {
	outcome := FileOutcome{FileNumber: fileNumber, Name: att.Name}

	jrn, err := container.ExtractJournal(att)
	if err != nil {
		outcome.Err = fmt.Errorf("file %d: %w", fileNumber, err)
		return outcome
	}
	outcome.Verified = jrn.Verified

	meta, err := journal.ParseFileName(jrn.Name)
	if err != nil {
		outcome.Err = fmt.Errorf("file %d: %w", fileNumber, err)
		return outcome
	}

	receipts, err := journal.ParseReceipts(jrn.XML)
	if err != nil {
		outcome.Err = fmt.Errorf("file %d: %w", fileNumber, err)
		return outcome
	}

	agg := aggregate.Daily(meta, receipts, year)
	outcome.Aggregate = &agg
	return outcome
}

// MonthOutcome is the digest fold of one calendar month. On error the
// summary is zero and the month still occupies its slot.
type MonthOutcome struct {
	Month       time.Month
	Summary     model.PeriodSummary
	KataPercent decimal.Decimal
	Err         error
}

// InvoiceReport is the structured outcome of one invoice digest sync.
type InvoiceReport struct {
	Year              int
	Months            [12]MonthOutcome
	Yearly            model.PeriodSummary
	YearlyKataPercent decimal.Decimal
}

// Invoices folds twelve months of invoice digests into monthly and
// yearly summaries with their KATA ceiling percentages. A failed month
// is recorded and contributes zeros; a cancelled context aborts the
// whole run without folding the partial month.
func Invoices(ctx context.Context, services *Services, creds model.Credentials, year int, ceiling aggregate.Ceiling) (*InvoiceReport, error) {

	report := &InvoiceReport{Year: year}
	var months [12]model.PeriodSummary

	for month := time.January; month <= time.December; month++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		from, to := aggregate.MonthRange(year, month)
		outcome := MonthOutcome{Month: month}

		records, err := services.Invoice.QueryAllInvoiceDigests(ctx, creds, from, to)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger.WithField("month", month.String()).Warnf("Digest query failed: %v", err)
			outcome.Err = err
		default:
			outcome.Summary = aggregate.Monthly(records, year)
			outcome.KataPercent = ceiling.MonthlyPercent(outcome.Summary.NetAmount, year)
		}

		report.Months[month-1] = outcome
		months[month-1] = outcome.Summary
	}

	report.Yearly = aggregate.Yearly(months)
	report.YearlyKataPercent = ceiling.YearlyPercent(report.Yearly.NetAmount, year)

	logger.WithFields(logrus.Fields{
		"year":     year,
		"invoices": report.Yearly.TotalInvoices,
		"net":      report.Yearly.NetAmount.String(),
	}).Info("Invoice sync finished")

	return report, nil
}
