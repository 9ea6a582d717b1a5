// Package aggregate folds parsed fiscal records into the period
// summaries used for KATA revenue tracking: per-file daily revenue
// aggregates from cash register journals and monthly/yearly invoice
// summaries from digest queries.
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/irvolta/go-nav-client/nav/journal"
	"github.com/irvolta/go-nav-client/nav/model"
)

// Daily folds the receipts of one journal file into its aggregate.
// Exactly one aggregate exists per file: a file without a single
// qualifying receipt still yields a zero-valued entry so every
// downloaded file is represented downstream.
//
// Cancelled receipts and receipts outside the requested year are
// excluded from both count and amount.
func Daily(meta *journal.FileMeta, receipts []model.ReceiptRecord, year int) model.DailyAggregate {
	agg := model.DailyAggregate{
		FileNumber: meta.FileNumber,
		Date:       meta.Date.Truncate(24 * time.Hour),
	}

	for _, r := range receipts {
		if r.Cancelled {
			continue
		}
		if r.Time.Year() != year {
			continue
		}
		agg.ReceiptCount++
		agg.TotalAmount += r.Amount
	}
	return agg
}

// Monthly folds invoice digests of one calendar month into a summary.
//
// A STORNO or MODIFY whose delivery date falls in a year before the
// query period is a cross-year correction: its amount never reaches
// the monetary totals and it only increments its cross-year counter.
// The NetAmount identity Total + Modified - Storno holds by
// construction.
func Monthly(records []model.InvoiceDigestRecord, year int) model.PeriodSummary {
	var s model.PeriodSummary
	s.TotalInvoices = len(records)

	for _, rec := range records {
		if crossYear(rec, year) {
			switch rec.Operation {
			case model.OperationStorno:
				s.CrossYearStornos++
			case model.OperationModify:
				s.CrossYearModified++
			}
			continue
		}

		switch rec.Operation {
		case model.OperationStorno:
			s.StornoAmount = s.StornoAmount.Add(rec.NetAmount.Abs())
			s.StornoInvoices++
		case model.OperationModify:
			s.ModifiedAmount = s.ModifiedAmount.Add(rec.NetAmount)
			s.ModifiedInvoices++
		case model.OperationCreate:
			s.TotalAmount = s.TotalAmount.Add(rec.NetAmount)
			s.ValidInvoices++
		}
	}

	s.NetAmount = s.TotalAmount.Add(s.ModifiedAmount).Sub(s.StornoAmount)
	return s
}

func crossYear(rec model.InvoiceDigestRecord, year int) bool {
	if rec.Operation != model.OperationStorno && rec.Operation != model.OperationModify {
		return false
	}
	return !rec.DeliveryDate.IsZero() && rec.DeliveryDate.Year() < year
}

// Yearly sums twelve monthly summaries field-wise. Cross-year counters
// accumulate and never cancel against each other.
func Yearly(months [12]model.PeriodSummary) model.PeriodSummary {
	var s model.PeriodSummary
	for _, m := range months {
		s = s.Add(m)
	}
	return s
}

// MonthRange returns the first and last day of a calendar month, the
// issue date bounds of a digest query.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	return from, to
}

// DefaultAnnualCeiling is the KATA revenue ceiling in HUF (2025).
const DefaultAnnualCeiling = 18_000_000

// ceilingRounding is the granularity the prorated ceiling is rounded
// to. Nearest thousand forint, matching the published KATA tables.
const ceilingRounding = 1000

// Ceiling computes the revenue ceiling a taxpayer must stay under,
// prorated when the business started mid-year.
type Ceiling struct {
	// Annual is the full-year ceiling in HUF.
	Annual int64

	// BusinessStart prorates the ceiling for the start year. Zero
	// means the business existed for every full year queried.
	BusinessStart time.Time
}

func DefaultCeiling() Ceiling {
	return Ceiling{Annual: DefaultAnnualCeiling}
}

// Effective returns the ceiling that owns the given year: the annual
// amount scaled by the whole months from the business start through
// December, rounded to the nearest thousand. The start month counts as
// a full month. Years before the start have a zero ceiling.
func (c Ceiling) Effective(year int) decimal.Decimal {
	annual := decimal.NewFromInt(c.Annual)

	if c.BusinessStart.IsZero() || c.BusinessStart.Year() < year {
		return annual
	}
	if c.BusinessStart.Year() > year {
		return decimal.Zero
	}

	months := int64(13 - int(c.BusinessStart.Month()))
	prorated := annual.Mul(decimal.NewFromInt(months)).Div(decimal.NewFromInt(12))
	return roundToNearest(prorated, ceilingRounding)
}

// YearlyPercent is the share of the year's effective ceiling consumed
// by the year's combined net revenue, in percent.
func (c Ceiling) YearlyPercent(net decimal.Decimal, year int) decimal.Decimal {
	return percentOf(net, c.Effective(year))
}

// MonthlyPercent is the share of one month's slice of the effective
// ceiling consumed by that month's net revenue, in percent.
func (c Ceiling) MonthlyPercent(net decimal.Decimal, year int) decimal.Decimal {
	monthly := c.Effective(year).Div(decimal.NewFromInt(12))
	return percentOf(net, monthly)
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}

func roundToNearest(d decimal.Decimal, step int64) decimal.Decimal {
	s := decimal.NewFromInt(step)
	return d.Div(s).Round(0).Mul(s)
}
