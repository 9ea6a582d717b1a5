// Package journal parses the plain cash register journal XML recovered
// from the signed containers into receipt records.
//
// A journal file carries several sections (device data, status rows,
// operational events, receipts); aggregation only consumes the receipt
// entries, everything else passes through untouched.
package journal

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/model"
)

var logger = logrus.WithField("component", "nav.journal")

// receipt element tags inside the ROWS document
const (
	tagReceipt   = "NYN" // one receipt entry
	tagSequence  = "SEQ" // receipt sequence number
	tagTimestamp = "DTS" // receipt timestamp, with source timezone
	tagTotal     = "SUM" // gross total in HUF
	tagCancelled = "CNC" // "1" when the receipt was cancelled
)

// FileMeta is the metadata NAV encodes into the container member name,
// e.g. A29200455_69785346_20251119174852_1079.xml.
type FileMeta struct {
	APNumber   string
	TaxNumber  string
	Date       time.Time
	FileNumber int
}

var fileNamePattern = regexp.MustCompile(`^([A-Z0-9]+)_(\d+)_(\d{14})_(\d+)$`)

// ParseFileName extracts FileMeta from a journal file name. The
// extension and any directory prefix are ignored.
func ParseFileName(name string) (*FileMeta, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}

	m := fileNamePattern.FindStringSubmatch(base)
	if m == nil {
		return nil, errors.Wrap(nav.ErrMalformedJournal, "unrecognised journal file name "+base)
	}

	date, err := time.Parse("20060102150405", m[3])
	if err != nil {
		return nil, errors.Wrap(nav.ErrMalformedJournal, "bad timestamp in file name "+base)
	}
	fileNumber, _ := strconv.Atoi(m[4])

	return &FileMeta{
		APNumber:   m[1],
		TaxNumber:  m[2],
		Date:       date,
		FileNumber: fileNumber,
	}, nil
}

// ParseReceipts reads every receipt entry of a journal document.
// Entries with an unparseable amount or timestamp are skipped with a
// diagnostic; an unparseable document is ErrMalformedJournal.
func ParseReceipts(journalXML []byte) ([]model.ReceiptRecord, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(journalXML); err != nil {
		return nil, errors.Wrap(nav.ErrMalformedJournal, err.Error())
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.Wrap(nav.ErrMalformedJournal, "journal document has no root element")
	}

	var receipts []model.ReceiptRecord
	seq := 0
	for _, el := range findAll(root, tagReceipt) {
		seq++
		rec, err := parseReceipt(el, seq)
		if err != nil {
			logger.WithField("entry", seq).Warnf("Skipping receipt: %v", err)
			continue
		}
		receipts = append(receipts, *rec)
	}
	return receipts, nil
}

func parseReceipt(el *etree.Element, ordinal int) (*model.ReceiptRecord, error) {
	rec := &model.ReceiptRecord{Seq: ordinal}

	if txt := childText(el, tagSequence); txt != "" {
		if n, err := strconv.Atoi(txt); err == nil {
			rec.Seq = n
		}
	}

	dts := childText(el, tagTimestamp)
	if dts == "" {
		return nil, errors.New("missing timestamp")
	}
	t, err := parseReceiptTime(dts)
	if err != nil {
		return nil, errors.Wrap(err, "timestamp")
	}
	rec.Time = t

	sum := childText(el, tagTotal)
	if sum == "" {
		return nil, errors.New("missing total")
	}
	amount, err := strconv.ParseInt(sum, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "total")
	}
	rec.Amount = amount

	rec.Cancelled = childText(el, tagCancelled) == "1"
	return rec, nil
}

// parseReceiptTime keeps the source timezone: receipts are booked on
// the local calendar day they were printed.
func parseReceiptTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "20060102150405"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func childText(el *etree.Element, tag string) string {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c.Text()
		}
	}
	return ""
}

func findAll(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	if el.Tag == tag {
		out = append(out, el)
	}
	for _, c := range el.ChildElements() {
		out = append(out, findAll(c, tag)...)
	}
	return out
}
