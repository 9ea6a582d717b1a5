package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/model"
	"github.com/irvolta/go-nav-client/nav/tpl"
	"github.com/irvolta/go-nav-client/nav/util"
)

const digestEndpoint = "/queryInvoiceDigest"

// MaxDigestPages is the safety ceiling on the pagination loop. NAV has
// never reported more pages for a single month in practice.
const MaxDigestPages = 100

const dateLayout = "2006-01-02"

type InvoiceService interface {
	// QueryInvoiceDigest fetches one page of outbound invoice digests
	// for the issue date range. Pages are one-based.
	QueryInvoiceDigest(ctx context.Context, creds model.Credentials, dateFrom, dateTo time.Time, page int) (*model.DigestPage, error)

	// QueryAllInvoiceDigests walks all pages of the range in increasing
	// page order and returns the concatenated digests.
	QueryAllInvoiceDigests(ctx context.Context, creds model.Credentials, dateFrom, dateTo time.Time) ([]model.InvoiceDigestRecord, error)
}

type invoice struct {
	client   Client
	baseURL  string
	software model.Software
}

func NewInvoiceService(client Client, env nav.Environment) InvoiceService {
	return &invoice{
		client:   client,
		baseURL:  env.InvoiceBaseURL(),
		software: model.DefaultSoftware(),
	}
}

func (s *invoice) QueryInvoiceDigest(ctx context.Context, creds model.Credentials, dateFrom, dateTo time.Time, page int) (*model.DigestPage, error) {

	if page < 1 {
		return nil, errors.New("digest pages are one-based")
	}

	req, err := newSignedRequest(creds, s.software)
	if err != nil {
		return nil, err
	}
	req.Page = page
	req.Direction = "OUTBOUND"
	req.DateFrom = dateFrom.Format(dateLayout)
	req.DateTo = dateTo.Format(dateLayout)

	body, err := util.MergeTemplate(&tpl.QueryInvoiceDigestRequest, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.PostXML(ctx, s.baseURL+digestEndpoint, contentTypeXML, body)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if perr := doc.ReadFromBytes(resp.Body()); perr != nil {
		if resp.StatusCode() != http.StatusOK {
			return nil, errors.Wrap(nav.ErrServiceUnavailable, fmt.Sprintf("HTTP %d", resp.StatusCode()))
		}
		return nil, errors.Wrap(nav.ErrMalformedResponse, perr.Error())
	}
	if err := checkResult(doc.Root()); err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Wrap(nav.ErrServiceUnavailable, fmt.Sprintf("HTTP %d", resp.StatusCode()))
	}

	return parseDigestPage(doc.Root(), page)
}

func parseDigestPage(root *etree.Element, page int) (*model.DigestPage, error) {
	result := firstLocal(root, "invoiceDigestResult")
	if result == nil {
		return nil, errors.Wrap(nav.ErrMalformedResponse, "missing invoiceDigestResult")
	}

	out := &model.DigestPage{CurrentPage: page, AvailablePage: page}
	if n, ok := localInt(result, "currentPage"); ok {
		out.CurrentPage = n
	}
	if n, ok := localInt(result, "availablePage"); ok {
		out.AvailablePage = n
	}

	for _, el := range allLocal(result, "invoiceDigest") {
		rec, err := parseDigest(el)
		if err != nil {
			logger.WithField("invoice", localText(el, "invoiceNumber")).
				Warnf("Skipping unparseable digest entry: %v", err)
			continue
		}
		out.Digests = append(out.Digests, rec)
	}
	return out, nil
}

func parseDigest(el *etree.Element) (model.InvoiceDigestRecord, error) {
	rec := model.InvoiceDigestRecord{
		InvoiceNumber: localText(el, "invoiceNumber"),
		Operation:     model.InvoiceOperation(localText(el, "invoiceOperation")),
	}
	if rec.Operation == "" {
		rec.Operation = model.OperationCreate
	}

	if txt := localText(el, "invoiceNetAmountHUF"); txt != "" {
		amount, err := decimal.NewFromString(txt)
		if err != nil {
			return rec, fmt.Errorf("invoiceNetAmountHUF %q: %w", txt, err)
		}
		rec.NetAmount = amount
	}

	if txt := localText(el, "invoiceIssueDate"); txt != "" {
		t, err := time.Parse(dateLayout, txt)
		if err != nil {
			return rec, fmt.Errorf("invoiceIssueDate %q: %w", txt, err)
		}
		rec.IssueDate = t
	}

	// delivery date is informational for CREATE but decides cross-year
	// classification for corrections; tolerate its absence
	if txt := localText(el, "invoiceDeliveryDate"); txt != "" {
		if t, err := time.Parse(dateLayout, txt); err == nil {
			rec.DeliveryDate = t
		}
	}

	return rec, nil
}

func (s *invoice) QueryAllInvoiceDigests(ctx context.Context, creds model.Credentials, dateFrom, dateTo time.Time) ([]model.InvoiceDigestRecord, error) {

	var all []model.InvoiceDigestRecord

	for page := 1; page <= MaxDigestPages; page++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := s.QueryInvoiceDigest(ctx, creds, dateFrom, dateTo, page)
		if err != nil {
			return nil, err
		}

		log.Debugf("Digest page %d/%d: %d invoices", result.CurrentPage, result.AvailablePage, len(result.Digests))

		// NAV does not promise trailing pages are non-empty; stop
		// rather than loop on an empty one
		if len(result.Digests) == 0 {
			break
		}
		all = append(all, result.Digests...)

		if page >= result.AvailablePage {
			break
		}
	}

	return all, nil
}
