package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/model"
)

func newTestInvoiceService(t *testing.T, handler http.HandlerFunc) InvoiceService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &invoice{
		client:   New(),
		baseURL:  server.URL,
		software: model.DefaultSoftware(),
	}
}

func digestEntry(number, operation, amount, delivery string) string {
	var b strings.Builder
	b.WriteString("<invoiceDigest>")
	fmt.Fprintf(&b, "<invoiceNumber>%s</invoiceNumber>", number)
	fmt.Fprintf(&b, "<invoiceOperation>%s</invoiceOperation>", operation)
	b.WriteString("<invoiceIssueDate>2025-03-10</invoiceIssueDate>")
	if delivery != "" {
		fmt.Fprintf(&b, "<invoiceDeliveryDate>%s</invoiceDeliveryDate>", delivery)
	}
	fmt.Fprintf(&b, "<invoiceNetAmountHUF>%s</invoiceNetAmountHUF>", amount)
	b.WriteString("</invoiceDigest>")
	return b.String()
}

func digestResponse(currentPage, availablePage int, entries ...string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<QueryInvoiceDigestResponse xmlns="http://schemas.nav.gov.hu/OSA/3.0/api" xmlns:common="http://schemas.nav.gov.hu/NTCA/1.0/common">
  <common:result><common:funcCode>OK</common:funcCode></common:result>
  <invoiceDigestResult>
    <currentPage>%d</currentPage>
    <availablePage>%d</availablePage>
    %s
  </invoiceDigestResult>
</QueryInvoiceDigestResponse>`, currentPage, availablePage, strings.Join(entries, "\n"))
}

var testRange = struct{ from, to time.Time }{
	from: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	to:   time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
}

func TestQueryInvoiceDigest(t *testing.T) {
	var gotBody []byte
	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(digestResponse(1, 1,
			digestEntry("INV-2025-001", "CREATE", "150000", "2025-03-10"),
			digestEntry("INV-2025-002", "STORNO", "-25000", "2024-12-20"),
		)))
	})

	page, err := service.QueryInvoiceDigest(context.Background(), testCreds, testRange.from, testRange.to, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, page.AvailablePage)
	require.Len(t, page.Digests, 2)

	first := page.Digests[0]
	assert.Equal(t, "INV-2025-001", first.InvoiceNumber)
	assert.Equal(t, model.OperationCreate, first.Operation)
	assert.True(t, first.NetAmount.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, "2025-03-10", first.IssueDate.Format("2006-01-02"))

	second := page.Digests[1]
	assert.Equal(t, model.OperationStorno, second.Operation)
	assert.Equal(t, 2024, second.DeliveryDate.Year())

	body := string(gotBody)
	assert.Contains(t, body, "<page>1</page>")
	assert.Contains(t, body, "<invoiceDirection>OUTBOUND</invoiceDirection>")
	assert.Contains(t, body, "<dateFrom>2025-03-01</dateFrom>")
	assert.Contains(t, body, "<dateTo>2025-03-31</dateTo>")
}

func TestQueryInvoiceDigest_DefaultsMissingFields(t *testing.T) {
	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(digestResponse(1, 1,
			"<invoiceDigest><invoiceNumber>INV-NO-OP</invoiceNumber></invoiceDigest>",
		)))
	})

	page, err := service.QueryInvoiceDigest(context.Background(), testCreds, testRange.from, testRange.to, 1)
	require.NoError(t, err)
	require.Len(t, page.Digests, 1)

	rec := page.Digests[0]
	assert.Equal(t, model.OperationCreate, rec.Operation, "missing operation defaults to CREATE")
	assert.True(t, rec.NetAmount.IsZero())
	assert.True(t, rec.DeliveryDate.IsZero())
}

func TestQueryInvoiceDigest_SkipsUnparseableEntries(t *testing.T) {
	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(digestResponse(1, 1,
			digestEntry("INV-GOOD", "CREATE", "1000", ""),
			digestEntry("INV-BAD", "CREATE", "not-a-number", ""),
		)))
	})

	page, err := service.QueryInvoiceDigest(context.Background(), testCreds, testRange.from, testRange.to, 1)
	require.NoError(t, err)

	require.Len(t, page.Digests, 1, "the bad entry is skipped, not fatal")
	assert.Equal(t, "INV-GOOD", page.Digests[0].InvoiceNumber)
}

func TestQueryInvoiceDigest_MissingResult(t *testing.T) {
	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(`<resp><result><funcCode>OK</funcCode></result></resp>`))
	})

	_, err := service.QueryInvoiceDigest(context.Background(), testCreds, testRange.from, testRange.to, 1)
	assert.ErrorIs(t, err, nav.ErrMalformedResponse)
}

func TestQueryInvoiceDigest_Fault(t *testing.T) {
	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(`<GeneralErrorResponse xmlns="http://schemas.nav.gov.hu/NTCA/1.0/common">
  <result>
    <funcCode>ERROR</funcCode>
    <errorCode>INVALID_SECURITY_USER</errorCode>
    <message>Helytelen felhasznalonev vagy jelszo</message>
  </result>
</GeneralErrorResponse>`))
	})

	_, err := service.QueryInvoiceDigest(context.Background(), testCreds, testRange.from, testRange.to, 1)
	assert.ErrorIs(t, err, nav.ErrAuthenticationRejected)
}

func TestQueryAllInvoiceDigests_WalksAllPages(t *testing.T) {
	pageSizes := []int{50, 30, 20}
	var requestedPages []string
	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		page := 0
		for p := 1; p <= 3; p++ {
			if strings.Contains(string(body), fmt.Sprintf("<page>%d</page>", p)) {
				page = p
			}
		}
		require.NotZero(t, page, "request must carry a known page number")
		requestedPages = append(requestedPages, fmt.Sprintf("%d", page))

		entries := make([]string, pageSizes[page-1])
		for i := range entries {
			entries[i] = digestEntry(fmt.Sprintf("INV-%d-%03d", page, i), "CREATE", "10000", "")
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(digestResponse(page, 3, entries...)))
	})

	records, err := service.QueryAllInvoiceDigests(context.Background(), testCreds, testRange.from, testRange.to)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, requestedPages)
	require.Len(t, records, 100)
	assert.Equal(t, "INV-1-000", records[0].InvoiceNumber)
	assert.Equal(t, "INV-3-019", records[99].InvoiceNumber)
}

func TestQueryAllInvoiceDigests_StopsOnEmptyPage(t *testing.T) {
	calls := 0
	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(digestResponse(calls, 5)))
	})

	records, err := service.QueryAllInvoiceDigests(context.Background(), testCreds, testRange.from, testRange.to)
	require.NoError(t, err)

	assert.Empty(t, records)
	assert.Equal(t, 1, calls, "an empty page ends the walk even with pages left")
}

func TestQueryAllInvoiceDigests_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service := newTestInvoiceService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request may be issued on a cancelled context")
	})

	_, err := service.QueryAllInvoiceDigests(ctx, testCreds, testRange.from, testRange.to)
	assert.ErrorIs(t, err, context.Canceled)
}
