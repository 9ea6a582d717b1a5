package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/aggregate"
	"github.com/irvolta/go-nav-client/nav/model"
	"github.com/irvolta/go-nav-client/nav/sync"
	"github.com/irvolta/go-nav-client/nav/util"
)

func main() {

	logrus.SetLevel(logrus.DebugLevel)

	creds := model.Credentials{
		Login:       util.GetEnvOrFailed("NAV_LOGIN"),
		Password:    util.GetEnvOrFailed("NAV_PASSWORD"),
		SignKey:     util.GetEnvOrFailed("NAV_SIGN_KEY"),
		ExchangeKey: util.GetEnvOrFailed("NAV_EXCHANGE_KEY"),
		TaxNumber:   util.NormalizeTaxNumber(util.GetEnvOrFailed("NAV_TAX_NUMBER")),
	}
	ap := util.GetEnvOrFailed("NAV_AP_NUMBER")

	services := sync.NewServices(nav.Prod)
	year := time.Now().Year()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	registerReport, err := sync.Register(ctx, services, creds, ap, 0, year)
	if err != nil {
		panic(err)
	}

	fmt.Printf("AP %s: files %d-%d available\n", ap, registerReport.Range.Min, registerReport.Range.Max)
	for _, agg := range registerReport.Aggregates() {
		fmt.Printf("  file %d (%s): %d receipts, %d Ft\n",
			agg.FileNumber, agg.Date.Format("2006-01-02"), agg.ReceiptCount, agg.TotalAmount)
	}
	if failed := registerReport.Failed(); failed > 0 {
		fmt.Printf("  %d files failed, see log\n", failed)
	}

	invoiceReport, err := sync.Invoices(ctx, services, creds, year, aggregate.DefaultCeiling())
	if err != nil {
		panic(err)
	}

	for _, m := range invoiceReport.Months {
		if m.Err != nil {
			fmt.Printf("%s: query failed: %v\n", m.Month, m.Err)
			continue
		}
		fmt.Printf("%s: %d invoices, net %s Ft, KATA %s%%\n",
			m.Month, m.Summary.TotalInvoices, m.Summary.NetAmount, m.KataPercent.StringFixed(2))
	}
	fmt.Printf("%d total: net %s Ft, KATA %s%%\n",
		year, invoiceReport.Yearly.NetAmount, invoiceReport.YearlyKataPercent.StringFixed(2))
}
