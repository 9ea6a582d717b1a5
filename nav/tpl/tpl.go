// Package tpl holds the embedded XML request templates. The templates
// carry the exact element order NAV validates against; they are merged
// with request data via util.MergeTemplate.
package tpl

import _ "embed"

//go:embed QueryCashRegisterStatusRequest.xml
var QueryCashRegisterStatusRequest string

//go:embed QueryCashRegisterFileDataRequest.xml
var QueryCashRegisterFileDataRequest string

//go:embed QueryInvoiceDigestRequest.xml
var QueryInvoiceDigestRequest string
