package nav

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_AuthFaultsUnwrap(t *testing.T) {
	for _, code := range []string{"INVALID_SECURITY_USER", "INVALID_REQUEST_SIGNATURE", "NOT_REGISTERED_CUSTOMER"} {
		err := &APIError{FuncCode: "ERROR", ErrorCode: code, Message: "rejected"}
		assert.ErrorIs(t, err, ErrAuthenticationRejected, "code %s", code)
	}
}

func TestAPIError_OtherFaultsDoNotUnwrap(t *testing.T) {
	err := &APIError{FuncCode: "ERROR", ErrorCode: "OPERATION_FAILED", Message: "boom"}

	assert.False(t, errors.Is(err, ErrAuthenticationRejected))
	assert.Contains(t, err.Error(), "OPERATION_FAILED")
}

func TestEnvironment_BaseURLs(t *testing.T) {
	assert.Contains(t, Prod.CashRegisterBaseURL(), "api-onlinepenztargep")
	assert.Contains(t, Test.CashRegisterBaseURL(), "api-test-onlinepenztargep")
	assert.Contains(t, Prod.InvoiceBaseURL(), "/invoiceService/v3")
	assert.Contains(t, Test.InvoiceBaseURL(), "api-test")
}

func TestEnvironment_UnmarshalText(t *testing.T) {
	var e Environment

	require.NoError(t, e.UnmarshalText([]byte(" Prod ")))
	assert.Equal(t, Prod, e)

	require.NoError(t, e.UnmarshalText([]byte("test")))
	assert.Equal(t, Test, e)

	assert.Error(t, e.UnmarshalText([]byte("staging")))
}
