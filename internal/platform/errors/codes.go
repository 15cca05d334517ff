// Package errors provides structured domain errors shared by all services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeEmptySelection     Code = "EMPTY_SELECTION"
	CodeUnsupportedAction  Code = "UNSUPPORTED_ACTION"
	CodeInvalidFilter      Code = "INVALID_FILTER"
	CodeInvalidPageToken   Code = "INVALID_PAGE_TOKEN"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodePayloadTooLarge    Code = "PAYLOAD_TOO_LARGE"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// Billing errors
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodePlanUnavailable     Code = "PLAN_UNAVAILABLE"
	CodeVoucherUnavailable  Code = "VOUCHER_UNAVAILABLE"
	CodeInvoiceSettled      Code = "INVOICE_SETTLED"
	CodePaymentFailed       Code = "PAYMENT_FAILED"

	// Accounting errors
	CodeNoActivePlan        Code = "NO_ACTIVE_PLAN"
	CodeDataExhausted       Code = "DATA_EXHAUSTED"
	CodeDeviceLimitReached  Code = "DEVICE_LIMIT_REACHED"
	CodeDeviceBlocked       Code = "DEVICE_BLOCKED"
	CodeSessionNotActive    Code = "SESSION_NOT_ACTIVE"
	CodeIntegrationDisabled Code = "INTEGRATION_DISABLED"
	CodeUnavailable         Code = "UNAVAILABLE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument,
		CodeEmptySelection,
		CodeUnsupportedAction,
		CodeInvalidFilter,
		CodeInvalidPageToken,
		CodeInsufficientBalance,
		CodeVoucherUnavailable,
		CodePaymentFailed:
		return http.StatusBadRequest

	case CodeInvalidCredentials, CodeUnauthenticated:
		return http.StatusUnauthorized

	case CodePermissionDenied,
		CodeAccountInactive,
		CodeNoActivePlan,
		CodeDataExhausted,
		CodeDeviceLimitReached,
		CodeDeviceBlocked:
		return http.StatusForbidden

	case CodeNotFound, CodePlanUnavailable, CodeSessionNotActive:
		return http.StatusNotFound

	case CodeAlreadyExists, CodeInvoiceSettled:
		return http.StatusConflict

	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge

	case CodeRateLimited:
		return http.StatusTooManyRequests

	case CodeIntegrationDisabled, CodeUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
