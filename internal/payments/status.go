package payments

import (
	"strings"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// Gateway vocabularies mapped onto the canonical payment status. Lookups are
// case-insensitive; anything missing normalizes to pending.
var (
	phonePeStatuses = map[string]enums.PaymentStatus{
		"PENDING":           enums.PaymentStatusPending,
		"CREATED":           enums.PaymentStatusPending,
		"PAYMENT_PENDING":   enums.PaymentStatusPending,
		"PAYMENT_INITIATED": enums.PaymentStatusPending,
		"COMPLETED":         enums.PaymentStatusCompleted,
		"SUCCESS":           enums.PaymentStatusCompleted,
		"PAYMENT_SUCCESS":   enums.PaymentStatusCompleted,
		"FAILED":            enums.PaymentStatusFailed,
		"PAYMENT_ERROR":     enums.PaymentStatusFailed,
		"PAYMENT_DECLINED":  enums.PaymentStatusFailed,
		"TIMED_OUT":         enums.PaymentStatusFailed,
		"EXPIRED":           enums.PaymentStatusFailed,
		"CANCELLED":         enums.PaymentStatusFailed,
		"REFUNDED":          enums.PaymentStatusRefunded,
		"REFUND_COMPLETED":  enums.PaymentStatusRefunded,
	}

	cashfreeLinkStatuses = map[string]enums.PaymentStatus{
		"ACTIVE":         enums.PaymentStatusPending,
		"PARTIALLY_PAID": enums.PaymentStatusPending,
		"PAID":           enums.PaymentStatusCompleted,
		"EXPIRED":        enums.PaymentStatusFailed,
		"CANCELLED":      enums.PaymentStatusFailed,
	}

	cashfreePaymentStatuses = map[string]enums.PaymentStatus{
		"PENDING":       enums.PaymentStatusPending,
		"NOT_ATTEMPTED": enums.PaymentStatusPending,
		"FLAGGED":       enums.PaymentStatusPending,
		"SUCCESS":       enums.PaymentStatusCompleted,
		"FAILED":        enums.PaymentStatusFailed,
		"USER_DROPPED":  enums.PaymentStatusFailed,
		"CANCELLED":     enums.PaymentStatusFailed,
		"VOID":          enums.PaymentStatusFailed,
		"REFUNDED":      enums.PaymentStatusRefunded,
	}
)

// NormalizePhonePe maps a PhonePe order or webhook state. known is false when the
// raw value is not in the table.
func NormalizePhonePe(raw string) (status enums.PaymentStatus, known bool) {
	return normalize(phonePeStatuses, raw)
}

// NormalizeCashfreeLink maps a payment link status.
func NormalizeCashfreeLink(raw string) (enums.PaymentStatus, bool) {
	return normalize(cashfreeLinkStatuses, raw)
}

// NormalizeCashfreePayment maps the payment_status carried by Cashfree webhooks.
func NormalizeCashfreePayment(raw string) (enums.PaymentStatus, bool) {
	return normalize(cashfreePaymentStatuses, raw)
}

func normalize(table map[string]enums.PaymentStatus, raw string) (enums.PaymentStatus, bool) {
	status, ok := table[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return enums.PaymentStatusPending, false
	}
	return status, true
}
