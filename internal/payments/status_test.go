package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
)

func TestNormalizationTablesCoverCanonicalStatuses(t *testing.T) {
	tables := map[string]map[string]enums.PaymentStatus{
		"phonepe":          phonePeStatuses,
		"cashfree_link":    cashfreeLinkStatuses,
		"cashfree_payment": cashfreePaymentStatuses,
	}
	for name, table := range tables {
		seen := map[enums.PaymentStatus]bool{}
		for raw, status := range table {
			assert.True(t, status.IsValid(), "%s: %s", name, raw)
			seen[status] = true
		}
		assert.True(t, seen[enums.PaymentStatusPending], name)
		assert.True(t, seen[enums.PaymentStatusCompleted], name)
		assert.True(t, seen[enums.PaymentStatusFailed], name)
	}
}

func TestNormalizeIsCaseInsensitiveAndDefaultsToPending(t *testing.T) {
	cases := []struct {
		fn    func(string) (enums.PaymentStatus, bool)
		raw   string
		want  enums.PaymentStatus
		known bool
	}{
		{NormalizePhonePe, "completed", enums.PaymentStatusCompleted, true},
		{NormalizePhonePe, " FAILED ", enums.PaymentStatusFailed, true},
		{NormalizePhonePe, "SOMETHING_NEW", enums.PaymentStatusPending, false},
		{NormalizeCashfreeLink, "paid", enums.PaymentStatusCompleted, true},
		{NormalizeCashfreeLink, "PARTIALLY_PAID", enums.PaymentStatusPending, true},
		{NormalizeCashfreeLink, "", enums.PaymentStatusPending, false},
		{NormalizeCashfreePayment, "USER_DROPPED", enums.PaymentStatusFailed, true},
		{NormalizeCashfreePayment, "success", enums.PaymentStatusCompleted, true},
	}
	for _, tc := range cases {
		got, known := tc.fn(tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
		assert.Equal(t, tc.known, known, tc.raw)
	}
}

func TestClassifySoftErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("call: %w", httpclient.ErrEmptyBody), ErrTypeEmptyResponse},
		{&httpclient.StatusError{StatusCode: 404}, ErrTypeNotFound},
		{&httpclient.StatusError{StatusCode: 502}, ErrTypeHTTP},
		{&httpclient.DecodeError{Err: errors.New("bad json")}, ErrTypeInvalidResponse},
		{&url.Error{Op: "Get", URL: "https://gw", Err: errors.New("connection refused")}, ErrTypeConnection},
		{context.DeadlineExceeded, ErrTypeConnection},
		{errors.New("weird"), ErrTypeUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.err).Type, tc.err.Error())
	}
}
