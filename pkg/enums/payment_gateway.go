package enums

import (
	"fmt"
	"strings"
)

// PaymentGateway names the external processor that owns a payment's transaction id.
type PaymentGateway string

const (
	PaymentGatewayPhonePe  PaymentGateway = "phonepe"
	PaymentGatewayCashfree PaymentGateway = "cashfree"
)

var validPaymentGateways = []PaymentGateway{
	PaymentGatewayPhonePe,
	PaymentGatewayCashfree,
}

// String implements fmt.Stringer.
func (g PaymentGateway) String() string {
	return string(g)
}

// IsValid reports whether the value is a known PaymentGateway.
func (g PaymentGateway) IsValid() bool {
	for _, candidate := range validPaymentGateways {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParsePaymentGateway accepts any casing ("PhonePe", "CASHFREE").
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentGateways {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment gateway %q", value)
}

// PaymentPlatform records which client surface initiated a payment.
type PaymentPlatform string

const (
	PaymentPlatformWeb    PaymentPlatform = "web"
	PaymentPlatformMobile PaymentPlatform = "mobile"
	PaymentPlatformAPI    PaymentPlatform = "api"
)

var validPaymentPlatforms = []PaymentPlatform{
	PaymentPlatformWeb,
	PaymentPlatformMobile,
	PaymentPlatformAPI,
}

func (p PaymentPlatform) String() string {
	return string(p)
}

func (p PaymentPlatform) IsValid() bool {
	for _, candidate := range validPaymentPlatforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentPlatform converts raw input into a PaymentPlatform.
func ParsePaymentPlatform(value string) (PaymentPlatform, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentPlatforms {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment platform %q", value)
}
