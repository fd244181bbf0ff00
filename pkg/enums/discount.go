package enums

import "fmt"

// DiscountType selects how a coupon's discount_value is interpreted.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

// CouponType scopes a coupon to a whole cart or to one product.
type CouponType string

const (
	CouponTypeProduct CouponType = "product"
	CouponTypeCart    CouponType = "cart"
)

func (c CouponType) IsValid() bool {
	return c == CouponTypeProduct || c == CouponTypeCart
}

// OfferType selects the offer evaluation strategy.
type OfferType string

const (
	OfferTypeBuyXGetY OfferType = "buy_x_get_y"
	OfferTypeBundle   OfferType = "bundle"
	OfferTypeDiscount OfferType = "discount"
)

var validOfferTypes = []OfferType{
	OfferTypeBuyXGetY,
	OfferTypeBundle,
	OfferTypeDiscount,
}

// String implements fmt.Stringer.
func (o OfferType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OfferType.
func (o OfferType) IsValid() bool {
	for _, candidate := range validOfferTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOfferType converts raw input into an OfferType.
func ParseOfferType(value string) (OfferType, error) {
	for _, candidate := range validOfferTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer type %q", value)
}

type OfferScope string

const (
	OfferScopeCart    OfferScope = "cart"
	OfferScopeProduct OfferScope = "product"
)

func (o OfferScope) IsValid() bool {
	return o == OfferScopeCart || o == OfferScopeProduct
}
