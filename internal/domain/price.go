package domain

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// PriceChanged compares the submitted price text with the text form of the
// stored price. "12.99" against a stored 12.99 is unchanged, "12.990" is a
// change even though the value is equal.
func PriceChanged(submitted string, existing decimal.Decimal) bool {
	return submitted != existing.String()
}

// FormatPrice renders price in the given ISO currency, e.g. "$12.99".
// Unknown currencies fall back to two decimals.
func FormatPrice(price decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return price.StringFixed(2)
	}

	amount := price.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(amount, cur.Code).Display()
}
