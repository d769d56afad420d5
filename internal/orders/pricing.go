package orders

import "github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"

const (
	MinOrderGrams = 1000
	MaxOrderGrams = 10000
)

// PriceForWeight maps a parcel weight to its price tier in whole currency
// units. Tier edges are inclusive on the upper bound.
func PriceForWeight(grams int) (int, error) {
	switch {
	case grams < 1 || grams > MaxOrderGrams:
		return 0, apperr.New(apperr.KindInvalidWeight, "priceForWeight")
	case grams <= 3000:
		return 3, nil
	case grams <= 7000:
		return 7, nil
	default:
		return 10, nil
	}
}

// OrderDeposit is the value attached to create_order: the price plus one
// unit reserved for storage and later feedback.
func OrderDeposit(price int) int { return price + 1 }
