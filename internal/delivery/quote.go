package delivery

import (
	"github.com/ariefcatur/go-delivery-ledger.git/internal/money"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/orders"
	"strconv"
)

// PriceQuote is what an order of the given weight would cost.
type PriceQuote struct {
	WeightInGrams         int    `json:"weight_in_grams"`
	Price                 int    `json:"price"`
	Deposit               int    `json:"deposit"`
	PriceInSmallestUnit   string `json:"price_in_yocto_near"`
	DepositInSmallestUnit string `json:"deposit_in_yocto_near"`
}

func Quote(grams int) (PriceQuote, error) {
	price, err := orders.PriceForWeight(grams)
	if err != nil {
		return PriceQuote{}, err
	}
	deposit := orders.OrderDeposit(price)
	q := PriceQuote{WeightInGrams: grams, Price: price, Deposit: deposit}
	if q.PriceInSmallestUnit, err = money.ToSmallestUnit(strconv.Itoa(price)); err != nil {
		return PriceQuote{}, err
	}
	q.DepositInSmallestUnit = money.Units(int64(deposit))
	return q, nil
}
