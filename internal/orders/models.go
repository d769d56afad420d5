package orders

import (
	"github.com/ariefcatur/go-delivery-ledger.git/internal/money"
	"strings"
)

type PaymentType string

const PaymentPrepaid PaymentType = "Prepaid"

type Feedback string

const (
	FeedbackNone      Feedback = "None"
	FeedbackExcellent Feedback = "Excellent"
	FeedbackGood      Feedback = "Good"
	FeedbackAverage   Feedback = "Average"
	FeedbackBad       Feedback = "Bad"
	FeedbackWorst     Feedback = "Worst"
)

func (f Feedback) Valid() bool {
	switch f {
	case FeedbackNone, FeedbackExcellent, FeedbackGood, FeedbackAverage, FeedbackBad, FeedbackWorst:
		return true
	}
	return false
}

// Customer is the profile stored by the contract. Timestamps are
// nanoseconds since the epoch.
type Customer struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Phone                 string `json:"phone"`
	Email                 string `json:"email"`
	FullAddress           string `json:"full_address"`
	Landmark              string `json:"landmark"`
	GooglePlusCodeAddress string `json:"google_plus_code_address"`
	Role                  string `json:"role,omitempty"`
	Created               uint64 `json:"created,omitempty"`
	Updated               uint64 `json:"updated,omitempty"`
}

// Missing reports whether c stands for an account without a stored profile.
// The contract has no flag for it; a profile exists only when name, role and
// full_address are all present.
func (c *Customer) Missing() bool {
	if c == nil {
		return true
	}
	return blank(c.Name) || blank(c.Role) || blank(c.FullAddress)
}

type Order struct {
	ID                      string      `json:"id"`
	CustomerID              string      `json:"customer_id"`
	Description             string      `json:"description"`
	WeightInGrams           int         `json:"weight_in_grams"`
	PriceInSmallestUnit     string      `json:"price_in_yocto_near"`
	PaymentType             PaymentType `json:"payment_type"`
	Status                  Status      `json:"status"`
	CustomerFeedback        Feedback    `json:"customer_feedback"`
	CustomerFeedbackComment string      `json:"customer_feedback_comment"`
	PickupDateTime          uint64      `json:"pickup_date_time"`
	DeliveryDateTime        uint64      `json:"delivery_date_time,omitempty"`
}

// Price renders the stored smallest-unit price as a decimal amount.
func (o Order) Price() (string, error) { return money.FromSmallestUnit(o.PriceInSmallestUnit) }

func blank(s string) bool { return strings.TrimSpace(s) == "" }
