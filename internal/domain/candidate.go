package domain

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Candidate is the raw add-product form. All fields are text, as typed.
type Candidate struct {
	Name     string `json:"name" form:"name" validate:"notblank,max=200"`
	Quantity string `json:"quantity" form:"quantity" validate:"notblank"`
	Price    string `json:"price" form:"price" validate:"notblank"`
}

// ParsedCandidate holds the typed values of a Candidate that passed Parse.
type ParsedCandidate struct {
	Name           string
	Quantity       int64
	Price          decimal.Decimal
	SubmittedPrice string
}

// Validate fails with ErrValidation when any field is empty or whitespace only.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Name) == "" ||
		strings.TrimSpace(c.Quantity) == "" ||
		strings.TrimSpace(c.Price) == "" {
		return &ValidationError{Message: MsgFillAllFields}
	}

	return nil
}

// Parse validates and converts the text fields.
func (c Candidate) Parse() (ParsedCandidate, error) {
	if err := c.Validate(); err != nil {
		return ParsedCandidate{}, err
	}

	qty, err := strconv.ParseInt(strings.TrimSpace(c.Quantity), 10, 64)
	if err != nil || qty < 0 {
		return ParsedCandidate{}, &ValidationError{Message: "Quantity must be a whole number of zero or more"}
	}

	price, err := decimal.NewFromString(strings.TrimSpace(c.Price))
	if err != nil || price.IsNegative() {
		return ParsedCandidate{}, &ValidationError{Message: "Price must be a number of zero or more"}
	}

	return ParsedCandidate{
		Name:           c.Name,
		Quantity:       qty,
		Price:          price,
		SubmittedPrice: c.Price,
	}, nil
}
