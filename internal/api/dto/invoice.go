package dto

import (
	"github.com/shopspring/decimal"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/invoice"
)

type InvoiceResponse struct {
	*invoice.Invoice

	// Amount is the amount due in major currency units, derived from the
	// stored minor-unit amount for display.
	Amount decimal.Decimal `json:"amount"`
}

func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	return &InvoiceResponse{
		Invoice: inv,
		Amount:  inv.DisplayAmount(),
	}
}

type ListInvoicesResponse struct {
	Items []*InvoiceResponse `json:"items"`
	Total int                `json:"total"`
}
