package strike

import (
	"context"
	"fmt"
	"net/url"
)

// InvoiceRequest creates a receive invoice.
type InvoiceRequest struct {
	CorrelationID string `json:"correlationId,omitempty"`
	Description   string `json:"description,omitempty"`
	Amount        Amount `json:"amount"`
}

// Invoice is the API representation of an invoice.
type Invoice struct {
	InvoiceID   string       `json:"invoiceId"`
	Amount      Amount       `json:"amount"`
	State       InvoiceState `json:"state"`
	Created     string       `json:"created"`
	Description string       `json:"description,omitempty"`
	IssuerID    string       `json:"issuerId"`
	ReceiverID  string       `json:"receiverId"`
}

// InvoiceQuote carries the bolt11 invoice a payer settles.
type InvoiceQuote struct {
	QuoteID         string         `json:"quoteId"`
	Description     string         `json:"description,omitempty"`
	LnInvoice       string         `json:"lnInvoice"`
	OnchainAddress  string         `json:"onchainAddress,omitempty"`
	Expiration      string         `json:"expiration"`
	ExpirationInSec uint64         `json:"expirationInSec"`
	SourceAmount    Amount         `json:"sourceAmount"`
	TargetAmount    Amount         `json:"targetAmount"`
	ConversionRate  ConversionRate `json:"conversionRate"`
}

// CreateInvoice creates an invoice.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	var inv Invoice
	if err := c.Post(ctx, "/v1/invoices", req, &inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return &inv, nil
}

// FindInvoice fetches an invoice by id.
func (c *Client) FindInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("find invoice: invoice id is empty")
	}
	var inv Invoice
	if err := c.Get(ctx, "/v1/invoices/"+url.PathEscape(invoiceID), &inv); err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", invoiceID, err)
	}
	return &inv, nil
}

// InvoiceQuote generates a lightning quote for an invoice.
func (c *Client) InvoiceQuote(ctx context.Context, invoiceID string) (*InvoiceQuote, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("invoice quote: invoice id is empty")
	}
	var q InvoiceQuote
	if err := c.Post(ctx, "/v1/invoices/"+url.PathEscape(invoiceID)+"/quote", nil, &q); err != nil {
		return nil, fmt.Errorf("invoice quote %s: %w", invoiceID, err)
	}
	return &q, nil
}
