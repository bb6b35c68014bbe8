package strike

import (
	"context"
	"fmt"
	"net/url"
)

// PaymentQuoteRequest asks for a quote to pay a bolt11 invoice.
type PaymentQuoteRequest struct {
	LnInvoice      string   `json:"lnInvoice"`
	SourceCurrency Currency `json:"sourceCurrency"`
}

type PaymentQuote struct {
	PaymentQuoteID      string          `json:"paymentQuoteId"`
	Description         string          `json:"description,omitempty"`
	ValidUntil          string          `json:"validUntil"`
	ConversionRate      *ConversionRate `json:"conversionRate,omitempty"`
	Amount              Amount          `json:"amount"`
	LightningNetworkFee Amount          `json:"lightningNetworkFee"`
	TotalAmount         Amount          `json:"totalAmount"`
}

type Payment struct {
	PaymentID           string          `json:"paymentId"`
	State               InvoiceState    `json:"state"`
	Completed           string          `json:"completed,omitempty"`
	ConversionRate      *ConversionRate `json:"conversionRate,omitempty"`
	Amount              Amount          `json:"amount"`
	LightningNetworkFee Amount          `json:"lightningNetworkFee"`
	TotalAmount         Amount          `json:"totalAmount"`
}

// PaymentQuote quotes the cost of paying a lightning invoice.
func (c *Client) PaymentQuote(ctx context.Context, req PaymentQuoteRequest) (*PaymentQuote, error) {
	if req.LnInvoice == "" {
		return nil, fmt.Errorf("payment quote: lightning invoice is empty")
	}
	var q PaymentQuote
	if err := c.Post(ctx, "/v1/payment-quotes/lightning", req, &q); err != nil {
		return nil, fmt.Errorf("payment quote: %w", err)
	}
	return &q, nil
}

// PayQuote executes a payment quote.
func (c *Client) PayQuote(ctx context.Context, paymentQuoteID string) (*Payment, error) {
	if paymentQuoteID == "" {
		return nil, fmt.Errorf("pay quote: payment quote id is empty")
	}
	var p Payment
	path := "/v1/payment-quotes/" + url.PathEscape(paymentQuoteID) + "/execute"
	if err := c.Patch(ctx, path, nil, &p); err != nil {
		return nil, fmt.Errorf("pay quote %s: %w", paymentQuoteID, err)
	}
	return &p, nil
}
