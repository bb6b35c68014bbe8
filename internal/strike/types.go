package strike

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Currency is an ISO-style currency code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	BTC Currency = "BTC"
)

const satsPerBTC = 100_000_000

// Amount is a value in a currency. The API encodes the value as a decimal string.
type Amount struct {
	Currency Currency
	Amount   float64
}

// AmountFromSats converts satoshis to a BTC amount.
func AmountFromSats(sats uint64) Amount {
	return Amount{Currency: BTC, Amount: float64(sats) / satsPerBTC}
}

// ToSats converts a BTC amount to satoshis.
func (a Amount) ToSats() (uint64, error) {
	if a.Currency != BTC {
		return 0, fmt.Errorf("%s amount cannot be converted to sats", a.Currency)
	}
	if a.Amount < 0 {
		return 0, fmt.Errorf("negative amount %v", a.Amount)
	}
	return uint64(math.Round(a.Amount * satsPerBTC)), nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Currency Currency `json:"currency"`
		Amount   string   `json:"amount"`
	}{a.Currency, strconv.FormatFloat(a.Amount, 'f', -1, 64)})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw struct {
		Currency Currency        `json:"currency"`
		Amount   json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := parseDecimal(raw.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	a.Currency = raw.Currency
	a.Amount = v
	return nil
}

// ConversionRate is the exchange rate applied to a quote.
type ConversionRate struct {
	Amount         float64
	SourceCurrency Currency
	TargetCurrency Currency
}

func (r *ConversionRate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount         json.RawMessage `json:"amount"`
		SourceCurrency Currency        `json:"sourceCurrency"`
		TargetCurrency Currency        `json:"targetCurrency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := parseDecimal(raw.Amount)
	if err != nil {
		return fmt.Errorf("conversion rate: %w", err)
	}
	*r = ConversionRate{Amount: v, SourceCurrency: raw.SourceCurrency, TargetCurrency: raw.TargetCurrency}
	return nil
}

func (r ConversionRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount         string   `json:"amount"`
		SourceCurrency Currency `json:"sourceCurrency"`
		TargetCurrency Currency `json:"targetCurrency"`
	}{strconv.FormatFloat(r.Amount, 'f', -1, 64), r.SourceCurrency, r.TargetCurrency})
}

// parseDecimal accepts a quoted decimal string or a bare JSON number.
func parseDecimal(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing value")
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	} else {
		s = string(raw)
	}
	return strconv.ParseFloat(s, 64)
}

// InvoiceState is the lifecycle state of an invoice.
type InvoiceState string

const (
	InvoiceCompleted InvoiceState = "COMPLETED"
	InvoicePaid      InvoiceState = "PAID"
	InvoiceUnpaid    InvoiceState = "UNPAID"
	InvoicePending   InvoiceState = "PENDING"
)
