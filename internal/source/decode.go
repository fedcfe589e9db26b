// Package source defines the ports to the reporting backend and the payload
// decoding shared by every adapter.
//
// Payloads are JSON arrays of flat objects. A payload that is not an array
// fails the whole fetch. A single object with a malformed field is rejected
// and reported in Batch.Rejected while the rest of the payload is kept.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"eaccountant/internal/core"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	errUnexpectedType   = errors.New("unexpected JSON type")
)

// FieldMap names the JSON fields of a sales record.
type FieldMap struct {
	Category string
	Bucket   string
	Amount   string
	Quantity string
}

// DefaultSalesFields matches the monthly sales endpoint.
func DefaultSalesFields() FieldMap {
	return FieldMap{
		Category: "product",
		Bucket:   "month",
		Amount:   "total_sales",
		Quantity: "total_quantity",
	}
}

// WithDefaults fills empty names from DefaultSalesFields.
func (m FieldMap) WithDefaults() FieldMap {
	def := DefaultSalesFields()
	if m.Category == "" {
		m.Category = def.Category
	}
	if m.Bucket == "" {
		m.Bucket = def.Bucket
	}
	if m.Amount == "" {
		m.Amount = def.Amount
	}
	if m.Quantity == "" {
		m.Quantity = def.Quantity
	}
	return m
}

type object map[string]json.RawMessage

// fieldError carries the field name and raw value of a rejected field.
type fieldError struct {
	field string
	value string
	err   error
}

func (e *fieldError) Error() string { return fmt.Sprintf("%s: %v", e.field, e.err) }
func (e *fieldError) Unwrap() error { return e.err }

func decodeObjects(body []byte) ([]object, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	var rows []object
	if trimmed[0] == '{' {
		// paginated envelope {"results": [...]}
		var page struct {
			Results *[]object `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if page.Results == nil {
			return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedPayload)
		}
		return *page.Results, nil
	}
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return rows, nil
}

// DecodeSales decodes a monthly sales payload.
func DecodeSales(body []byte, fields FieldMap) (core.Batch[core.Record], error) {
	fields = fields.WithDefaults()
	rows, err := decodeObjects(body)
	if err != nil {
		return core.Batch[core.Record]{}, err
	}
	batch := core.Batch[core.Record]{Items: make([]core.Record, 0, len(rows))}
	for i, row := range rows {
		r, err := salesRecord(row, fields)
		if err != nil {
			batch.Rejected = append(batch.Rejected, rejection(i, err))
			continue
		}
		batch.Items = append(batch.Items, r)
	}
	return batch, nil
}

func salesRecord(row object, f FieldMap) (core.Record, error) {
	var r core.Record
	var err error
	if r.Category, err = textField(row, f.Category); err != nil {
		return r, err
	}
	if r.Bucket, err = textField(row, f.Bucket); err != nil {
		return r, err
	}
	if r.TotalAmount, err = amountField(row, f.Amount); err != nil {
		return r, err
	}
	if r.TotalQuantity, err = quantityField(row, f.Quantity); err != nil {
		return r, err
	}
	return r, r.Validate()
}

// DecodeProfits decodes a profit report payload. A missing profit column
// is derived as revenue - cogs - expenses.
func DecodeProfits(body []byte) (core.Batch[core.ProfitRow], error) {
	rows, err := decodeObjects(body)
	if err != nil {
		return core.Batch[core.ProfitRow]{}, err
	}
	batch := core.Batch[core.ProfitRow]{Items: make([]core.ProfitRow, 0, len(rows))}
	for i, row := range rows {
		p, err := profitRow(row)
		if err != nil {
			batch.Rejected = append(batch.Rejected, rejection(i, err))
			continue
		}
		batch.Items = append(batch.Items, p)
	}
	return batch, nil
}

func profitRow(row object) (core.ProfitRow, error) {
	var p core.ProfitRow
	var err error
	if p.Period, err = textField(row, "period"); err != nil {
		return p, err
	}
	if p.Revenue, err = amountField(row, "revenue"); err != nil {
		return p, err
	}
	if p.COGS, err = amountField(row, "cogs"); err != nil {
		return p, err
	}
	if p.Expenses, err = amountField(row, "expenses"); err != nil {
		return p, err
	}
	if present(row, "profit") {
		if p.Profit, err = amountField(row, "profit"); err != nil {
			return p, err
		}
	} else {
		p.Profit = p.NetProfit()
	}
	return p, p.Validate()
}

// DecodeProducts decodes a product list. Prices are optional; when present
// they must parse.
func DecodeProducts(body []byte) (core.Batch[core.Product], error) {
	rows, err := decodeObjects(body)
	if err != nil {
		return core.Batch[core.Product]{}, err
	}
	batch := core.Batch[core.Product]{Items: make([]core.Product, 0, len(rows))}
	for i, row := range rows {
		p, err := product(row)
		if err != nil {
			batch.Rejected = append(batch.Rejected, rejection(i, err))
			continue
		}
		batch.Items = append(batch.Items, p)
	}
	return batch, nil
}

func product(row object) (core.Product, error) {
	var p core.Product
	var err error
	if present(row, "id") {
		if p.ID, err = quantityField(row, "id"); err != nil {
			return p, err
		}
	}
	if p.Name, err = textField(row, "name"); err != nil {
		return p, err
	}
	if present(row, "brand") {
		if p.Brand, err = textField(row, "brand"); err != nil {
			return p, err
		}
	}
	if p.Stock, err = quantityField(row, "stock"); err != nil {
		return p, err
	}
	if present(row, "buying_price") {
		if p.BuyingPrice, err = amountField(row, "buying_price"); err != nil {
			return p, err
		}
	}
	if present(row, "selling_price") {
		if p.SellingPrice, err = amountField(row, "selling_price"); err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

func rejection(index int, err error) core.RecordError {
	var fe *fieldError
	if errors.As(err, &fe) {
		return core.RecordError{Index: index, Field: fe.field, Value: fe.value, Err: fe.err}
	}
	return core.RecordError{Index: index, Err: err}
}

func present(row object, name string) bool {
	raw, ok := row[name]
	return ok && string(bytes.TrimSpace(raw)) != "null"
}

// scalar returns the text of a JSON string or number field.
func scalar(row object, name string) (string, error) {
	raw, ok := row[name]
	if !ok {
		return "", &fieldError{field: name, err: core.ErrMissingField}
	}
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return "", &fieldError{field: name, err: core.ErrMissingField}
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &fieldError{field: name, value: string(raw), err: err}
		}
		return s, nil
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		return string(raw), nil
	default:
		return "", &fieldError{field: name, value: string(raw), err: errUnexpectedType}
	}
}

func textField(row object, name string) (string, error) {
	s, err := scalar(row, name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func amountField(row object, name string) (decimal.Decimal, error) {
	s, err := scalar(row, name)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, &fieldError{field: name, value: s, err: core.ErrInvalidAmount}
	}
	return d, nil
}

func quantityField(row object, name string) (int64, error) {
	s, err := scalar(row, name)
	if err != nil {
		return 0, err
	}
	q, err := core.ParseQuantity(s)
	if err != nil {
		return 0, &fieldError{field: name, value: s, err: core.ErrInvalidQuantity}
	}
	return q, nil
}
