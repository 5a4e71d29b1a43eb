// Package pricing turns cart lines into priced delivery lines. It is pure
// over a catalog snapshot: the server prices authoritatively with it and the
// field client reuses it for offline estimates, so the two can never
// disagree on the packaging rules.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/refill/internal/domain/models"
)

// ErrInvalidQuantity indicates a quantity outside the packaging's rules.
var ErrInvalidQuantity = errors.New("invalid quantity")

// LineRequest is one unpriced cart entry. Packaging is optional; when empty
// the item's catalog packaging applies.
type LineRequest struct {
	Item      models.Item
	Quantity  float64
	Packaging models.Packaging
}

// Price computes the priced line for a single request. Packaging "each"
// requires a whole quantity of at least 1; "case" accepts any quantity above
// zero, fractions included. The unit price is always the item's current
// price per pack; client-supplied prices are ignored.
func Price(req LineRequest) (models.DeliveryLine, error) {
	packaging := req.Packaging
	if packaging == "" {
		packaging = req.Item.Packaging
	}
	if !packaging.Valid() {
		return models.DeliveryLine{}, fmt.Errorf("%w: packaging %q", ErrInvalidQuantity, packaging)
	}

	qty := decimal.NewFromFloat(req.Quantity)
	if qty.LessThanOrEqual(decimal.Zero) {
		return models.DeliveryLine{}, fmt.Errorf("%w: quantity must be > 0", ErrInvalidQuantity)
	}
	if packaging == models.PackagingEach && !qty.IsInteger() {
		return models.DeliveryLine{}, fmt.Errorf("%w: quantity for each-packaged items must be a whole number", ErrInvalidQuantity)
	}

	unitPrice := decimal.NewFromFloat(req.Item.PricePerPack)
	lineTotal := unitPrice.Mul(qty).Round(2)

	return models.DeliveryLine{
		Item:      req.Item.ID,
		Quantity:  req.Quantity,
		Packaging: packaging,
		UnitPrice: unitPrice.Round(2).InexactFloat64(),
		LineTotal: lineTotal.InexactFloat64(),
	}, nil
}

// PriceLines prices a whole cart and returns the hydrated lines with their
// subtotal, tax and total. Tax is currently always zero.
func PriceLines(reqs []LineRequest) ([]models.DeliveryLine, float64, float64, error) {
	if len(reqs) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: at least one line is required", ErrInvalidQuantity)
	}

	lines := make([]models.DeliveryLine, 0, len(reqs))
	subtotal := decimal.Zero
	for i, req := range reqs {
		line, err := Price(req)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("line %d: %w", i, err)
		}
		lines = append(lines, line)
		subtotal = subtotal.Add(decimal.NewFromFloat(line.LineTotal))
	}

	sub := subtotal.Round(2).InexactFloat64()
	tax := 0.0
	return lines, sub, sub + tax, nil
}
