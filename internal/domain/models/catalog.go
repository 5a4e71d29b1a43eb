package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Packaging is how an item is counted and priced: per single unit or per case.
type Packaging string

const (
	PackagingEach Packaging = "each"
	PackagingCase Packaging = "case"
)

// Valid reports whether p is one of the known packaging modes.
func (p Packaging) Valid() bool {
	switch p {
	case PackagingEach, PackagingCase:
		return true
	}
	return false
}

// ParsePackaging converts a wire string into a Packaging value.
func ParsePackaging(s string) (Packaging, error) {
	p := Packaging(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown packaging %q", s)
	}
	return p, nil
}

// BoxSize classifies a supply box by physical capacity.
type BoxSize string

const (
	BoxSizeS  BoxSize = "S"
	BoxSizeM  BoxSize = "M"
	BoxSizeL  BoxSize = "L"
	BoxSizeXL BoxSize = "XL"
)

// Address is the postal address of a location.
type Address struct {
	Street string `bson:"street,omitempty" json:"street,omitempty"`
	City   string `bson:"city,omitempty" json:"city,omitempty"`
	State  string `bson:"state,omitempty" json:"state,omitempty"`
	Zip    string `bson:"zip,omitempty" json:"zip,omitempty"`
}

// Location is a physical site holding a fixed set of supply boxes.
type Location struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Address   Address            `bson:"address,omitempty" json:"address,omitempty"`
	Notes     string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time          `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// BoxItem is a par-level entry on a box: the target stock for one item.
// Informational only; coverage and pricing never consult it.
type BoxItem struct {
	Item primitive.ObjectID `bson:"item" json:"item"`
	Par  float64            `bson:"par,omitempty" json:"par,omitempty"`
}

// Box is one supply container at a location. Box membership is fixed at
// location setup; visits never add or remove boxes.
type Box struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Label    string             `bson:"label" json:"label"`
	Location primitive.ObjectID `bson:"location" json:"location"`
	Size     BoxSize            `bson:"size" json:"size"`
	Items    []BoxItem          `bson:"items,omitempty" json:"items,omitempty"`
}

// Item is a catalog entry. PricePerPack is the price of one pack in the
// item's packaging mode (one unit for "each", one case for "case").
type Item struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	SKU          string             `bson:"sku,omitempty" json:"sku,omitempty"`
	Packaging    Packaging          `bson:"packaging" json:"packaging"`
	UnitsPerPack float64            `bson:"unitsPerPack" json:"unitsPerPack"`
	PricePerPack float64            `bson:"pricePerPack" json:"pricePerPack"`
	Active       bool               `bson:"active" json:"active"`
}

// User is a representative or admin account. Auth is handled upstream; this
// core only reads the identity.
type User struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name   string             `bson:"name" json:"name"`
	Email  string             `bson:"email,omitempty" json:"email,omitempty"`
	Roles  []string           `bson:"roles" json:"roles"`
	Active bool               `bson:"active" json:"active"`
}
