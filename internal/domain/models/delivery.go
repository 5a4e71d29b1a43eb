package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryLine is one priced cart line on a delivery. UnitPrice and
// LineTotal are captured at pricing time and never recomputed retroactively.
type DeliveryLine struct {
	Item      primitive.ObjectID `bson:"item" json:"item"`
	Quantity  float64            `bson:"quantity" json:"quantity"`
	Packaging Packaging          `bson:"packaging" json:"packaging"`
	UnitPrice float64            `bson:"unitPrice" json:"unitPrice"`
	LineTotal float64            `bson:"lineTotal" json:"lineTotal"`
}

// Delivery records the restocking of one box. Its box and location binding
// is immutable; lines may later be replaced wholesale, which reprices the
// totals. Visit is optional: a walk-in restock has none and counts toward no
// visit's coverage.
type Delivery struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RepName     string              `bson:"repName,omitempty" json:"repName,omitempty"`
	DeliveredAt time.Time           `bson:"deliveredAt" json:"deliveredAt"`
	Location    primitive.ObjectID  `bson:"location" json:"location"`
	Box         primitive.ObjectID  `bson:"box" json:"box"`
	Visit       *primitive.ObjectID `bson:"visit,omitempty" json:"visit,omitempty"`
	Lines       []DeliveryLine      `bson:"lines" json:"lines"`
	Subtotal    float64             `bson:"subtotal" json:"subtotal"`
	Tax         float64             `bson:"tax" json:"tax"`
	Total       float64             `bson:"total" json:"total"`
}

// PageInfo describes one page of a filtered delivery listing.
type PageInfo struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

// DeliveryPage is a page of deliveries plus its paging metadata.
type DeliveryPage struct {
	Data     []Delivery `json:"data"`
	PageInfo PageInfo   `json:"pageInfo"`
}
