package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VisitStatus is the lifecycle state of a visit. "submitted" is terminal.
type VisitStatus string

const (
	VisitOpen      VisitStatus = "open"
	VisitSubmitted VisitStatus = "submitted"
)

// Outcome classifies how a submitted visit concluded. Only "completed"
// asserts that every box at the location was restocked.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePartial   Outcome = "partial"
	OutcomeNoAccess  Outcome = "no_access"
	OutcomeSkipped   Outcome = "skipped"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomePartial, OutcomeNoAccess, OutcomeSkipped:
		return true
	}
	return false
}

// ParseOutcome converts a wire string into an Outcome value.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.Valid() {
		return "", fmt.Errorf("unknown outcome %q", s)
	}
	return o, nil
}

// Visit is one representative's attended session at one location.
// Outcome stays empty while the visit is open; SubmittedAt is set exactly
// once, at the open -> submitted transition, and never cleared.
type Visit struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Rep         primitive.ObjectID `bson:"rep" json:"rep"`
	Location    primitive.ObjectID `bson:"location" json:"location"`
	Status      VisitStatus        `bson:"status" json:"status"`
	Outcome     Outcome            `bson:"outcome,omitempty" json:"outcome,omitempty"`
	Note        string             `bson:"note,omitempty" json:"note"`
	StartedAt   time.Time          `bson:"startedAt" json:"startedAt"`
	SubmittedAt *time.Time         `bson:"submittedAt,omitempty" json:"submittedAt,omitempty"`
}

// BoxCoverage is one row of a visit's coverage report.
type BoxCoverage struct {
	BoxID   primitive.ObjectID `json:"boxId"`
	Label   string             `json:"label"`
	Size    BoxSize            `json:"size"`
	Covered bool               `json:"covered"`
}

// CoverageReport is the per-box delivery presence for a visit's location.
type CoverageReport struct {
	Boxes []BoxCoverage `json:"boxes"`
}

// AllCovered reports whether every box has at least one delivery. A location
// with zero boxes is never considered covered.
func (r CoverageReport) AllCovered() bool {
	if len(r.Boxes) == 0 {
		return false
	}
	for _, b := range r.Boxes {
		if !b.Covered {
			return false
		}
	}
	return true
}

// Missing returns the boxes without any delivery for the visit.
func (r CoverageReport) Missing() []BoxCoverage {
	var missing []BoxCoverage
	for _, b := range r.Boxes {
		if !b.Covered {
			missing = append(missing, b)
		}
	}
	return missing
}
