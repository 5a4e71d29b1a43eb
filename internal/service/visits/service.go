// Package visits owns the visit lifecycle: idempotent start, note patches,
// per-box coverage, and the gated open -> submitted transition.
package visits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/domain/models"
	"github.com/mamadbah2/refill/internal/repository/mongodb"
)

// ErrInvalidOutcome indicates an outcome outside the closed set.
var ErrInvalidOutcome = errors.New("invalid outcome")

// ErrVisitNotFound indicates the visit does not exist.
var ErrVisitNotFound = errors.New("visit not found")

// ErrLocationNotFound indicates the location does not exist.
var ErrLocationNotFound = errors.New("location not found")

// ErrUnknownRep indicates the rep id does not resolve to an active account.
var ErrUnknownRep = errors.New("unknown rep")

// CoverageError rejects a completed submission while boxes remain unfilled.
// NoBoxes marks the degenerate case of a location with no boxes at all,
// which can never be completed.
type CoverageError struct {
	Missing []models.BoxCoverage
	NoBoxes bool
}

func (e *CoverageError) Error() string {
	if e.NoBoxes {
		return "location has no boxes; a completed visit is not possible"
	}
	return fmt.Sprintf("all boxes must be refilled before submitting a completed visit (%d missing)", len(e.Missing))
}

// Store is the persistence surface the state machine needs.
type Store interface {
	FindOpenVisit(ctx context.Context, rep, location primitive.ObjectID) (models.Visit, error)
	InsertVisit(ctx context.Context, visit models.Visit) (models.Visit, error)
	GetVisit(ctx context.Context, id primitive.ObjectID) (models.Visit, error)
	SetVisitNote(ctx context.Context, id primitive.ObjectID, note string) (models.Visit, error)
	SubmitVisit(ctx context.Context, id primitive.ObjectID, outcome models.Outcome, note *string, at time.Time) (models.Visit, error)
	ListVisits(ctx context.Context, filter mongodb.VisitFilter) ([]models.Visit, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error)
	GetLocation(ctx context.Context, id primitive.ObjectID) (models.Location, error)
	ListBoxes(ctx context.Context, location primitive.ObjectID) ([]models.Box, error)
	ListDeliveriesByVisit(ctx context.Context, visit primitive.ObjectID) ([]models.Delivery, error)
}

// Service implements the visit state machine over a Store.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a visit service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Detail pairs a visit with its current coverage report.
type Detail struct {
	Visit models.Visit         `json:"visit"`
	Boxes []models.BoxCoverage `json:"boxes"`
}

// Start returns the rep's open visit at the location, creating one only when
// none exists. Calling it twice in a row yields the same visit.
func (s *Service) Start(ctx context.Context, rep, location primitive.ObjectID) (models.Visit, error) {
	user, err := s.store.GetUser(ctx, rep)
	if err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return models.Visit{}, ErrUnknownRep
		}
		return models.Visit{}, err
	}
	if !user.Active {
		return models.Visit{}, ErrUnknownRep
	}

	if _, err := s.store.GetLocation(ctx, location); err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return models.Visit{}, ErrLocationNotFound
		}
		return models.Visit{}, err
	}

	visit, err := s.store.FindOpenVisit(ctx, rep, location)
	if err == nil {
		s.logger.Debug("resuming open visit", zap.String("visit", visit.ID.Hex()))
		return visit, nil
	}
	if !errors.Is(err, mongodb.ErrNotFound) {
		return models.Visit{}, err
	}

	visit, err = s.store.InsertVisit(ctx, models.Visit{
		Rep:       rep,
		Location:  location,
		Status:    models.VisitOpen,
		StartedAt: s.now(),
	})
	if err != nil {
		return models.Visit{}, err
	}
	s.logger.Info("visit started",
		zap.String("visit", visit.ID.Hex()),
		zap.String("rep", rep.Hex()),
		zap.String("location", location.Hex()))
	return visit, nil
}

// Get loads a visit with its coverage.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (Detail, error) {
	visit, err := s.store.GetVisit(ctx, id)
	if err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return Detail{}, ErrVisitNotFound
		}
		return Detail{}, err
	}
	report, err := s.Coverage(ctx, visit)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Visit: visit, Boxes: report.Boxes}, nil
}

// Coverage computes which boxes at the visit's location have at least one
// delivery recorded against this visit. Presence alone covers a box; line
// content and quantities are irrelevant.
func (s *Service) Coverage(ctx context.Context, visit models.Visit) (models.CoverageReport, error) {
	boxes, err := s.store.ListBoxes(ctx, visit.Location)
	if err != nil {
		return models.CoverageReport{}, err
	}
	deliveries, err := s.store.ListDeliveriesByVisit(ctx, visit.ID)
	if err != nil {
		return models.CoverageReport{}, err
	}

	covered := make(map[primitive.ObjectID]struct{}, len(deliveries))
	for _, d := range deliveries {
		covered[d.Box] = struct{}{}
	}

	report := models.CoverageReport{Boxes: make([]models.BoxCoverage, 0, len(boxes))}
	for _, b := range boxes {
		_, ok := covered[b.ID]
		report.Boxes = append(report.Boxes, models.BoxCoverage{
			BoxID:   b.ID,
			Label:   b.Label,
			Size:    b.Size,
			Covered: ok,
		})
	}
	return report, nil
}

// SetNote overwrites the visit's free-text note. Allowed in any state; it
// never touches outcome or submission timestamps.
func (s *Service) SetNote(ctx context.Context, id primitive.ObjectID, note string) (models.Visit, error) {
	visit, err := s.store.SetVisitNote(ctx, id, note)
	if errors.Is(err, mongodb.ErrNotFound) {
		return models.Visit{}, ErrVisitNotFound
	}
	return visit, err
}

// Submit finalizes a visit. Submitting an already-submitted visit returns
// the stored state unchanged, so replayed queue entries are harmless. A
// completed outcome requires full box coverage; the other outcomes explain
// why restocking did not finish and bypass the gate.
func (s *Service) Submit(ctx context.Context, id primitive.ObjectID, outcome models.Outcome, note *string) (models.Visit, error) {
	visit, err := s.store.GetVisit(ctx, id)
	if err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return models.Visit{}, ErrVisitNotFound
		}
		return models.Visit{}, err
	}
	if visit.Status == models.VisitSubmitted {
		return visit, nil
	}

	if !outcome.Valid() {
		return models.Visit{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	if outcome == models.OutcomeCompleted {
		report, err := s.Coverage(ctx, visit)
		if err != nil {
			return models.Visit{}, err
		}
		if len(report.Boxes) == 0 {
			return models.Visit{}, &CoverageError{NoBoxes: true}
		}
		if !report.AllCovered() {
			return models.Visit{}, &CoverageError{Missing: report.Missing()}
		}
	}

	submitted, err := s.store.SubmitVisit(ctx, id, outcome, note, s.now())
	if errors.Is(err, mongodb.ErrNotFound) {
		// Lost the compare-and-swap: someone submitted between our read and
		// the write. Return the winner's state.
		current, rerr := s.store.GetVisit(ctx, id)
		if rerr != nil {
			if errors.Is(rerr, mongodb.ErrNotFound) {
				return models.Visit{}, ErrVisitNotFound
			}
			return models.Visit{}, rerr
		}
		if current.Status == models.VisitSubmitted {
			return current, nil
		}
		return models.Visit{}, err
	}
	if err != nil {
		return models.Visit{}, err
	}

	s.logger.Info("visit submitted",
		zap.String("visit", submitted.ID.Hex()),
		zap.String("outcome", string(submitted.Outcome)))
	return submitted, nil
}

// List returns recent visits matching the filter.
func (s *Service) List(ctx context.Context, filter mongodb.VisitFilter) ([]models.Visit, error) {
	return s.store.ListVisits(ctx, filter)
}
