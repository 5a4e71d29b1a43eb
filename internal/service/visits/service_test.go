package visits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/refill/internal/domain/models"
	"github.com/mamadbah2/refill/internal/repository/mongodb"
)

// fakeStore is an in-memory Store for exercising the state machine without
// a database.
type fakeStore struct {
	users      map[primitive.ObjectID]models.User
	locations  map[primitive.ObjectID]models.Location
	boxes      map[primitive.ObjectID][]models.Box
	visits     map[primitive.ObjectID]models.Visit
	deliveries []models.Delivery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[primitive.ObjectID]models.User),
		locations: make(map[primitive.ObjectID]models.Location),
		boxes:     make(map[primitive.ObjectID][]models.Box),
		visits:    make(map[primitive.ObjectID]models.Visit),
	}
}

func (f *fakeStore) addRep() primitive.ObjectID {
	user := models.User{ID: primitive.NewObjectID(), Name: "Dana", Roles: []string{"rep"}, Active: true}
	f.users[user.ID] = user
	return user.ID
}

func (f *fakeStore) addLocation(boxCount int) (primitive.ObjectID, []models.Box) {
	loc := models.Location{ID: primitive.NewObjectID(), Name: "North Clinic"}
	f.locations[loc.ID] = loc
	boxes := make([]models.Box, 0, boxCount)
	for i := 0; i < boxCount; i++ {
		boxes = append(boxes, models.Box{
			ID:       primitive.NewObjectID(),
			Label:    string(rune('A' + i)),
			Location: loc.ID,
			Size:     models.BoxSizeM,
		})
	}
	f.boxes[loc.ID] = boxes
	return loc.ID, boxes
}

func (f *fakeStore) deliverTo(visit primitive.ObjectID, box models.Box) {
	f.deliveries = append(f.deliveries, models.Delivery{
		ID:       primitive.NewObjectID(),
		Location: box.Location,
		Box:      box.ID,
		Visit:    &visit,
	})
}

func (f *fakeStore) FindOpenVisit(_ context.Context, rep, location primitive.ObjectID) (models.Visit, error) {
	for _, v := range f.visits {
		if v.Rep == rep && v.Location == location && v.Status == models.VisitOpen {
			return v, nil
		}
	}
	return models.Visit{}, mongodb.ErrNotFound
}

func (f *fakeStore) InsertVisit(_ context.Context, visit models.Visit) (models.Visit, error) {
	visit.ID = primitive.NewObjectID()
	f.visits[visit.ID] = visit
	return visit, nil
}

func (f *fakeStore) GetVisit(_ context.Context, id primitive.ObjectID) (models.Visit, error) {
	v, ok := f.visits[id]
	if !ok {
		return models.Visit{}, mongodb.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) SetVisitNote(_ context.Context, id primitive.ObjectID, note string) (models.Visit, error) {
	v, ok := f.visits[id]
	if !ok {
		return models.Visit{}, mongodb.ErrNotFound
	}
	v.Note = note
	f.visits[id] = v
	return v, nil
}

func (f *fakeStore) SubmitVisit(_ context.Context, id primitive.ObjectID, outcome models.Outcome, note *string, at time.Time) (models.Visit, error) {
	v, ok := f.visits[id]
	if !ok || v.Status != models.VisitOpen {
		return models.Visit{}, mongodb.ErrNotFound
	}
	v.Status = models.VisitSubmitted
	v.Outcome = outcome
	v.SubmittedAt = &at
	if note != nil {
		v.Note = *note
	}
	f.visits[id] = v
	return v, nil
}

func (f *fakeStore) GetUser(_ context.Context, id primitive.ObjectID) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, mongodb.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) ListVisits(_ context.Context, _ mongodb.VisitFilter) ([]models.Visit, error) {
	out := make([]models.Visit, 0, len(f.visits))
	for _, v := range f.visits {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeStore) GetLocation(_ context.Context, id primitive.ObjectID) (models.Location, error) {
	loc, ok := f.locations[id]
	if !ok {
		return models.Location{}, mongodb.ErrNotFound
	}
	return loc, nil
}

func (f *fakeStore) ListBoxes(_ context.Context, location primitive.ObjectID) ([]models.Box, error) {
	return f.boxes[location], nil
}

func (f *fakeStore) ListDeliveriesByVisit(_ context.Context, visit primitive.ObjectID) ([]models.Delivery, error) {
	var out []models.Delivery
	for _, d := range f.deliveries {
		if d.Visit != nil && *d.Visit == visit {
			out = append(out, d)
		}
	}
	return out, nil
}

func TestStartIsIdempotent(t *testing.T) {
	store := newFakeStore()
	location, _ := store.addLocation(1)
	svc := NewService(store, nil)
	rep := store.addRep()

	first, err := svc.Start(context.Background(), rep, location)
	require.NoError(t, err)

	second, err := svc.Start(context.Background(), rep, location)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.visits, 1)
}

func TestStartUnknownLocation(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	_, err := svc.Start(context.Background(), store.addRep(), primitive.NewObjectID())
	require.ErrorIs(t, err, ErrLocationNotFound)
}

func TestStartRejectsUnknownOrInactiveRep(t *testing.T) {
	store := newFakeStore()
	location, _ := store.addLocation(1)
	svc := NewService(store, nil)

	_, err := svc.Start(context.Background(), primitive.NewObjectID(), location)
	require.ErrorIs(t, err, ErrUnknownRep)

	rep := store.addRep()
	u := store.users[rep]
	u.Active = false
	store.users[rep] = u

	_, err = svc.Start(context.Background(), rep, location)
	require.ErrorIs(t, err, ErrUnknownRep)
}

func TestSubmitCompletedRequiresFullCoverage(t *testing.T) {
	store := newFakeStore()
	location, boxes := store.addLocation(2)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)

	// Only box A delivered: completed must fail and name box B.
	store.deliverTo(visit.ID, boxes[0])
	_, err = svc.Submit(context.Background(), visit.ID, models.OutcomeCompleted, nil)
	var covErr *CoverageError
	require.ErrorAs(t, err, &covErr)
	require.Len(t, covErr.Missing, 1)
	assert.Equal(t, boxes[1].ID, covErr.Missing[0].BoxID)

	// Deliver to box B as well: submission goes through.
	store.deliverTo(visit.ID, boxes[1])
	submitted, err := svc.Submit(context.Background(), visit.ID, models.OutcomeCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.VisitSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
}

func TestSubmitCompletedNeverSucceedsWithZeroBoxes(t *testing.T) {
	store := newFakeStore()
	location, _ := store.addLocation(0)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), visit.ID, models.OutcomeCompleted, nil)
	var covErr *CoverageError
	require.ErrorAs(t, err, &covErr)
	assert.True(t, covErr.NoBoxes)
}

func TestSubmitNonCompletedBypassesCoverage(t *testing.T) {
	store := newFakeStore()
	location, _ := store.addLocation(3)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), visit.ID, models.OutcomeNoAccess, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoAccess, submitted.Outcome)
}

func TestSubmitIsIdempotent(t *testing.T) {
	store := newFakeStore()
	location, boxes := store.addLocation(1)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)
	store.deliverTo(visit.ID, boxes[0])

	first, err := svc.Submit(context.Background(), visit.ID, models.OutcomeCompleted, nil)
	require.NoError(t, err)

	// A replayed submit returns the stored state unchanged, including the
	// original timestamp, regardless of the outcome it carries.
	second, err := svc.Submit(context.Background(), visit.ID, models.OutcomeSkipped, nil)
	require.NoError(t, err)
	assert.Equal(t, first.SubmittedAt, second.SubmittedAt)
	assert.Equal(t, models.OutcomeCompleted, second.Outcome)
}

func TestSubmitRejectsUnknownOutcome(t *testing.T) {
	store := newFakeStore()
	location, _ := store.addLocation(1)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), visit.ID, models.Outcome("done"), nil)
	require.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestSubmitPersistsNote(t *testing.T) {
	store := newFakeStore()
	location, _ := store.addLocation(1)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)

	note := "gate locked, keyholder away"
	submitted, err := svc.Submit(context.Background(), visit.ID, models.OutcomeNoAccess, &note)
	require.NoError(t, err)
	assert.Equal(t, note, submitted.Note)
}

func TestCoverageIsMonotonic(t *testing.T) {
	store := newFakeStore()
	location, boxes := store.addLocation(2)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)

	covered := func() int {
		report, err := svc.Coverage(context.Background(), visit)
		require.NoError(t, err)
		n := 0
		for _, b := range report.Boxes {
			if b.Covered {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 0, covered())
	store.deliverTo(visit.ID, boxes[0])
	assert.Equal(t, 1, covered())
	// Repeat deliveries to the same box never reduce coverage.
	store.deliverTo(visit.ID, boxes[0])
	assert.Equal(t, 1, covered())
	store.deliverTo(visit.ID, boxes[1])
	assert.Equal(t, 2, covered())
}

func TestCoverageIgnoresWalkInDeliveries(t *testing.T) {
	store := newFakeStore()
	location, boxes := store.addLocation(1)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)

	// A delivery with no visit reference covers nothing.
	store.deliveries = append(store.deliveries, models.Delivery{
		ID:       primitive.NewObjectID(),
		Location: location,
		Box:      boxes[0].ID,
	})

	report, err := svc.Coverage(context.Background(), visit)
	require.NoError(t, err)
	assert.False(t, report.AllCovered())
}

func TestSetNoteDoesNotTouchSubmission(t *testing.T) {
	store := newFakeStore()
	location, boxes := store.addLocation(1)
	svc := NewService(store, nil)

	visit, err := svc.Start(context.Background(), store.addRep(), location)
	require.NoError(t, err)
	store.deliverTo(visit.ID, boxes[0])

	submitted, err := svc.Submit(context.Background(), visit.ID, models.OutcomeCompleted, nil)
	require.NoError(t, err)

	updated, err := svc.SetNote(context.Background(), visit.ID, "front door code changed")
	require.NoError(t, err)
	assert.Equal(t, submitted.SubmittedAt, updated.SubmittedAt)
	assert.Equal(t, submitted.Outcome, updated.Outcome)
}
