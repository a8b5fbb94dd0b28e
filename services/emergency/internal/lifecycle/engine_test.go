package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/pkg/events"
	"carelink/pkg/store"
)

type directory map[string]domain.Patient

func (d directory) Patient(_ context.Context, id string) (domain.Patient, error) {
	p, ok := d[id]
	if !ok {
		return domain.Patient{}, apperr.New(apperr.NotFound, "patient not found")
	}
	return p, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AlertEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) count(ev Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == string(ev) {
			n++
		}
	}
	return n
}

type archiveFunc func(ctx context.Context, key string, snapshot any) error

func (f archiveFunc) Store(ctx context.Context, key string, snapshot any) error {
	return f(ctx, key, snapshot)
}

var (
	patientP1  = domain.Principal{SubjectID: "u-p1", Role: domain.RolePatient, ProfileID: "P1"}
	patientP2  = domain.Principal{SubjectID: "u-p2", Role: domain.RolePatient, ProfileID: "P2"}
	nurseN1    = domain.Principal{SubjectID: "u-n1", Role: domain.RoleNurse, ProfileID: "N1"}
	nurseN2    = domain.Principal{SubjectID: "u-n2", Role: domain.RoleNurse, ProfileID: "N2"}
	admin      = domain.Principal{SubjectID: "u-admin", Role: domain.RoleAdmin}
	fixedClock = time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
)

type fixture struct {
	engine    *Engine
	repo      *store.MemoryRepository[domain.EmergencyAlert, *domain.EmergencyAlert]
	published *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := store.NewMemoryRepository[domain.EmergencyAlert](store.MemoryConfig{})
	pub := &recordingPublisher{}
	engine, err := New(Config{
		Alerts: repo,
		Patients: directory{
			"P1": {Meta: domain.Meta{ID: "P1"}, UserID: "u-p1", AssignedNurseID: "N1"},
			"P2": {Meta: domain.Meta{ID: "P2"}, UserID: "u-p2"},
		},
		Events: pub,
		Now:    func() time.Time { return fixedClock },
	})
	require.NoError(t, err)
	return fixture{engine: engine, repo: repo, published: pub}
}

func (f fixture) create(t *testing.T, p domain.Principal, patientID string) domain.EmergencyAlert {
	t.Helper()
	a, err := f.engine.Create(context.Background(), p, CreateInput{
		PatientID:   patientID,
		Type:        domain.AlertFall,
		Severity:    domain.SeverityHigh,
		Description: "fell in the bathroom",
	})
	require.NoError(t, err)
	return a
}

func TestNextFollowsTable(t *testing.T) {
	all := []Event{EventAcknowledge, EventBegin, EventResolve, EventCancel}
	allowed := map[domain.AlertStatus]map[Event]domain.AlertStatus{
		domain.StatusPending:      {EventAcknowledge: domain.StatusAcknowledged, EventResolve: domain.StatusResolved, EventCancel: domain.StatusCancelled},
		domain.StatusAcknowledged: {EventBegin: domain.StatusInProgress, EventResolve: domain.StatusResolved, EventCancel: domain.StatusCancelled},
		domain.StatusInProgress:   {EventResolve: domain.StatusResolved, EventCancel: domain.StatusCancelled},
		domain.StatusResolved:     {},
		domain.StatusCancelled:    {},
	}
	for from, edges := range allowed {
		for _, ev := range all {
			to, err := Next(from, ev)
			want, ok := edges[ev]
			if ok {
				require.NoError(t, err, "%s --%s-->", from, ev)
				require.Equal(t, want, to)
				continue
			}
			require.True(t, apperr.Is(err, apperr.InvalidTransition), "%s --%s--> should be invalid", from, ev)
			_, _, details := apperr.Public(err)
			require.Equal(t, string(from), details["current"])
			require.Equal(t, string(ev), details["requested"])
		}
	}
}

func TestCreateAndReadBackRoundTrip(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, patientP1, "P1")

	got, err := f.engine.Get(context.Background(), patientP1, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlertFall, got.Type)
	require.Equal(t, domain.SeverityHigh, got.Severity)
	require.Equal(t, "P1", got.PatientID)
	require.Equal(t, domain.StatusPending, got.Status)
	require.Equal(t, got.CreatedAt, got.UpdatedAt)
	require.Equal(t, "N1", got.NurseID, "defaults to the assigned nurse")
	require.Nil(t, got.ResolvedAt)
	require.Equal(t, 1, f.published.count(EventCreate))
}

func TestCreateDefaultsPatientToSelf(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, patientP1, "")
	require.Equal(t, "P1", a.PatientID)
}

func TestCreateScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateInput{Type: domain.AlertStroke, Severity: domain.SeverityCritical, Description: "slurred speech"}

	in.PatientID = "P2"
	_, err := f.engine.Create(ctx, patientP1, in)
	require.True(t, apperr.Is(err, apperr.Unauthorized), "patient cannot raise for someone else")

	_, err = f.engine.Create(ctx, nurseN2, withPatient(in, "P1"))
	require.True(t, apperr.Is(err, apperr.Unauthorized), "only the assigned nurse")

	a, err := f.engine.Create(ctx, nurseN1, withPatient(in, "P1"))
	require.NoError(t, err)
	require.Equal(t, "N1", a.NurseID)

	_, err = f.engine.Create(ctx, admin, withPatient(in, "P404"))
	require.True(t, apperr.Is(err, apperr.NotFound))

	bad := withPatient(in, "P1")
	bad.Severity = "APOCALYPTIC"
	_, err = f.engine.Create(ctx, admin, bad)
	require.True(t, apperr.Is(err, apperr.Validation))
}

func withPatient(in CreateInput, id string) CreateInput {
	in.PatientID = id
	return in
}

func TestFullLifecycleSetsResolutionFieldsOnlyOnResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP1, "P1")

	a, err := f.engine.Transition(ctx, nurseN1, a.ID, EventAcknowledge, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAcknowledged, a.Status)
	require.Nil(t, a.ResolvedAt)

	a, err = f.engine.Transition(ctx, nurseN1, a.ID, EventBegin, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, a.Status)
	require.Empty(t, a.ResolvedBy)

	a, err = f.engine.Transition(ctx, nurseN1, a.ID, EventResolve, TransitionInput{Notes: "patient stable"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusResolved, a.Status)
	require.NotNil(t, a.ResolvedAt)
	require.Equal(t, fixedClock, *a.ResolvedAt)
	require.Equal(t, "u-n1", a.ResolvedBy)
	require.Equal(t, "patient stable", a.ResolutionNotes)
	require.Equal(t, int64(4), a.Version)
}

func TestCancelLeavesResolutionFieldsEmpty(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, patientP1, "P1")
	a, err := f.engine.Transition(context.Background(), admin, a.ID, EventCancel, TransitionInput{Notes: "ignored"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, a.Status)
	require.Nil(t, a.ResolvedAt)
	require.Empty(t, a.ResolvedBy)
	require.Empty(t, a.ResolutionNotes)
}

func TestResolveRequiresNotes(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, patientP1, "P1")
	_, err := f.engine.Transition(context.Background(), nurseN1, a.ID, EventResolve, TransitionInput{Notes: "   "})
	require.True(t, apperr.Is(err, apperr.Validation))

	stored, err := f.repo.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, stored.Status)
}

func TestResolveWithoutNotesChecksAccessFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP1, "P1")

	_, err := f.engine.Transition(ctx, patientP2, a.ID, EventResolve, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.Unauthorized))
	_, err = f.engine.Transition(ctx, patientP2, "missing", EventResolve, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.NotFound))
	_, err = f.engine.Transition(ctx, nurseN1, "missing", EventResolve, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.NotFound))
}

func TestResolveTwiceKeepsFirstResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP1, "P1")
	first, err := f.engine.Transition(ctx, nurseN1, a.ID, EventResolve, TransitionInput{Notes: "first"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.engine.Transition(ctx, admin, a.ID, EventResolve, TransitionInput{Notes: "second"})
		require.True(t, apperr.Is(err, apperr.InvalidTransition))
	}
	stored, err := f.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, first, stored)
	require.Equal(t, "first", stored.ResolutionNotes)
}

func TestInvalidTransitionLeavesRecordUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP1, "P1")

	_, err := f.engine.Transition(ctx, nurseN1, a.ID, EventBegin, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.InvalidTransition), "begin needs an acknowledged alert")

	stored, err := f.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a, stored)
}

func TestForeignPatientIsUnauthorizedEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP1, "P1")

	_, err := f.engine.Get(ctx, patientP2, a.ID)
	require.True(t, apperr.Is(err, apperr.Unauthorized))
	for _, ev := range []Event{EventAcknowledge, EventBegin, EventResolve, EventCancel} {
		_, err := f.engine.Transition(ctx, patientP2, a.ID, ev, TransitionInput{Notes: "x"})
		require.True(t, apperr.Is(err, apperr.Unauthorized), "event %s", ev)
	}
	_, err = f.engine.List(ctx, patientP2, ListQuery{PatientID: "P1"})
	require.True(t, apperr.Is(err, apperr.Unauthorized))
	_, err = f.engine.HardDelete(ctx, patientP2, a.ID)
	require.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestOwningPatientCannotDriveTransitions(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, patientP1, "P1")
	_, err := f.engine.Transition(context.Background(), patientP1, a.ID, EventCancel, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestAcknowledgeAssignsUnassignedAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP2, "P2")
	require.Empty(t, a.NurseID)

	_, err := f.engine.Get(ctx, nurseN2, a.ID)
	require.NoError(t, err, "pending alerts are visible to the queue")

	a, err = f.engine.Transition(ctx, nurseN2, a.ID, EventAcknowledge, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, "N2", a.NurseID)

	_, err = f.engine.Transition(ctx, nurseN1, a.ID, EventBegin, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.Unauthorized), "only the nurse now assigned")

	_, err = f.engine.Transition(ctx, nurseN2, a.ID, EventBegin, TransitionInput{})
	require.NoError(t, err)
}

func TestConcurrentAcknowledgeHasOneWinner(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t)
		a := f.create(t, patientP1, "P1")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for i, p := range []domain.Principal{nurseN1, admin} {
			wg.Add(1)
			go func(i int, p domain.Principal) {
				defer wg.Done()
				<-start
				_, errs[i] = f.engine.Transition(context.Background(), p, a.ID, EventAcknowledge, TransitionInput{})
			}(i, p)
		}
		close(start)
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			require.True(t,
				apperr.Is(err, apperr.InvalidTransition) || apperr.Is(err, apperr.Conflict),
				"loser got %v", err)
		}
		require.Equal(t, 1, wins)
		stored, err := f.repo.FindByID(context.Background(), a.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusAcknowledged, stored.Status)
		require.Equal(t, int64(2), stored.Version)
		require.Equal(t, 1, f.published.count(EventAcknowledge))
	}
}

// staleRepo reports a lost race on the first update so the retry path runs.
type staleRepo struct {
	store.Repository[domain.EmergencyAlert]
	mu       sync.Mutex
	conflict int
	sneak    func()
}

func (r *staleRepo) Update(ctx context.Context, id string, p store.Patch[domain.EmergencyAlert]) (domain.EmergencyAlert, error) {
	r.mu.Lock()
	if r.conflict > 0 {
		r.conflict--
		r.mu.Unlock()
		if r.sneak != nil {
			r.sneak()
		}
		return domain.EmergencyAlert{}, store.ErrConflict
	}
	r.mu.Unlock()
	return r.Repository.Update(ctx, id, p)
}

func TestTransitionRetriesOnceAfterConflict(t *testing.T) {
	mem := store.NewMemoryRepository[domain.EmergencyAlert](store.MemoryConfig{})
	repo := &staleRepo{Repository: mem, conflict: 1}
	engine, err := New(Config{Alerts: repo, Patients: directory{"P1": {Meta: domain.Meta{ID: "P1"}, AssignedNurseID: "N1"}}})
	require.NoError(t, err)
	ctx := context.Background()
	a, err := engine.Create(ctx, patientP1, CreateInput{Type: domain.AlertFall, Severity: domain.SeverityLow, Description: "slipped"})
	require.NoError(t, err)

	got, err := engine.Transition(ctx, nurseN1, a.ID, EventAcknowledge, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAcknowledged, got.Status)

	repo.conflict = 2
	_, err = engine.Transition(ctx, nurseN1, a.ID, EventBegin, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.Conflict), "second lost race surfaces")
}

func TestRetryRechecksFreshState(t *testing.T) {
	mem := store.NewMemoryRepository[domain.EmergencyAlert](store.MemoryConfig{})
	repo := &staleRepo{Repository: mem, conflict: 1}
	engine, err := New(Config{Alerts: mem, Patients: directory{"P1": {Meta: domain.Meta{ID: "P1"}, AssignedNurseID: "N1"}}})
	require.NoError(t, err)
	ctx := context.Background()
	a, err := engine.Create(ctx, patientP1, CreateInput{Type: domain.AlertFall, Severity: domain.SeverityLow, Description: "slipped"})
	require.NoError(t, err)

	// Another writer cancels the alert while our first write is in flight.
	repo.sneak = func() {
		_, err := mem.Update(ctx, a.ID, store.Patch[domain.EmergencyAlert]{Apply: func(x *domain.EmergencyAlert) error {
			x.Status = domain.StatusCancelled
			return nil
		}})
		require.NoError(t, err)
	}
	engine.alerts = repo
	_, err = engine.Transition(ctx, nurseN1, a.ID, EventAcknowledge, TransitionInput{})
	require.True(t, apperr.Is(err, apperr.InvalidTransition))
}

func TestListScopesAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.create(t, patientP1, "P1")
	a2 := f.create(t, patientP1, "P1")
	b1 := f.create(t, patientP2, "P2")
	_, err := f.engine.Transition(ctx, nurseN1, a2.ID, EventResolve, TransitionInput{Notes: "done"})
	require.NoError(t, err)

	own, err := f.engine.List(ctx, patientP1, ListQuery{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a1.ID, a2.ID}, ids(own))

	active, err := f.engine.List(ctx, patientP1, ListQuery{Active: true})
	require.NoError(t, err)
	require.Equal(t, []string{a1.ID}, ids(active))

	none, err := f.engine.List(ctx, admin, ListQuery{Statuses: []domain.AlertStatus{domain.StatusResolved}, Unread: true})
	require.NoError(t, err)
	require.Empty(t, none)

	queue, err := f.engine.List(ctx, nurseN2, ListQuery{Unread: true})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a1.ID, b1.ID}, ids(queue))

	_, err = f.engine.List(ctx, nurseN2, ListQuery{PatientID: "P1"})
	require.True(t, apperr.Is(err, apperr.Unauthorized), "nurse not assigned to P1")

	_, err = f.engine.Get(ctx, nurseN2, a2.ID)
	require.True(t, apperr.Is(err, apperr.Unauthorized))
	foreign, err := f.engine.List(ctx, nurseN2, ListQuery{Statuses: []domain.AlertStatus{domain.StatusResolved}})
	require.NoError(t, err)
	require.Empty(t, foreign, "resolved alert held by N1")
	foreign, err = f.engine.List(ctx, nurseN2, ListQuery{NurseID: "N1"})
	require.NoError(t, err)
	require.Equal(t, []string{a1.ID}, ids(foreign), "only the pending one is in the queue")

	_, err = f.engine.Transition(ctx, nurseN2, b1.ID, EventAcknowledge, TransitionInput{})
	require.NoError(t, err)
	held, err := f.engine.List(ctx, nurseN2, ListQuery{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a1.ID, b1.ID}, ids(held))
	mine, err := f.engine.List(ctx, nurseN1, ListQuery{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a1.ID, a2.ID}, ids(mine), "b1 now belongs to N2")
	capped, err := f.engine.List(ctx, nurseN1, ListQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, capped, 1)

	assigned, err := f.engine.List(ctx, nurseN1, ListQuery{PatientID: "P1", Statuses: []domain.AlertStatus{domain.StatusResolved}})
	require.NoError(t, err)
	require.Equal(t, []string{a2.ID}, ids(assigned))

	_, err = f.engine.List(ctx, admin, ListQuery{Statuses: []domain.AlertStatus{"LOST"}})
	require.True(t, apperr.Is(err, apperr.Validation))
}

func ids(alerts []domain.EmergencyAlert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.ID)
	}
	return out
}

func TestHardDeleteArchivesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP1, "P1")

	var archived []string
	f.engine.archive = archiveFunc(func(_ context.Context, key string, snapshot any) error {
		archived = append(archived, key)
		require.Equal(t, a.ID, snapshot.(domain.EmergencyAlert).ID)
		return nil
	})
	_, err := f.engine.HardDelete(ctx, nurseN1, a.ID)
	require.True(t, apperr.Is(err, apperr.Unauthorized))

	deleted, err := f.engine.HardDelete(ctx, admin, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, deleted.ID)
	require.Equal(t, []string{"alerts/" + a.ID + ".json"}, archived)
	_, err = f.repo.FindByID(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestHardDeleteKeepsAlertWhenArchiveFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, patientP1, "P1")
	f.engine.archive = archiveFunc(func(context.Context, string, any) error {
		return context.DeadlineExceeded
	})
	_, err := f.engine.HardDelete(ctx, admin, a.ID)
	require.True(t, apperr.Is(err, apperr.DependencyUnavailable))
	_, err = f.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
}
