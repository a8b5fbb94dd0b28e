package lifecycle

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"carelink/internal/metrics"
	"carelink/internal/policy"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/pkg/events"
	"carelink/pkg/storage"
	"carelink/pkg/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	// One local retry after a lost race: re-read, re-authorize, re-check.
	maxAttempts = 2
)

// PatientDirectory supplies the ownership facts of a patient record.
type PatientDirectory interface {
	Patient(ctx context.Context, id string) (domain.Patient, error)
}

type Config struct {
	Alerts   store.Repository[domain.EmergencyAlert]
	Patients PatientDirectory
	Events   events.Publisher
	Archive  storage.Archive
	Metrics  metrics.Recorder
	Now      func() time.Time
}

// Engine runs alert operations for an authenticated principal.
type Engine struct {
	alerts   store.Repository[domain.EmergencyAlert]
	patients PatientDirectory
	events   events.Publisher
	archive  storage.Archive
	metrics  metrics.Recorder
	now      func() time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Alerts == nil {
		return nil, errors.New("lifecycle: alert repository required")
	}
	if cfg.Patients == nil {
		return nil, errors.New("lifecycle: patient directory required")
	}
	e := &Engine{
		alerts:   cfg.Alerts,
		patients: cfg.Patients,
		events:   cfg.Events,
		archive:  cfg.Archive,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	if e.events == nil {
		e.events = events.NopPublisher{}
	}
	if e.archive == nil {
		e.archive = storage.NopArchive{}
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

type CreateInput struct {
	PatientID   string           `json:"patientId"`
	NurseID     string           `json:"nurseId"`
	Type        domain.AlertType `json:"type"`
	Severity    domain.Severity  `json:"severity"`
	Description string           `json:"description"`
	Location    *domain.Location `json:"location"`
	Message     string           `json:"message"`
}

func (in CreateInput) validate() error {
	if !in.Type.Valid() {
		return apperr.New(apperr.Validation, "unknown alert type").With("field", "type")
	}
	if !in.Severity.Valid() {
		return apperr.New(apperr.Validation, "unknown severity").With("field", "severity")
	}
	if strings.TrimSpace(in.Description) == "" {
		return apperr.New(apperr.Validation, "description is required").With("field", "description")
	}
	if l := in.Location; l != nil {
		if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
			return apperr.New(apperr.Validation, "location out of range").With("field", "location")
		}
	}
	return nil
}

// Create opens a PENDING alert. Patients raise alerts for themselves; the
// nurse defaults to the patient's assigned nurse.
func (e *Engine) Create(ctx context.Context, p domain.Principal, in CreateInput) (domain.EmergencyAlert, error) {
	if err := in.validate(); err != nil {
		return domain.EmergencyAlert{}, err
	}
	patientID := strings.TrimSpace(in.PatientID)
	if p.Role == domain.RolePatient && patientID == "" {
		patientID = p.ProfileID
	}
	if patientID == "" {
		return domain.EmergencyAlert{}, apperr.New(apperr.Validation, "patientId is required").With("field", "patientId")
	}
	if p.Role == domain.RolePatient && patientID != p.ProfileID {
		return domain.EmergencyAlert{}, policy.Check(p, policy.CreateOwnAlert, policy.Ownership{PatientID: patientID})
	}
	patient, err := e.patients.Patient(ctx, patientID)
	if err != nil {
		return domain.EmergencyAlert{}, err
	}
	if err := policy.Check(p, policy.CreateOwnAlert, policy.Ownership{
		PatientID: patient.ID,
		NurseID:   patient.AssignedNurseID,
	}); err != nil {
		return domain.EmergencyAlert{}, err
	}

	nurseID := strings.TrimSpace(in.NurseID)
	switch {
	case nurseID == "":
		nurseID = patient.AssignedNurseID
	case p.Role != domain.RoleAdmin && nurseID != patient.AssignedNurseID:
		return domain.EmergencyAlert{}, apperr.New(apperr.Validation, "nurseId must be the patient's assigned nurse").With("field", "nurseId")
	}

	created, err := e.alerts.Create(ctx, domain.EmergencyAlert{
		PatientID:   patient.ID,
		NurseID:     nurseID,
		Type:        in.Type,
		Severity:    in.Severity,
		Description: strings.TrimSpace(in.Description),
		Location:    in.Location,
		Status:      domain.StatusPending,
		Message:     strings.TrimSpace(in.Message),
	})
	if err != nil {
		return domain.EmergencyAlert{}, err
	}
	e.record(ctx, p, created, EventCreate, "")
	return created, nil
}

// Get returns one alert. Besides the owning patient and assigned nurse, any
// nurse may see an alert that is still waiting in the queue.
func (e *Engine) Get(ctx context.Context, p domain.Principal, id string) (domain.EmergencyAlert, error) {
	alert, err := e.alerts.FindByID(ctx, id)
	if err != nil {
		return domain.EmergencyAlert{}, err
	}
	own := ownership(alert)
	err = policy.Check(p, policy.ReadOwnAlert, own)
	if err != nil && alert.Status == domain.StatusPending {
		err = policy.Check(p, policy.ReadAlertQueue, own)
	}
	if err != nil {
		return domain.EmergencyAlert{}, err
	}
	return alert, nil
}

type TransitionInput struct {
	Notes string `json:"notes"`
}

// Transition applies ev to the alert. The write is conditional on the
// version that was authorized and checked; after one lost race the whole
// decision is made again on fresh data.
func (e *Engine) Transition(ctx context.Context, p domain.Principal, id string, ev Event, in TransitionInput) (domain.EmergencyAlert, error) {
	if _, ok := ParseEvent(string(ev)); !ok {
		return domain.EmergencyAlert{}, apperr.New(apperr.Validation, "unknown transition").With("event", string(ev))
	}
	notes := strings.TrimSpace(in.Notes)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current, err := e.alerts.FindByID(ctx, id)
		if err != nil {
			return domain.EmergencyAlert{}, err
		}
		if err := policy.Check(p, actionFor(ev), ownership(current)); err != nil {
			return domain.EmergencyAlert{}, err
		}
		if ev == EventResolve && notes == "" {
			return domain.EmergencyAlert{}, apperr.New(apperr.Validation, "resolution notes are required").With("field", "notes")
		}
		to, err := Next(current.Status, ev)
		if err != nil {
			return domain.EmergencyAlert{}, err
		}
		updated, err := e.alerts.Update(ctx, id, store.Patch[domain.EmergencyAlert]{
			IfVersion: current.Version,
			Apply: func(a *domain.EmergencyAlert) error {
				a.Status = to
				if ev == EventAcknowledge && a.NurseID == "" && p.Role == domain.RoleNurse {
					a.NurseID = p.ProfileID
				}
				if to == domain.StatusResolved {
					at := e.now().UTC()
					a.ResolvedAt = &at
					a.ResolvedBy = p.SubjectID
					a.ResolutionNotes = notes
				}
				return nil
			},
		})
		if apperr.Is(err, apperr.Conflict) {
			lastErr = err
			util.LoggerFromContext(ctx).Debug().
				Str("alert_id", id).
				Str("event", string(ev)).
				Int("attempt", attempt).
				Msg("alert transition lost a race")
			continue
		}
		if err != nil {
			return domain.EmergencyAlert{}, err
		}
		e.record(ctx, p, updated, ev, current.Status)
		return updated, nil
	}
	return domain.EmergencyAlert{}, lastErr
}

type ListQuery struct {
	Statuses  []domain.AlertStatus
	Severity  domain.Severity
	PatientID string
	NurseID   string
	From      time.Time
	To        time.Time
	Active    bool
	Unread    bool
	Limit     int
}

// List returns the alerts visible to p, newest first. Patients only see
// their own. Nurses see pending alerts plus the ones they hold, or one
// patient's alerts when assigned to that patient. Admins see everything.
func (e *Engine) List(ctx context.Context, p domain.Principal, q ListQuery) ([]domain.EmergencyAlert, error) {
	switch p.Role {
	case domain.RolePatient:
		target := q.PatientID
		if target == "" {
			target = p.ProfileID
		}
		if err := policy.Check(p, policy.ReadOwnAlert, policy.Ownership{PatientID: target}); err != nil {
			return nil, err
		}
		q.PatientID = target
	case domain.RoleNurse:
		if q.PatientID == "" {
			if err := policy.Check(p, policy.ReadAlertQueue, policy.Ownership{}); err != nil {
				return nil, err
			}
			return e.nurseQueue(ctx, p, q)
		}
		patient, err := e.patients.Patient(ctx, q.PatientID)
		if err != nil {
			return nil, err
		}
		if err := policy.Check(p, policy.ReadOwnAlert, policy.Ownership{
			PatientID: patient.ID,
			NurseID:   patient.AssignedNurseID,
		}); err != nil {
			return nil, err
		}
	default:
		if err := policy.Check(p, policy.AdminOnly, policy.Ownership{}); err != nil {
			return nil, err
		}
	}

	f, empty, err := q.filter()
	if err != nil {
		return nil, err
	}
	if empty {
		return []domain.EmergencyAlert{}, nil
	}
	return e.alerts.FindMany(ctx, f)
}

// nurseQueue unions the pending queue with the alerts held by p. Alerts
// another nurse has taken stay out of reach, matching Get.
func (e *Engine) nurseQueue(ctx context.Context, p domain.Principal, q ListQuery) ([]domain.EmergencyAlert, error) {
	pending := q
	pending.Unread = true
	pendingFilter, pendingEmpty, err := pending.filter()
	if err != nil {
		return nil, err
	}
	held := q
	held.NurseID = p.ProfileID
	heldFilter, heldEmpty, err := held.filter()
	if err != nil {
		return nil, err
	}
	if p.ProfileID == "" || (q.NurseID != "" && q.NurseID != p.ProfileID) {
		heldEmpty = true
	}

	seen := map[string]bool{}
	out := []domain.EmergencyAlert{}
	for _, part := range []struct {
		f     store.Filter
		empty bool
	}{{pendingFilter, pendingEmpty}, {heldFilter, heldEmpty}} {
		if part.empty {
			continue
		}
		found, err := e.alerts.FindMany(ctx, part.f)
		if err != nil {
			return nil, err
		}
		for _, a := range found {
			if !seen[a.ID] {
				seen[a.ID] = true
				out = append(out, a)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := q.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q ListQuery) filter() (store.Filter, bool, error) {
	var conds []store.Cond
	if q.PatientID != "" {
		conds = append(conds, store.Eq("patientId", q.PatientID))
	}
	if q.NurseID != "" {
		conds = append(conds, store.Eq("nurseId", q.NurseID))
	}
	if q.Severity != "" {
		if !q.Severity.Valid() {
			return store.Filter{}, false, apperr.New(apperr.Validation, "unknown severity").With("field", "severity")
		}
		conds = append(conds, store.Eq("severity", q.Severity))
	}
	statuses, err := q.statusSet()
	if err != nil {
		return store.Filter{}, false, err
	}
	if statuses != nil {
		if len(statuses) == 0 {
			return store.Filter{}, true, nil
		}
		conds = append(conds, store.In("status", statuses...))
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
			return store.Filter{}, false, apperr.New(apperr.Validation, "from must be before to").With("field", "from")
		}
		conds = append(conds, store.Between("createdAt", q.From, q.To))
	}
	return store.Where(conds...).Take(q.limit()), false, nil
}

func (q ListQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultListLimit
	case q.Limit > maxListLimit:
		return maxListLimit
	}
	return q.Limit
}

// statusSet intersects the explicit statuses with the active and unread
// shortcuts. nil means no status restriction.
func (q ListQuery) statusSet() ([]domain.AlertStatus, error) {
	var set []domain.AlertStatus
	if len(q.Statuses) > 0 {
		for _, s := range q.Statuses {
			if !s.Valid() {
				return nil, apperr.New(apperr.Validation, "unknown status").With("field", "status")
			}
		}
		set = q.Statuses
	}
	if q.Active {
		set = intersect(set, domain.ActiveStatuses)
	}
	if q.Unread {
		set = intersect(set, []domain.AlertStatus{domain.StatusPending})
	}
	return set, nil
}

func intersect(a, b []domain.AlertStatus) []domain.AlertStatus {
	if a == nil {
		return append([]domain.AlertStatus{}, b...)
	}
	out := []domain.AlertStatus{}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

// HardDelete removes an alert outside the lifecycle. The snapshot is
// archived first; a failed archive leaves the alert in place.
func (e *Engine) HardDelete(ctx context.Context, p domain.Principal, id string) (domain.EmergencyAlert, error) {
	if err := policy.Check(p, policy.AdminOnly, policy.Ownership{}); err != nil {
		return domain.EmergencyAlert{}, err
	}
	alert, err := e.alerts.FindByID(ctx, id)
	if err != nil {
		return domain.EmergencyAlert{}, err
	}
	if err := e.archive.Store(ctx, storage.AlertKey(alert.ID), alert); err != nil {
		return domain.EmergencyAlert{}, apperr.Wrap(apperr.DependencyUnavailable, "alert archive unavailable", err)
	}
	if err := e.alerts.Delete(ctx, id); err != nil {
		return domain.EmergencyAlert{}, err
	}
	return alert, nil
}

func ownership(a domain.EmergencyAlert) policy.Ownership {
	return policy.Ownership{PatientID: a.PatientID, NurseID: a.NurseID}
}

// record publishes the lifecycle event and counts it. The stored alert is
// authoritative, so a failed publish is only logged.
func (e *Engine) record(ctx context.Context, p domain.Principal, a domain.EmergencyAlert, ev Event, from domain.AlertStatus) {
	e.metrics.RecordAlertTransition(string(ev), string(a.Status))
	logger := util.LoggerFromContext(ctx)
	logEvent(logger, a, ev, from)
	err := e.events.Publish(ctx, events.AlertEvent{
		AlertID:   a.ID,
		PatientID: a.PatientID,
		NurseID:   a.NurseID,
		Event:     string(ev),
		From:      string(from),
		To:        string(a.Status),
		ActorID:   p.SubjectID,
		ActorRole: string(p.Role),
		At:        a.UpdatedAt,
	})
	if err != nil {
		logger.Warn().Err(err).Str("alert_id", a.ID).Msg("publish alert event failed")
	}
}

func logEvent(logger *zerolog.Logger, a domain.EmergencyAlert, ev Event, from domain.AlertStatus) {
	logger.Info().
		Str("alert_id", a.ID).
		Str("event", string(ev)).
		Str("from", string(from)).
		Str("to", string(a.Status)).
		Str("severity", string(a.Severity)).
		Msg("alert_transition")
}
