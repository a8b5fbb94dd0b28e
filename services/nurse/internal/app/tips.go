package app

import (
	"context"
	"strings"
	"time"

	"carelink/internal/policy"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/pkg/store"
)

type TipInput struct {
	PatientID string `json:"patientId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	Priority  string `json:"priority"`
	// ScheduledDate is RFC 3339 or YYYY-MM-DD; empty means now.
	ScheduledDate string `json:"scheduledDate"`
}

// patient fetches the facts a tip decision needs. A missing patient is a
// validation problem for the writer, not a 404 on the tip route.
func (a *App) patient(ctx context.Context, id string) (domain.Patient, error) {
	pt, err := a.patients.Patient(ctx, id)
	if apperr.Is(err, apperr.NotFound) {
		return domain.Patient{}, ErrUnknownPatient
	}
	return pt, err
}

// CreateTip lets the assigned nurse write to their patient. Admins write on
// behalf of the assigned nurse.
func (a *App) CreateTip(ctx context.Context, p domain.Principal, in TipInput) (domain.MotivationalTip, error) {
	in.PatientID = strings.TrimSpace(in.PatientID)
	if in.PatientID == "" {
		return domain.MotivationalTip{}, apperr.New(apperr.Validation, "patientId is required").With("field", "patientId")
	}
	pt, err := a.patient(ctx, in.PatientID)
	if err != nil {
		return domain.MotivationalTip{}, err
	}
	if err := policy.Check(p, policy.WriteOwnTip, policy.Ownership{PatientID: pt.ID, NurseID: pt.AssignedNurseID}); err != nil {
		return domain.MotivationalTip{}, err
	}
	nurseID := p.ProfileID
	if p.Role == domain.RoleAdmin {
		if pt.AssignedNurseID == "" {
			return domain.MotivationalTip{}, ErrPatientUnassigned
		}
		nurseID = pt.AssignedNurseID
	}
	tip := domain.MotivationalTip{
		NurseID:       nurseID,
		PatientID:     pt.ID,
		Category:      domain.TipGeneral,
		Priority:      domain.TipPriorityMedium,
		ScheduledDate: a.now().UTC(),
	}
	if err := in.apply(&tip); err != nil {
		return domain.MotivationalTip{}, err
	}
	return a.tips.Create(ctx, tip)
}

func (in TipInput) apply(t *domain.MotivationalTip) error {
	t.Title = strings.TrimSpace(in.Title)
	t.Content = strings.TrimSpace(in.Content)
	if t.Title == "" {
		return apperr.New(apperr.Validation, "title is required").With("field", "title")
	}
	if t.Content == "" {
		return apperr.New(apperr.Validation, "content is required").With("field", "content")
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		t.Category = domain.TipCategory(strings.ToUpper(c))
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	if pr := strings.TrimSpace(in.Priority); pr != "" {
		t.Priority = domain.TipPriority(strings.ToUpper(pr))
	}
	if !t.Priority.Valid() {
		return ErrInvalidPriority
	}
	if s := strings.TrimSpace(in.ScheduledDate); s != "" {
		at, err := parseTime(s)
		if err != nil {
			return apperr.New(apperr.Validation, "scheduledDate must be RFC 3339 or YYYY-MM-DD").With("field", "scheduledDate")
		}
		t.ScheduledDate = at
	}
	return nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t.UTC(), err
}

type TipQuery struct {
	PatientID string
	Category  string
	Unread    bool
	// From and To bound scheduledDate, half-open. Zero is open.
	From, To time.Time
}

// ListTips returns tips visible to the caller, most recently scheduled
// first. Without a patient id a patient sees their own tips, a nurse the
// tips they wrote, and an admin everything.
func (a *App) ListTips(ctx context.Context, p domain.Principal, q TipQuery) ([]domain.MotivationalTip, error) {
	f := store.Where(store.Between("scheduledDate", q.From, q.To)).Sort("scheduledDate", false)
	if id := strings.TrimSpace(q.PatientID); id != "" {
		pt, err := a.patients.Patient(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := policy.Check(p, policy.ReadOwnTips, policy.Ownership{PatientID: pt.ID, NurseID: pt.AssignedNurseID}); err != nil {
			return nil, err
		}
		f = f.And(store.Eq("patientId", pt.ID))
	} else {
		switch p.Role {
		case domain.RolePatient:
			if p.ProfileID == "" {
				return []domain.MotivationalTip{}, nil
			}
			f = f.And(store.Eq("patientId", p.ProfileID))
		case domain.RoleNurse:
			if p.ProfileID == "" {
				return []domain.MotivationalTip{}, nil
			}
			f = f.And(store.Eq("nurseId", p.ProfileID))
		case domain.RoleAdmin:
		default:
			return nil, policy.Check(p, policy.ReadOwnTips, policy.Ownership{})
		}
	}
	if c := strings.TrimSpace(q.Category); c != "" {
		cat := domain.TipCategory(strings.ToUpper(c))
		if !cat.Valid() {
			return nil, ErrInvalidCategory
		}
		f = f.And(store.Eq("category", cat))
	}
	if q.Unread {
		f = f.And(store.Eq("isRead", false))
	}
	return a.tips.FindMany(ctx, f)
}

// MarkRead is idempotent; the first read time is kept.
func (a *App) MarkRead(ctx context.Context, p domain.Principal, id string) (domain.MotivationalTip, error) {
	tip, err := a.tips.FindByID(ctx, id)
	if err != nil {
		return domain.MotivationalTip{}, err
	}
	if err := policy.Check(p, policy.MarkOwnTipRead, policy.Ownership{PatientID: tip.PatientID}); err != nil {
		return domain.MotivationalTip{}, err
	}
	if tip.IsRead {
		return tip, nil
	}
	now := a.now().UTC()
	return a.tips.Update(ctx, id, store.Patch[domain.MotivationalTip]{Apply: func(t *domain.MotivationalTip) error {
		if !t.IsRead {
			t.IsRead = true
			t.ReadAt = &now
		}
		return nil
	}})
}

type TipUpdate struct {
	Title         *string `json:"title"`
	Content       *string `json:"content"`
	Category      *string `json:"category"`
	Priority      *string `json:"priority"`
	ScheduledDate *string `json:"scheduledDate"`
}

func (u TipUpdate) apply(t *domain.MotivationalTip) error {
	in := TipInput{Title: t.Title, Content: t.Content}
	if u.Title != nil {
		in.Title = *u.Title
	}
	if u.Content != nil {
		in.Content = *u.Content
	}
	if u.Category != nil {
		in.Category = *u.Category
	}
	if u.Priority != nil {
		in.Priority = *u.Priority
	}
	if u.ScheduledDate != nil {
		in.ScheduledDate = *u.ScheduledDate
	}
	return in.apply(t)
}

// authored loads a tip the caller wrote.
func (a *App) authored(ctx context.Context, p domain.Principal, id string) (domain.MotivationalTip, error) {
	tip, err := a.tips.FindByID(ctx, id)
	if err != nil {
		return domain.MotivationalTip{}, err
	}
	if err := policy.Check(p, policy.WriteOwnTip, policy.Ownership{PatientID: tip.PatientID, NurseID: tip.NurseID}); err != nil {
		return domain.MotivationalTip{}, err
	}
	return tip, nil
}

func (a *App) UpdateTip(ctx context.Context, p domain.Principal, id string, u TipUpdate) (domain.MotivationalTip, error) {
	cur, err := a.authored(ctx, p, id)
	if err != nil {
		return domain.MotivationalTip{}, err
	}
	return a.tips.Update(ctx, id, store.Patch[domain.MotivationalTip]{IfVersion: cur.Version, Apply: u.apply})
}

func (a *App) DeleteTip(ctx context.Context, p domain.Principal, id string) error {
	if _, err := a.authored(ctx, p, id); err != nil {
		return err
	}
	return a.tips.Delete(ctx, id)
}
