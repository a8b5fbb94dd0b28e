// Package app holds the nurse directory and the motivational tips nurses
// send to their patients.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"carelink/internal/policy"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/pkg/store"
)

// PatientDirectory looks patients up in the patient service.
type PatientDirectory interface {
	Patient(ctx context.Context, id string) (domain.Patient, error)
	PatientByUser(ctx context.Context, userID string) (domain.Patient, error)
}

type Config struct {
	Nurses   store.Repository[domain.Nurse]
	Tips     store.Repository[domain.MotivationalTip]
	Patients PatientDirectory
	Now      func() time.Time
}

// App is the nurse core.
type App struct {
	nurses   store.Repository[domain.Nurse]
	tips     store.Repository[domain.MotivationalTip]
	patients PatientDirectory
	now      func() time.Time
}

func New(cfg Config) (*App, error) {
	if cfg.Nurses == nil || cfg.Tips == nil {
		return nil, errors.New("nurse app: nurse and tip repositories are required")
	}
	if cfg.Patients == nil {
		return nil, errors.New("nurse app: patient directory required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{nurses: cfg.Nurses, tips: cfg.Tips, patients: cfg.Patients, now: cfg.Now}, nil
}

// ResolveProfile maps a principal to its profile id: nurses locally,
// patients through the patient service.
func (a *App) ResolveProfile(ctx context.Context, p domain.Principal) (string, error) {
	var (
		id  string
		err error
	)
	switch p.Role {
	case domain.RoleNurse:
		var n domain.Nurse
		n, err = a.nurseByUser(ctx, p.SubjectID)
		id = n.ID
	case domain.RolePatient:
		var pt domain.Patient
		pt, err = a.patients.PatientByUser(ctx, p.SubjectID)
		id = pt.ID
	default:
		return "", nil
	}
	if apperr.Is(err, apperr.NotFound) {
		return "", nil
	}
	return id, err
}

func (a *App) nurseByUser(ctx context.Context, userID string) (domain.Nurse, error) {
	return store.FindOne(ctx, a.nurses, store.Where(store.Eq("userId", userID)))
}

type NurseInput struct {
	UserID            string `json:"userId"`
	LicenseNumber     string `json:"licenseNumber"`
	Specialization    string `json:"specialization"`
	YearsOfExperience int    `json:"yearsOfExperience"`
	Shift             string `json:"shift"`
	// IsAvailable defaults to true.
	IsAvailable *bool `json:"isAvailable"`
}

// CreateNurse opens a nurse profile. Admin only.
func (a *App) CreateNurse(ctx context.Context, p domain.Principal, in NurseInput) (domain.Nurse, error) {
	if err := policy.Check(p, policy.AdminOnly, policy.Ownership{}); err != nil {
		return domain.Nurse{}, err
	}
	n := domain.Nurse{
		UserID:            strings.TrimSpace(in.UserID),
		LicenseNumber:     strings.TrimSpace(in.LicenseNumber),
		Specialization:    strings.TrimSpace(in.Specialization),
		YearsOfExperience: in.YearsOfExperience,
		Shift:             domain.Shift(strings.ToUpper(strings.TrimSpace(in.Shift))),
		IsAvailable:       in.IsAvailable == nil || *in.IsAvailable,
	}
	for _, f := range []struct{ name, value string }{
		{"userId", n.UserID},
		{"licenseNumber", n.LicenseNumber},
		{"specialization", n.Specialization},
	} {
		if f.value == "" {
			return domain.Nurse{}, apperr.New(apperr.Validation, f.name+" is required").With("field", f.name)
		}
	}
	if err := validateNurse(n); err != nil {
		return domain.Nurse{}, err
	}
	created, err := a.nurses.Create(ctx, n)
	if apperr.Is(err, apperr.Conflict) {
		return domain.Nurse{}, ErrNurseExists
	}
	return created, err
}

func validateNurse(n domain.Nurse) error {
	if n.Shift != "" && !n.Shift.Valid() {
		return ErrInvalidShift
	}
	if n.YearsOfExperience < 0 {
		return apperr.New(apperr.Validation, "yearsOfExperience must not be negative").With("field", "yearsOfExperience")
	}
	return nil
}

type NurseQuery struct {
	Available      *bool
	Specialization string
}

// ListNurses is the directory every role may browse.
func (a *App) ListNurses(ctx context.Context, p domain.Principal, q NurseQuery) ([]domain.Nurse, error) {
	if err := policy.Check(p, policy.ReadNurseDirectory, policy.Ownership{}); err != nil {
		return nil, err
	}
	f := store.Where().Sort("createdAt", true)
	if q.Available != nil {
		f = f.And(store.Eq("isAvailable", *q.Available))
	}
	if s := strings.TrimSpace(q.Specialization); s != "" {
		f = f.And(store.Eq("specialization", s))
	}
	return a.nurses.FindMany(ctx, f)
}

func (a *App) MyNurse(ctx context.Context, p domain.Principal) (domain.Nurse, error) {
	if p.Role != domain.RoleNurse {
		return domain.Nurse{}, ErrNoNurseProfile
	}
	n, err := a.nurseByUser(ctx, p.SubjectID)
	if apperr.Is(err, apperr.NotFound) {
		return domain.Nurse{}, ErrNoNurseProfile
	}
	return n, err
}

func (a *App) NurseByUser(ctx context.Context, p domain.Principal, userID string) (domain.Nurse, error) {
	if err := policy.Check(p, policy.ReadNurseDirectory, policy.Ownership{}); err != nil {
		return domain.Nurse{}, err
	}
	return a.nurseByUser(ctx, userID)
}

func (a *App) GetNurse(ctx context.Context, p domain.Principal, id string) (domain.Nurse, error) {
	if err := policy.Check(p, policy.ReadNurseDirectory, policy.Ownership{}); err != nil {
		return domain.Nurse{}, err
	}
	return a.nurses.FindByID(ctx, id)
}

type NurseUpdate struct {
	LicenseNumber     *string `json:"licenseNumber"`
	Specialization    *string `json:"specialization"`
	YearsOfExperience *int    `json:"yearsOfExperience"`
	Shift             *string `json:"shift"`
	IsAvailable       *bool   `json:"isAvailable"`
}

func (u NurseUpdate) apply(n *domain.Nurse) error {
	if u.LicenseNumber != nil {
		if n.LicenseNumber = strings.TrimSpace(*u.LicenseNumber); n.LicenseNumber == "" {
			return apperr.New(apperr.Validation, "licenseNumber must not be blank").With("field", "licenseNumber")
		}
	}
	if u.Specialization != nil {
		if n.Specialization = strings.TrimSpace(*u.Specialization); n.Specialization == "" {
			return apperr.New(apperr.Validation, "specialization must not be blank").With("field", "specialization")
		}
	}
	if u.YearsOfExperience != nil {
		n.YearsOfExperience = *u.YearsOfExperience
	}
	if u.Shift != nil {
		n.Shift = domain.Shift(strings.ToUpper(strings.TrimSpace(*u.Shift)))
	}
	if u.IsAvailable != nil {
		n.IsAvailable = *u.IsAvailable
	}
	return validateNurse(*n)
}

// UpdateNurse lets a nurse edit their own record; admins edit any.
func (a *App) UpdateNurse(ctx context.Context, p domain.Principal, id string, u NurseUpdate) (domain.Nurse, error) {
	cur, err := a.nurses.FindByID(ctx, id)
	if err != nil {
		return domain.Nurse{}, err
	}
	if err := policy.Check(p, policy.WriteOwnNurseRecord, policy.Ownership{UserID: cur.UserID, NurseID: cur.ID}); err != nil {
		return domain.Nurse{}, err
	}
	n, err := a.nurses.Update(ctx, id, store.Patch[domain.Nurse]{IfVersion: cur.Version, Apply: u.apply})
	if apperr.Is(err, apperr.Conflict) && u.LicenseNumber != nil {
		return domain.Nurse{}, ErrNurseExists
	}
	return n, err
}

// SetAvailability flips whether the nurse takes new patients.
func (a *App) SetAvailability(ctx context.Context, p domain.Principal, id string, available bool) (domain.Nurse, error) {
	n, err := a.UpdateNurse(ctx, p, id, NurseUpdate{IsAvailable: &available})
	if err != nil {
		return domain.Nurse{}, err
	}
	util.LoggerFromContext(ctx).Info().
		Str("nurse_id", n.ID).
		Bool("available", n.IsAvailable).
		Msg("nurse availability changed")
	return n, nil
}

// DeleteNurse removes a profile. Admin only.
func (a *App) DeleteNurse(ctx context.Context, p domain.Principal, id string) error {
	if err := policy.Check(p, policy.AdminOnly, policy.Ownership{}); err != nil {
		return err
	}
	return a.nurses.Delete(ctx, id)
}

// Lookup and LookupByUser serve peer services.
func (a *App) Lookup(ctx context.Context, id string) (domain.Nurse, error) {
	return a.nurses.FindByID(ctx, id)
}

func (a *App) LookupByUser(ctx context.Context, userID string) (domain.Nurse, error) {
	return a.nurseByUser(ctx, userID)
}
