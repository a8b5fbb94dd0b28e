// Package app holds the patient records core: profiles, nurse assignment
// and the clinical records kept under a patient.
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

// NurseDirectory looks nurses up in the nurse service.
type NurseDirectory interface {
	Nurse(ctx context.Context, id string) (domain.Nurse, error)
	NurseByUser(ctx context.Context, userID string) (domain.Nurse, error)
}

type Config struct {
	Patients     store.Repository[domain.Patient]
	Vitals       store.Repository[domain.VitalSigns]
	Conditions   store.Repository[domain.MedicalCondition]
	Medications  store.Repository[domain.Medication]
	Appointments store.Repository[domain.Appointment]
	Checklists   store.Repository[domain.SymptomChecklist]
	// Nurses may be nil; nurse principals then resolve to no profile and
	// assignment reports the directory as unavailable.
	Nurses NurseDirectory
	Now    func() time.Time
}

// App is the patient records core.
type App struct {
	patients     store.Repository[domain.Patient]
	vitals       store.Repository[domain.VitalSigns]
	conditions   store.Repository[domain.MedicalCondition]
	medications  store.Repository[domain.Medication]
	appointments store.Repository[domain.Appointment]
	checklists   store.Repository[domain.SymptomChecklist]
	nurses       NurseDirectory
	now          func() time.Time
}

func New(cfg Config) (*App, error) {
	if cfg.Patients == nil || cfg.Vitals == nil || cfg.Conditions == nil ||
		cfg.Medications == nil || cfg.Appointments == nil || cfg.Checklists == nil {
		return nil, errors.New("patient app: all record repositories are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		patients:     cfg.Patients,
		vitals:       cfg.Vitals,
		conditions:   cfg.Conditions,
		medications:  cfg.Medications,
		appointments: cfg.Appointments,
		checklists:   cfg.Checklists,
		nurses:       cfg.Nurses,
		now:          cfg.Now,
	}, nil
}

// ResolveProfile maps a principal to its profile id: patients locally,
// nurses through the nurse service.
func (a *App) ResolveProfile(ctx context.Context, p domain.Principal) (string, error) {
	switch p.Role {
	case domain.RolePatient:
		pt, err := a.patientByUser(ctx, p.SubjectID)
		if apperr.Is(err, apperr.NotFound) {
			return "", nil
		}
		return pt.ID, err
	case domain.RoleNurse:
		if a.nurses == nil {
			return "", nil
		}
		n, err := a.nurses.NurseByUser(ctx, p.SubjectID)
		if apperr.Is(err, apperr.NotFound) {
			return "", nil
		}
		return n.ID, err
	}
	return "", nil
}

func ownership(pt domain.Patient) policy.Ownership {
	return policy.Ownership{UserID: pt.UserID, PatientID: pt.ID, NurseID: pt.AssignedNurseID}
}

// Staff may read any record; everyone else only their own.
func authorizeRead(p domain.Principal, pt domain.Patient) error {
	if policy.Authorize(p, policy.ReadAnyPatientRecord, policy.Ownership{}).Allowed {
		return nil
	}
	return policy.Check(p, policy.ReadOwnPatientRecord, ownership(pt))
}

func (a *App) patientByUser(ctx context.Context, userID string) (domain.Patient, error) {
	return store.FindOne(ctx, a.patients, store.Where(store.Eq("userId", userID)))
}

// PatientUpdate carries the editable profile fields; nil leaves a field
// unchanged.
type PatientUpdate struct {
	DateOfBirth       *string                  `json:"dateOfBirth"`
	Gender            *string                  `json:"gender"`
	BloodType         *string                  `json:"bloodType"`
	Height            *float64                 `json:"height"`
	Weight            *float64                 `json:"weight"`
	Allergies         *[]string                `json:"allergies"`
	ChronicConditions *[]string                `json:"chronicConditions"`
	EmergencyContact  *domain.EmergencyContact `json:"emergencyContact"`
}

func (u PatientUpdate) apply(pt *domain.Patient) error {
	if u.DateOfBirth != nil {
		dob, err := parseOptionalDate("dateOfBirth", *u.DateOfBirth)
		if err != nil {
			return err
		}
		pt.DateOfBirth = dob
	}
	if u.Gender != nil {
		g := domain.Gender(upper(*u.Gender))
		if g != "" && !g.Valid() {
			return ErrInvalidGender
		}
		pt.Gender = g
	}
	if u.BloodType != nil {
		b := domain.BloodType(upper(*u.BloodType))
		if b != "" && !b.Valid() {
			return ErrInvalidBloodType
		}
		pt.BloodType = b
	}
	if u.Height != nil {
		if *u.Height < 0 {
			return apperr.New(apperr.Validation, "height must not be negative").With("field", "height")
		}
		pt.Height = *u.Height
	}
	if u.Weight != nil {
		if *u.Weight < 0 {
			return apperr.New(apperr.Validation, "weight must not be negative").With("field", "weight")
		}
		pt.Weight = *u.Weight
	}
	if u.Allergies != nil {
		pt.Allergies = cleanList(*u.Allergies)
	}
	if u.ChronicConditions != nil {
		pt.ChronicConditions = cleanList(*u.ChronicConditions)
	}
	if c := u.EmergencyContact; c != nil {
		contact := domain.EmergencyContact{
			Name:         strings.TrimSpace(c.Name),
			Relationship: strings.TrimSpace(c.Relationship),
			Phone:        strings.TrimSpace(c.Phone),
			Email:        strings.TrimSpace(c.Email),
		}
		if contact.Name == "" || contact.Phone == "" {
			return apperr.New(apperr.Validation, "emergencyContact needs a name and a phone").With("field", "emergencyContact")
		}
		pt.EmergencyContact = &contact
	}
	return nil
}

type CreatePatientInput struct {
	UserID          string `json:"userId"`
	AssignedNurseID string `json:"assignedNurseId"`
	PatientUpdate
}

// CreatePatient opens a profile for a user account. One per user.
func (a *App) CreatePatient(ctx context.Context, p domain.Principal, in CreatePatientInput) (domain.Patient, error) {
	if err := policy.Check(p, policy.CreatePatientProfile, policy.Ownership{}); err != nil {
		return domain.Patient{}, err
	}
	pt := domain.Patient{
		UserID:            strings.TrimSpace(in.UserID),
		Allergies:         []string{},
		ChronicConditions: []string{},
	}
	if pt.UserID == "" {
		return domain.Patient{}, apperr.New(apperr.Validation, "userId is required").With("field", "userId")
	}
	if err := in.PatientUpdate.apply(&pt); err != nil {
		return domain.Patient{}, err
	}
	if id := strings.TrimSpace(in.AssignedNurseID); id != "" {
		n, err := a.availableNurse(ctx, id)
		if err != nil {
			return domain.Patient{}, err
		}
		pt.AssignedNurseID = n.ID
	}
	created, err := a.patients.Create(ctx, pt)
	if apperr.Is(err, apperr.Conflict) {
		return domain.Patient{}, ErrPatientExists
	}
	return created, err
}

// ListPatients is for staff, optionally narrowed to one nurse's patients.
func (a *App) ListPatients(ctx context.Context, p domain.Principal, nurseID string) ([]domain.Patient, error) {
	if err := policy.Check(p, policy.ReadAnyPatientRecord, policy.Ownership{}); err != nil {
		return nil, err
	}
	f := store.Where()
	if nurseID = strings.TrimSpace(nurseID); nurseID != "" {
		f = f.And(store.Eq("assignedNurseId", nurseID))
	}
	return a.patients.FindMany(ctx, f)
}

// MyPatient returns the caller's own profile.
func (a *App) MyPatient(ctx context.Context, p domain.Principal) (domain.Patient, error) {
	if p.Role != domain.RolePatient {
		return domain.Patient{}, ErrNoPatientProfile
	}
	pt, err := a.patientByUser(ctx, p.SubjectID)
	if apperr.Is(err, apperr.NotFound) {
		return domain.Patient{}, ErrNoPatientProfile
	}
	return pt, err
}

// PatientByUser is open to the account owner and to staff.
func (a *App) PatientByUser(ctx context.Context, p domain.Principal, userID string) (domain.Patient, error) {
	if !policy.Authorize(p, policy.ReadAnyPatientRecord, policy.Ownership{}).Allowed {
		if err := policy.Check(p, policy.AccessOwnAccount, policy.Ownership{UserID: userID}); err != nil {
			return domain.Patient{}, err
		}
	}
	return a.patientByUser(ctx, userID)
}

func (a *App) GetPatient(ctx context.Context, p domain.Principal, id string) (domain.Patient, error) {
	pt, err := a.patients.FindByID(ctx, id)
	if err != nil {
		return domain.Patient{}, err
	}
	if err := authorizeRead(p, pt); err != nil {
		return domain.Patient{}, err
	}
	return pt, nil
}

// UpdatePatient edits the profile. The write is conditional on the version
// the decision was made against.
func (a *App) UpdatePatient(ctx context.Context, p domain.Principal, id string, u PatientUpdate) (domain.Patient, error) {
	pt, err := a.patients.FindByID(ctx, id)
	if err != nil {
		return domain.Patient{}, err
	}
	if err := policy.Check(p, policy.WriteOwnPatientRecord, ownership(pt)); err != nil {
		return domain.Patient{}, err
	}
	return a.patients.Update(ctx, id, store.Patch[domain.Patient]{IfVersion: pt.Version, Apply: u.apply})
}

// AssignNurse points the patient at an available nurse.
func (a *App) AssignNurse(ctx context.Context, p domain.Principal, id, nurseID string) (domain.Patient, error) {
	if err := policy.Check(p, policy.AssignNurse, policy.Ownership{}); err != nil {
		return domain.Patient{}, err
	}
	nurseID = strings.TrimSpace(nurseID)
	if nurseID == "" {
		return domain.Patient{}, apperr.New(apperr.Validation, "nurseId is required").With("field", "nurseId")
	}
	if _, err := a.patients.FindByID(ctx, id); err != nil {
		return domain.Patient{}, err
	}
	n, err := a.availableNurse(ctx, nurseID)
	if err != nil {
		return domain.Patient{}, err
	}
	pt, err := a.patients.Update(ctx, id, store.Patch[domain.Patient]{Apply: func(pt *domain.Patient) error {
		pt.AssignedNurseID = n.ID
		return nil
	}})
	if err != nil {
		return domain.Patient{}, err
	}
	util.LoggerFromContext(ctx).Info().
		Str("patient_id", pt.ID).
		Str("nurse_id", n.ID).
		Str("actor_id", p.SubjectID).
		Msg("nurse assigned")
	return pt, nil
}

func (a *App) availableNurse(ctx context.Context, id string) (domain.Nurse, error) {
	if a.nurses == nil {
		return domain.Nurse{}, apperr.New(apperr.DependencyUnavailable, "nurse directory not configured")
	}
	n, err := a.nurses.Nurse(ctx, id)
	if apperr.Is(err, apperr.NotFound) {
		return domain.Nurse{}, ErrUnknownNurse
	}
	if err != nil {
		return domain.Nurse{}, err
	}
	if !n.IsAvailable {
		return domain.Nurse{}, ErrNurseUnavailable
	}
	return n, nil
}

// Lookup and LookupByUser serve peer services, which authenticate with a
// service credential instead of a principal.
func (a *App) Lookup(ctx context.Context, id string) (domain.Patient, error) {
	return a.patients.FindByID(ctx, id)
}

func (a *App) LookupByUser(ctx context.Context, userID string) (domain.Patient, error) {
	return a.patientByUser(ctx, userID)
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(v)]; dup {
			continue
		}
		seen[strings.ToLower(v)] = struct{}{}
		out = append(out, v)
	}
	return out
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperr.New(apperr.Validation, field+" must be YYYY-MM-DD or RFC 3339").With("field", field)
}

// parseOptionalDate treats an empty string as clearing the date.
func parseOptionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
