package app

import (
	"context"
	"strings"
	"time"

	"carelink/internal/policy"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/pkg/store"
	"carelink/services/patient/internal/triage"
)

// readable loads the patient and checks the caller may see its records.
func (a *App) readable(ctx context.Context, p domain.Principal, patientID string) (domain.Patient, error) {
	pt, err := a.patients.FindByID(ctx, patientID)
	if err != nil {
		return domain.Patient{}, err
	}
	return pt, authorizeRead(p, pt)
}

// clinical loads the patient and checks the caller is its assigned nurse
// or an admin.
func (a *App) clinical(ctx context.Context, p domain.Principal, patientID string) (domain.Patient, error) {
	pt, err := a.patients.FindByID(ctx, patientID)
	if err != nil {
		return domain.Patient{}, err
	}
	return pt, policy.Check(p, policy.WriteOwnClinicalRecord, ownership(pt))
}

// childOf fetches a record and hides it unless it belongs to patientID.
func childOf[T any](ctx context.Context, repo store.Repository[T], id, patientID string, owner func(T) string) (T, error) {
	rec, err := repo.FindByID(ctx, id)
	if err != nil {
		return rec, err
	}
	if owner(rec) != patientID {
		var zero T
		return zero, store.ErrNotFound
	}
	return rec, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.New(apperr.Validation, field+" is required").With("field", field)
	}
	return nil
}

// Vital signs

type VitalsInput struct {
	BloodPressure string     `json:"bloodPressure"`
	HeartRate     int        `json:"heartRate"`
	Temperature   float64    `json:"temperature"`
	OxygenLevel   float64    `json:"oxygenLevel"`
	Timestamp     *time.Time `json:"timestamp"`
}

func (in VitalsInput) validate() error {
	if _, _, err := triage.ParseBloodPressure(in.BloodPressure); err != nil {
		return err
	}
	if in.HeartRate <= 0 {
		return apperr.New(apperr.Validation, "heartRate must be positive").With("field", "heartRate")
	}
	if in.OxygenLevel < 0 || in.OxygenLevel > 100 {
		return apperr.New(apperr.Validation, "oxygenLevel must be between 0 and 100").With("field", "oxygenLevel")
	}
	if in.Temperature < 0 {
		return apperr.New(apperr.Validation, "temperature must not be negative").With("field", "temperature")
	}
	return nil
}

func (a *App) RecordVitals(ctx context.Context, p domain.Principal, patientID string, in VitalsInput) (domain.VitalSigns, error) {
	if _, err := a.clinical(ctx, p, patientID); err != nil {
		return domain.VitalSigns{}, err
	}
	if err := in.validate(); err != nil {
		return domain.VitalSigns{}, err
	}
	at := a.now().UTC()
	if in.Timestamp != nil {
		at = in.Timestamp.UTC()
	}
	return a.vitals.Create(ctx, domain.VitalSigns{
		PatientID:     patientID,
		BloodPressure: strings.ReplaceAll(in.BloodPressure, " ", ""),
		HeartRate:     in.HeartRate,
		Temperature:   in.Temperature,
		OxygenLevel:   in.OxygenLevel,
		RecordedBy:    p.SubjectID,
		Timestamp:     at,
	})
}

// ListVitals returns readings in [from, to), newest first. Zero bounds are
// open.
func (a *App) ListVitals(ctx context.Context, p domain.Principal, patientID string, from, to time.Time) ([]domain.VitalSigns, error) {
	if _, err := a.readable(ctx, p, patientID); err != nil {
		return nil, err
	}
	return a.vitals.FindMany(ctx, store.Where(
		store.Eq("patientId", patientID),
		store.Between("timestamp", from, to),
	).Sort("timestamp", false))
}

// Medical conditions

type ConditionInput struct {
	Condition       *string   `json:"condition"`
	Severity        *string   `json:"severity"`
	Symptoms        *[]string `json:"symptoms"`
	Recommendations *string   `json:"recommendations"`
}

func (in ConditionInput) apply(c *domain.MedicalCondition) error {
	if in.Condition != nil {
		if err := required("condition", *in.Condition); err != nil {
			return err
		}
		c.Condition = strings.TrimSpace(*in.Condition)
	}
	if in.Severity != nil {
		s := domain.Severity(upper(*in.Severity))
		if !s.Valid() {
			return ErrInvalidSeverity
		}
		c.Severity = string(s)
	}
	if in.Symptoms != nil {
		c.Symptoms = cleanList(*in.Symptoms)
	}
	if in.Recommendations != nil {
		c.Recommendations = strings.TrimSpace(*in.Recommendations)
	}
	return nil
}

func (a *App) AddCondition(ctx context.Context, p domain.Principal, patientID string, in ConditionInput) (domain.MedicalCondition, error) {
	if _, err := a.clinical(ctx, p, patientID); err != nil {
		return domain.MedicalCondition{}, err
	}
	if in.Condition == nil {
		return domain.MedicalCondition{}, required("condition", "")
	}
	if in.Severity == nil {
		return domain.MedicalCondition{}, required("severity", "")
	}
	c := domain.MedicalCondition{PatientID: patientID, Symptoms: []string{}}
	if err := in.apply(&c); err != nil {
		return domain.MedicalCondition{}, err
	}
	return a.conditions.Create(ctx, c)
}

func (a *App) ListConditions(ctx context.Context, p domain.Principal, patientID string) ([]domain.MedicalCondition, error) {
	if _, err := a.readable(ctx, p, patientID); err != nil {
		return nil, err
	}
	return a.conditions.FindMany(ctx, store.Where(store.Eq("patientId", patientID)))
}

func (a *App) UpdateCondition(ctx context.Context, p domain.Principal, patientID, id string, in ConditionInput) (domain.MedicalCondition, error) {
	if _, err := a.clinical(ctx, p, patientID); err != nil {
		return domain.MedicalCondition{}, err
	}
	cur, err := childOf(ctx, a.conditions, id, patientID, func(c domain.MedicalCondition) string { return c.PatientID })
	if err != nil {
		return domain.MedicalCondition{}, err
	}
	return a.conditions.Update(ctx, id, store.Patch[domain.MedicalCondition]{IfVersion: cur.Version, Apply: in.apply})
}

// ReviewCondition records a clinician's review. A later review replaces an
// earlier one.
func (a *App) ReviewCondition(ctx context.Context, p domain.Principal, patientID, id, review string) (domain.MedicalCondition, error) {
	if _, err := a.clinical(ctx, p, patientID); err != nil {
		return domain.MedicalCondition{}, err
	}
	if err := required("review", review); err != nil {
		return domain.MedicalCondition{}, err
	}
	if _, err := childOf(ctx, a.conditions, id, patientID, func(c domain.MedicalCondition) string { return c.PatientID }); err != nil {
		return domain.MedicalCondition{}, err
	}
	now := a.now().UTC()
	return a.conditions.Update(ctx, id, store.Patch[domain.MedicalCondition]{Apply: func(c *domain.MedicalCondition) error {
		c.Review = strings.TrimSpace(review)
		c.ReviewedBy = p.SubjectID
		c.ReviewedAt = &now
		return nil
	}})
}

// Medications

type MedicationInput struct {
	Name      *string `json:"name"`
	Dosage    *string `json:"dosage"`
	Frequency *string `json:"frequency"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
	Notes     *string `json:"notes"`
}

func (in MedicationInput) apply(m *domain.Medication) error {
	for _, f := range []struct {
		name string
		src  *string
		dst  *string
	}{
		{"name", in.Name, &m.Name},
		{"dosage", in.Dosage, &m.Dosage},
		{"frequency", in.Frequency, &m.Frequency},
	} {
		if f.src == nil {
			continue
		}
		if err := required(f.name, *f.src); err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(*f.src)
	}
	if in.StartDate != nil {
		start, err := parseDate("startDate", *in.StartDate)
		if err != nil {
			return err
		}
		m.StartDate = start
	}
	if in.EndDate != nil {
		end, err := parseOptionalDate("endDate", *in.EndDate)
		if err != nil {
			return err
		}
		m.EndDate = end
	}
	if m.EndDate != nil && m.EndDate.Before(m.StartDate) {
		return apperr.New(apperr.Validation, "endDate must not precede startDate").With("field", "endDate")
	}
	if in.Notes != nil {
		m.Notes = strings.TrimSpace(*in.Notes)
	}
	return nil
}

func (a *App) AddMedication(ctx context.Context, p domain.Principal, patientID string, in MedicationInput) (domain.Medication, error) {
	if _, err := a.clinical(ctx, p, patientID); err != nil {
		return domain.Medication{}, err
	}
	for name, v := range map[string]*string{"name": in.Name, "dosage": in.Dosage, "frequency": in.Frequency} {
		if v == nil {
			return domain.Medication{}, required(name, "")
		}
	}
	m := domain.Medication{PatientID: patientID, StartDate: a.now().UTC().Truncate(24 * time.Hour)}
	if err := in.apply(&m); err != nil {
		return domain.Medication{}, err
	}
	return a.medications.Create(ctx, m)
}

func (a *App) ListMedications(ctx context.Context, p domain.Principal, patientID string) ([]domain.Medication, error) {
	if _, err := a.readable(ctx, p, patientID); err != nil {
		return nil, err
	}
	return a.medications.FindMany(ctx, store.Where(store.Eq("patientId", patientID)).Sort("startDate", false))
}

func (a *App) UpdateMedication(ctx context.Context, p domain.Principal, patientID, id string, in MedicationInput) (domain.Medication, error) {
	if _, err := a.clinical(ctx, p, patientID); err != nil {
		return domain.Medication{}, err
	}
	cur, err := childOf(ctx, a.medications, id, patientID, func(m domain.Medication) string { return m.PatientID })
	if err != nil {
		return domain.Medication{}, err
	}
	return a.medications.Update(ctx, id, store.Patch[domain.Medication]{IfVersion: cur.Version, Apply: in.apply})
}

// Appointments

type AppointmentInput struct {
	Type     *string `json:"type"`
	Date     *string `json:"date"`
	Time     *string `json:"time"`
	Location *string `json:"location"`
	Notes    *string `json:"notes"`
	Status   *string `json:"status"`
}

// Patients book and edit their own appointments; any nurse may too.
func (a *App) appointmentPatient(ctx context.Context, p domain.Principal, patientID string) (domain.Patient, error) {
	pt, err := a.patients.FindByID(ctx, patientID)
	if err != nil {
		return domain.Patient{}, err
	}
	if policy.Authorize(p, policy.ReadAnyPatientRecord, policy.Ownership{}).Allowed {
		return pt, nil
	}
	return pt, policy.Check(p, policy.WriteOwnPatientRecord, ownership(pt))
}

func (in AppointmentInput) apply(ap *domain.Appointment) error {
	if ap.Status != "" && ap.Status != domain.AppointmentScheduled {
		return ErrAppointmentClosed.With("current", string(ap.Status))
	}
	if in.Status != nil {
		next := domain.AppointmentStatus(upper(*in.Status))
		if !next.Valid() {
			return apperr.New(apperr.Validation, "status must be SCHEDULED, COMPLETED or CANCELLED").With("field", "status")
		}
		ap.Status = next
	}
	for _, f := range []struct {
		name string
		src  *string
		dst  *string
	}{
		{"type", in.Type, &ap.Type},
		{"location", in.Location, &ap.Location},
	} {
		if f.src == nil {
			continue
		}
		if err := required(f.name, *f.src); err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(*f.src)
	}
	if in.Date != nil {
		d, err := time.Parse(time.DateOnly, strings.TrimSpace(*in.Date))
		if err != nil {
			return apperr.New(apperr.Validation, "date must be YYYY-MM-DD").With("field", "date")
		}
		ap.Date = d.Format(time.DateOnly)
	}
	if in.Time != nil {
		t, err := time.Parse("15:04", strings.TrimSpace(*in.Time))
		if err != nil {
			return apperr.New(apperr.Validation, "time must be HH:MM").With("field", "time")
		}
		ap.Time = t.Format("15:04")
	}
	if in.Notes != nil {
		ap.Notes = strings.TrimSpace(*in.Notes)
	}
	return nil
}

// BookAppointment creates a SCHEDULED appointment.
func (a *App) BookAppointment(ctx context.Context, p domain.Principal, patientID string, in AppointmentInput) (domain.Appointment, error) {
	if _, err := a.appointmentPatient(ctx, p, patientID); err != nil {
		return domain.Appointment{}, err
	}
	for name, v := range map[string]*string{"type": in.Type, "date": in.Date, "time": in.Time, "location": in.Location} {
		if v == nil {
			return domain.Appointment{}, required(name, "")
		}
	}
	if in.Status != nil && domain.AppointmentStatus(upper(*in.Status)) != domain.AppointmentScheduled {
		return domain.Appointment{}, apperr.New(apperr.Validation, "new appointments are SCHEDULED").With("field", "status")
	}
	ap := domain.Appointment{PatientID: patientID, Status: domain.AppointmentScheduled}
	if err := in.apply(&ap); err != nil {
		return domain.Appointment{}, err
	}
	return a.appointments.Create(ctx, ap)
}

func (a *App) ListAppointments(ctx context.Context, p domain.Principal, patientID string, status string) ([]domain.Appointment, error) {
	if _, err := a.readable(ctx, p, patientID); err != nil {
		return nil, err
	}
	f := store.Where(store.Eq("patientId", patientID))
	if s := upper(status); s != "" {
		f = f.And(store.Eq("status", s))
	}
	return a.appointments.FindMany(ctx, f)
}

// UpdateAppointment edits a scheduled appointment or closes it as
// COMPLETED or CANCELLED. Closed appointments are final.
func (a *App) UpdateAppointment(ctx context.Context, p domain.Principal, patientID, id string, in AppointmentInput) (domain.Appointment, error) {
	if _, err := a.appointmentPatient(ctx, p, patientID); err != nil {
		return domain.Appointment{}, err
	}
	cur, err := childOf(ctx, a.appointments, id, patientID, func(ap domain.Appointment) string { return ap.PatientID })
	if err != nil {
		return domain.Appointment{}, err
	}
	return a.appointments.Update(ctx, id, store.Patch[domain.Appointment]{IfVersion: cur.Version, Apply: in.apply})
}

// Symptom checklists

type ChecklistInput struct {
	Symptoms  []domain.Symptom `json:"symptoms"`
	Notes     string           `json:"notes"`
	VisitDate string           `json:"visitDate"`
	// NurseID is honoured for admins only; a nurse always records as self.
	NurseID string `json:"nurseId"`
}

func (a *App) RecordChecklist(ctx context.Context, p domain.Principal, patientID string, in ChecklistInput) (domain.SymptomChecklist, error) {
	pt, err := a.clinical(ctx, p, patientID)
	if err != nil {
		return domain.SymptomChecklist{}, err
	}
	if len(in.Symptoms) == 0 {
		return domain.SymptomChecklist{}, required("symptoms", "")
	}
	symptoms := make([]domain.Symptom, 0, len(in.Symptoms))
	for _, s := range in.Symptoms {
		s.Name = strings.TrimSpace(s.Name)
		s.Severity = domain.SymptomSeverity(upper(string(s.Severity)))
		s.Description = strings.TrimSpace(s.Description)
		if s.Name == "" {
			return domain.SymptomChecklist{}, required("symptoms.name", "")
		}
		if !s.Severity.Valid() {
			return domain.SymptomChecklist{}, apperr.New(apperr.Validation, "symptom severity must be MILD, MODERATE or SEVERE").With("field", "symptoms.severity")
		}
		symptoms = append(symptoms, s)
	}
	visit := a.now().UTC()
	if strings.TrimSpace(in.VisitDate) != "" {
		if visit, err = parseDate("visitDate", in.VisitDate); err != nil {
			return domain.SymptomChecklist{}, err
		}
	}
	nurseID := p.ProfileID
	if p.Role == domain.RoleAdmin {
		nurseID = strings.TrimSpace(in.NurseID)
		if nurseID == "" {
			nurseID = pt.AssignedNurseID
		}
	}
	return a.checklists.Create(ctx, domain.SymptomChecklist{
		PatientID: patientID,
		NurseID:   nurseID,
		Symptoms:  symptoms,
		Notes:     strings.TrimSpace(in.Notes),
		VisitDate: visit,
	})
}

func (a *App) ListChecklists(ctx context.Context, p domain.Principal, patientID string) ([]domain.SymptomChecklist, error) {
	if _, err := a.readable(ctx, p, patientID); err != nil {
		return nil, err
	}
	return a.checklists.FindMany(ctx, store.Where(store.Eq("patientId", patientID)).Sort("visitDate", false))
}
