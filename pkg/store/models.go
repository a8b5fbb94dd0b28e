package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"carelink/pkg/domain"
)

// GORM models used for persistence. Timestamps are assigned by the
// repository, not by gorm callbacks.

type RecordColumns struct {
	ID        string    `gorm:"primaryKey"`
	Version   int64     `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func metaToColumns(m domain.Meta) RecordColumns {
	return RecordColumns{ID: m.ID, Version: m.Version, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func (c RecordColumns) meta() domain.Meta {
	return domain.Meta{ID: c.ID, Version: c.Version, CreatedAt: c.CreatedAt.UTC(), UpdatedAt: c.UpdatedAt.UTC()}
}

func columns(extra map[string]string) map[string]string {
	out := map[string]string{
		"id":        "id",
		"version":   "version",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func marshalOptional(v any, present bool) (datatypes.JSON, error) {
	if !present {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalOptional[V any](raw datatypes.JSON) (*V, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

type UserModel struct {
	RecordColumns
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;index"`
	FirstName    string `gorm:"not null"`
	LastName     string `gorm:"not null"`
	PhoneNumber  string
}

func (UserModel) TableName() string { return "users" }

var UserCodec = Codec[domain.User, UserModel]{
	ToModel: func(u domain.User) (UserModel, error) {
		return UserModel{
			RecordColumns: metaToColumns(u.Meta),
			Email:         u.Email,
			PasswordHash:  u.PasswordHash,
			Role:          string(u.Role),
			FirstName:     u.FirstName,
			LastName:      u.LastName,
			PhoneNumber:   u.PhoneNumber,
		}, nil
	},
	FromModel: func(m UserModel) (domain.User, error) {
		return domain.User{
			Meta:         m.meta(),
			Email:        m.Email,
			PasswordHash: m.PasswordHash,
			Role:         domain.Role(m.Role),
			FirstName:    m.FirstName,
			LastName:     m.LastName,
			PhoneNumber:  m.PhoneNumber,
		}, nil
	},
	Columns: columns(map[string]string{"email": "email", "role": "role", "firstName": "first_name", "lastName": "last_name"}),
}

type PatientModel struct {
	RecordColumns
	UserID            string `gorm:"uniqueIndex;not null"`
	DateOfBirth       *time.Time
	Gender            string
	BloodType         string
	Height            float64
	Weight            float64
	Allergies         datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	ChronicConditions datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	EmergencyContact  datatypes.JSON              `gorm:"type:jsonb"`
	AssignedNurseID   string                      `gorm:"index"`
}

func (PatientModel) TableName() string { return "patients" }

var PatientCodec = Codec[domain.Patient, PatientModel]{
	ToModel: func(p domain.Patient) (PatientModel, error) {
		contact, err := marshalOptional(p.EmergencyContact, p.EmergencyContact != nil)
		if err != nil {
			return PatientModel{}, err
		}
		return PatientModel{
			RecordColumns:     metaToColumns(p.Meta),
			UserID:            p.UserID,
			DateOfBirth:       p.DateOfBirth,
			Gender:            string(p.Gender),
			BloodType:         string(p.BloodType),
			Height:            p.Height,
			Weight:            p.Weight,
			Allergies:         datatypes.NewJSONSlice(p.Allergies),
			ChronicConditions: datatypes.NewJSONSlice(p.ChronicConditions),
			EmergencyContact:  contact,
			AssignedNurseID:   p.AssignedNurseID,
		}, nil
	},
	FromModel: func(m PatientModel) (domain.Patient, error) {
		contact, err := unmarshalOptional[domain.EmergencyContact](m.EmergencyContact)
		if err != nil {
			return domain.Patient{}, err
		}
		return domain.Patient{
			Meta:              m.meta(),
			UserID:            m.UserID,
			DateOfBirth:       utcPtr(m.DateOfBirth),
			Gender:            domain.Gender(m.Gender),
			BloodType:         domain.BloodType(m.BloodType),
			Height:            m.Height,
			Weight:            m.Weight,
			Allergies:         []string(m.Allergies),
			ChronicConditions: []string(m.ChronicConditions),
			EmergencyContact:  contact,
			AssignedNurseID:   m.AssignedNurseID,
		}, nil
	},
	Columns: columns(map[string]string{"userId": "user_id", "assignedNurseId": "assigned_nurse_id", "gender": "gender", "bloodType": "blood_type"}),
}

type NurseModel struct {
	RecordColumns
	UserID            string `gorm:"uniqueIndex;not null"`
	LicenseNumber     string `gorm:"uniqueIndex;not null"`
	Specialization    string `gorm:"index"`
	YearsOfExperience int
	Shift             string
	IsAvailable       bool `gorm:"not null;default:true"`
}

func (NurseModel) TableName() string { return "nurses" }

var NurseCodec = Codec[domain.Nurse, NurseModel]{
	ToModel: func(n domain.Nurse) (NurseModel, error) {
		return NurseModel{
			RecordColumns:     metaToColumns(n.Meta),
			UserID:            n.UserID,
			LicenseNumber:     n.LicenseNumber,
			Specialization:    n.Specialization,
			YearsOfExperience: n.YearsOfExperience,
			Shift:             string(n.Shift),
			IsAvailable:       n.IsAvailable,
		}, nil
	},
	FromModel: func(m NurseModel) (domain.Nurse, error) {
		return domain.Nurse{
			Meta:              m.meta(),
			UserID:            m.UserID,
			LicenseNumber:     m.LicenseNumber,
			Specialization:    m.Specialization,
			YearsOfExperience: m.YearsOfExperience,
			Shift:             domain.Shift(m.Shift),
			IsAvailable:       m.IsAvailable,
		}, nil
	},
	Columns: columns(map[string]string{"userId": "user_id", "licenseNumber": "license_number", "specialization": "specialization", "shift": "shift", "isAvailable": "is_available"}),
}

type AlertModel struct {
	RecordColumns
	PatientID       string `gorm:"not null;index"`
	NurseID         string `gorm:"index"`
	Type            string `gorm:"not null"`
	Severity        string `gorm:"not null;index"`
	Description     string `gorm:"type:text"`
	Location        datatypes.JSON `gorm:"type:jsonb"`
	Status          string         `gorm:"not null;index"`
	Message         string
	ResolvedAt      *time.Time
	ResolvedBy      string
	ResolutionNotes string `gorm:"type:text"`
}

func (AlertModel) TableName() string { return "emergency_alerts" }

var AlertCodec = Codec[domain.EmergencyAlert, AlertModel]{
	ToModel: func(a domain.EmergencyAlert) (AlertModel, error) {
		loc, err := marshalOptional(a.Location, a.Location != nil)
		if err != nil {
			return AlertModel{}, err
		}
		return AlertModel{
			RecordColumns:   metaToColumns(a.Meta),
			PatientID:       a.PatientID,
			NurseID:         a.NurseID,
			Type:            string(a.Type),
			Severity:        string(a.Severity),
			Description:     a.Description,
			Location:        loc,
			Status:          string(a.Status),
			Message:         a.Message,
			ResolvedAt:      a.ResolvedAt,
			ResolvedBy:      a.ResolvedBy,
			ResolutionNotes: a.ResolutionNotes,
		}, nil
	},
	FromModel: func(m AlertModel) (domain.EmergencyAlert, error) {
		loc, err := unmarshalOptional[domain.Location](m.Location)
		if err != nil {
			return domain.EmergencyAlert{}, err
		}
		return domain.EmergencyAlert{
			Meta:            m.meta(),
			PatientID:       m.PatientID,
			NurseID:         m.NurseID,
			Type:            domain.AlertType(m.Type),
			Severity:        domain.Severity(m.Severity),
			Description:     m.Description,
			Location:        loc,
			Status:          domain.AlertStatus(m.Status),
			Message:         m.Message,
			ResolvedAt:      utcPtr(m.ResolvedAt),
			ResolvedBy:      m.ResolvedBy,
			ResolutionNotes: m.ResolutionNotes,
		}, nil
	},
	Columns: columns(map[string]string{"patientId": "patient_id", "nurseId": "nurse_id", "type": "type", "severity": "severity", "status": "status"}),
}

type VitalSignsModel struct {
	RecordColumns
	PatientID     string `gorm:"not null;index"`
	BloodPressure string
	HeartRate     int
	Temperature   float64
	OxygenLevel   float64
	RecordedBy    string
	Timestamp     time.Time `gorm:"not null;index"`
}

func (VitalSignsModel) TableName() string { return "vital_signs" }

var VitalSignsCodec = Codec[domain.VitalSigns, VitalSignsModel]{
	ToModel: func(v domain.VitalSigns) (VitalSignsModel, error) {
		return VitalSignsModel{
			RecordColumns: metaToColumns(v.Meta),
			PatientID:     v.PatientID,
			BloodPressure: v.BloodPressure,
			HeartRate:     v.HeartRate,
			Temperature:   v.Temperature,
			OxygenLevel:   v.OxygenLevel,
			RecordedBy:    v.RecordedBy,
			Timestamp:     v.Timestamp,
		}, nil
	},
	FromModel: func(m VitalSignsModel) (domain.VitalSigns, error) {
		return domain.VitalSigns{
			Meta:          m.meta(),
			PatientID:     m.PatientID,
			BloodPressure: m.BloodPressure,
			HeartRate:     m.HeartRate,
			Temperature:   m.Temperature,
			OxygenLevel:   m.OxygenLevel,
			RecordedBy:    m.RecordedBy,
			Timestamp:     m.Timestamp.UTC(),
		}, nil
	},
	Columns: columns(map[string]string{"patientId": "patient_id", "timestamp": "timestamp"}),
}

type ConditionModel struct {
	RecordColumns
	PatientID       string `gorm:"not null;index"`
	Condition       string `gorm:"not null"`
	Severity        string `gorm:"not null"`
	Symptoms        datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Recommendations string                      `gorm:"type:text"`
	ReviewedBy      string
	ReviewedAt      *time.Time
	Review          string `gorm:"type:text"`
}

func (ConditionModel) TableName() string { return "medical_conditions" }

var ConditionCodec = Codec[domain.MedicalCondition, ConditionModel]{
	ToModel: func(c domain.MedicalCondition) (ConditionModel, error) {
		return ConditionModel{
			RecordColumns:   metaToColumns(c.Meta),
			PatientID:       c.PatientID,
			Condition:       c.Condition,
			Severity:        c.Severity,
			Symptoms:        datatypes.NewJSONSlice(c.Symptoms),
			Recommendations: c.Recommendations,
			ReviewedBy:      c.ReviewedBy,
			ReviewedAt:      c.ReviewedAt,
			Review:          c.Review,
		}, nil
	},
	FromModel: func(m ConditionModel) (domain.MedicalCondition, error) {
		return domain.MedicalCondition{
			Meta:            m.meta(),
			PatientID:       m.PatientID,
			Condition:       m.Condition,
			Severity:        m.Severity,
			Symptoms:        []string(m.Symptoms),
			Recommendations: m.Recommendations,
			ReviewedBy:      m.ReviewedBy,
			ReviewedAt:      utcPtr(m.ReviewedAt),
			Review:          m.Review,
		}, nil
	},
	Columns: columns(map[string]string{"patientId": "patient_id", "severity": "severity"}),
}

type TipModel struct {
	RecordColumns
	NurseID       string `gorm:"not null;index"`
	PatientID     string `gorm:"not null;index"`
	Title         string `gorm:"not null"`
	Content       string `gorm:"type:text;not null"`
	Category      string `gorm:"not null;index"`
	Priority      string `gorm:"not null"`
	ScheduledDate time.Time
	IsRead        bool `gorm:"not null;default:false"`
	ReadAt        *time.Time
}

func (TipModel) TableName() string { return "motivational_tips" }

var TipCodec = Codec[domain.MotivationalTip, TipModel]{
	ToModel: func(t domain.MotivationalTip) (TipModel, error) {
		return TipModel{
			RecordColumns: metaToColumns(t.Meta),
			NurseID:       t.NurseID,
			PatientID:     t.PatientID,
			Title:         t.Title,
			Content:       t.Content,
			Category:      string(t.Category),
			Priority:      string(t.Priority),
			ScheduledDate: t.ScheduledDate,
			IsRead:        t.IsRead,
			ReadAt:        t.ReadAt,
		}, nil
	},
	FromModel: func(m TipModel) (domain.MotivationalTip, error) {
		return domain.MotivationalTip{
			Meta:          m.meta(),
			NurseID:       m.NurseID,
			PatientID:     m.PatientID,
			Title:         m.Title,
			Content:       m.Content,
			Category:      domain.TipCategory(m.Category),
			Priority:      domain.TipPriority(m.Priority),
			ScheduledDate: m.ScheduledDate.UTC(),
			IsRead:        m.IsRead,
			ReadAt:        utcPtr(m.ReadAt),
		}, nil
	},
	Columns: columns(map[string]string{
		"nurseId": "nurse_id", "patientId": "patient_id", "category": "category",
		"priority": "priority", "isRead": "is_read", "scheduledDate": "scheduled_date",
	}),
}

type AppointmentModel struct {
	RecordColumns
	PatientID string `gorm:"not null;index"`
	Type      string `gorm:"not null"`
	Date      string `gorm:"not null"`
	Time      string `gorm:"not null"`
	Location  string `gorm:"not null"`
	Notes     string `gorm:"type:text"`
	Status    string `gorm:"not null;index"`
}

func (AppointmentModel) TableName() string { return "appointments" }

var AppointmentCodec = Codec[domain.Appointment, AppointmentModel]{
	ToModel: func(a domain.Appointment) (AppointmentModel, error) {
		return AppointmentModel{
			RecordColumns: metaToColumns(a.Meta),
			PatientID:     a.PatientID,
			Type:          a.Type,
			Date:          a.Date,
			Time:          a.Time,
			Location:      a.Location,
			Notes:         a.Notes,
			Status:        string(a.Status),
		}, nil
	},
	FromModel: func(m AppointmentModel) (domain.Appointment, error) {
		return domain.Appointment{
			Meta:      m.meta(),
			PatientID: m.PatientID,
			Type:      m.Type,
			Date:      m.Date,
			Time:      m.Time,
			Location:  m.Location,
			Notes:     m.Notes,
			Status:    domain.AppointmentStatus(m.Status),
		}, nil
	},
	Columns: columns(map[string]string{"patientId": "patient_id", "status": "status"}),
}

type MedicationModel struct {
	RecordColumns
	PatientID string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	Dosage    string `gorm:"not null"`
	Frequency string `gorm:"not null"`
	StartDate time.Time
	EndDate   *time.Time
	Notes     string `gorm:"type:text"`
}

func (MedicationModel) TableName() string { return "medications" }

var MedicationCodec = Codec[domain.Medication, MedicationModel]{
	ToModel: func(m domain.Medication) (MedicationModel, error) {
		return MedicationModel{
			RecordColumns: metaToColumns(m.Meta),
			PatientID:     m.PatientID,
			Name:          m.Name,
			Dosage:        m.Dosage,
			Frequency:     m.Frequency,
			StartDate:     m.StartDate,
			EndDate:       m.EndDate,
			Notes:         m.Notes,
		}, nil
	},
	FromModel: func(m MedicationModel) (domain.Medication, error) {
		return domain.Medication{
			Meta:      m.meta(),
			PatientID: m.PatientID,
			Name:      m.Name,
			Dosage:    m.Dosage,
			Frequency: m.Frequency,
			StartDate: m.StartDate.UTC(),
			EndDate:   utcPtr(m.EndDate),
			Notes:     m.Notes,
		}, nil
	},
	Columns: columns(map[string]string{"patientId": "patient_id", "startDate": "start_date"}),
}

type ChecklistModel struct {
	RecordColumns
	PatientID string                              `gorm:"not null;index"`
	NurseID   string                              `gorm:"not null;index"`
	Symptoms  datatypes.JSONSlice[domain.Symptom] `gorm:"type:jsonb"`
	Notes     string                              `gorm:"type:text"`
	VisitDate time.Time                           `gorm:"not null"`
}

func (ChecklistModel) TableName() string { return "symptom_checklists" }

var ChecklistCodec = Codec[domain.SymptomChecklist, ChecklistModel]{
	ToModel: func(s domain.SymptomChecklist) (ChecklistModel, error) {
		return ChecklistModel{
			RecordColumns: metaToColumns(s.Meta),
			PatientID:     s.PatientID,
			NurseID:       s.NurseID,
			Symptoms:      datatypes.NewJSONSlice(s.Symptoms),
			Notes:         s.Notes,
			VisitDate:     s.VisitDate,
		}, nil
	},
	FromModel: func(m ChecklistModel) (domain.SymptomChecklist, error) {
		return domain.SymptomChecklist{
			Meta:      m.meta(),
			PatientID: m.PatientID,
			NurseID:   m.NurseID,
			Symptoms:  []domain.Symptom(m.Symptoms),
			Notes:     m.Notes,
			VisitDate: m.VisitDate.UTC(),
		}, nil
	},
	Columns: columns(map[string]string{"patientId": "patient_id", "nurseId": "nurse_id", "visitDate": "visit_date"}),
}
