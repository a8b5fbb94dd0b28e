package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleNurse   Role = "NURSE"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole accepts any casing and reports whether the role is known.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RolePatient, RoleNurse, RoleAdmin:
		return role, true
	}
	return "", false
}

// Principal is the caller derived from a verified credential.
// ProfileID is the caller's patient or nurse record id once resolved; it is
// empty for admins and for callers without a profile yet.
type Principal struct {
	SubjectID string `json:"subjectId"`
	Role      Role   `json:"role"`
	ProfileID string `json:"profileId,omitempty"`
}

// Meta carries the server-assigned fields shared by every stored record.
type Meta struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Base returns the record metadata; it lets repositories stamp any entity.
func (m *Meta) Base() *Meta { return m }

type User struct {
	Meta
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

type BloodType string

const (
	BloodAPositive  BloodType = "A_POSITIVE"
	BloodANegative  BloodType = "A_NEGATIVE"
	BloodBPositive  BloodType = "B_POSITIVE"
	BloodBNegative  BloodType = "B_NEGATIVE"
	BloodABPositive BloodType = "AB_POSITIVE"
	BloodABNegative BloodType = "AB_NEGATIVE"
	BloodOPositive  BloodType = "O_POSITIVE"
	BloodONegative  BloodType = "O_NEGATIVE"
)

func (b BloodType) Valid() bool {
	switch b {
	case BloodAPositive, BloodANegative, BloodBPositive, BloodBNegative,
		BloodABPositive, BloodABNegative, BloodOPositive, BloodONegative:
		return true
	}
	return false
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
}

type Patient struct {
	Meta
	UserID            string            `json:"userId"`
	DateOfBirth       *time.Time        `json:"dateOfBirth,omitempty"`
	Gender            Gender            `json:"gender,omitempty"`
	BloodType         BloodType         `json:"bloodType,omitempty"`
	Height            float64           `json:"height,omitempty"`
	Weight            float64           `json:"weight,omitempty"`
	Allergies         []string          `json:"allergies"`
	ChronicConditions []string          `json:"chronicConditions"`
	EmergencyContact  *EmergencyContact `json:"emergencyContact,omitempty"`
	AssignedNurseID   string            `json:"assignedNurseId,omitempty"`
}

type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
	ShiftNight     Shift = "NIGHT"
)

func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftAfternoon || s == ShiftNight
}

type Nurse struct {
	Meta
	UserID            string `json:"userId"`
	LicenseNumber     string `json:"licenseNumber"`
	Specialization    string `json:"specialization"`
	YearsOfExperience int    `json:"yearsOfExperience"`
	Shift             Shift  `json:"shift,omitempty"`
	IsAvailable       bool   `json:"isAvailable"`
}

type AlertType string

const (
	AlertHeartAttack            AlertType = "HEART_ATTACK"
	AlertStroke                 AlertType = "STROKE"
	AlertRespiratoryDistress    AlertType = "RESPIRATORY_DISTRESS"
	AlertSevereBleeding         AlertType = "SEVERE_BLEEDING"
	AlertSeverePain             AlertType = "SEVERE_PAIN"
	AlertLossOfConsciousness    AlertType = "LOSS_OF_CONSCIOUSNESS"
	AlertSevereAllergicReaction AlertType = "SEVERE_ALLERGIC_REACTION"
	AlertSevereBurns            AlertType = "SEVERE_BURNS"
	AlertSevereInjury           AlertType = "SEVERE_INJURY"
	AlertOther                  AlertType = "OTHER"
	AlertVitalSigns             AlertType = "VITAL_SIGNS"
	AlertMedication             AlertType = "MEDICATION"
	AlertFall                   AlertType = "FALL"
)

var alertTypes = map[AlertType]struct{}{
	AlertHeartAttack: {}, AlertStroke: {}, AlertRespiratoryDistress: {},
	AlertSevereBleeding: {}, AlertSeverePain: {}, AlertLossOfConsciousness: {},
	AlertSevereAllergicReaction: {}, AlertSevereBurns: {}, AlertSevereInjury: {},
	AlertOther: {}, AlertVitalSigns: {}, AlertMedication: {}, AlertFall: {},
}

func (t AlertType) Valid() bool {
	_, ok := alertTypes[t]
	return ok
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type AlertStatus string

const (
	StatusPending      AlertStatus = "PENDING"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusInProgress   AlertStatus = "IN_PROGRESS"
	StatusResolved     AlertStatus = "RESOLVED"
	StatusCancelled    AlertStatus = "CANCELLED"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusInProgress, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave the status.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// ActiveStatuses are the statuses an open alert can be in.
var ActiveStatuses = []AlertStatus{StatusPending, StatusAcknowledged, StatusInProgress}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

type EmergencyAlert struct {
	Meta
	PatientID       string      `json:"patientId"`
	NurseID         string      `json:"nurseId,omitempty"`
	Type            AlertType   `json:"type"`
	Severity        Severity    `json:"severity"`
	Description     string      `json:"description"`
	Location        *Location   `json:"location,omitempty"`
	Status          AlertStatus `json:"status"`
	Message         string      `json:"message,omitempty"`
	ResolvedAt      *time.Time  `json:"resolvedAt,omitempty"`
	ResolvedBy      string      `json:"resolvedBy,omitempty"`
	ResolutionNotes string      `json:"resolutionNotes,omitempty"`
}

type VitalSigns struct {
	Meta
	PatientID     string    `json:"patientId"`
	BloodPressure string    `json:"bloodPressure"`
	HeartRate     int       `json:"heartRate"`
	Temperature   float64   `json:"temperature"`
	OxygenLevel   float64   `json:"oxygenLevel"`
	RecordedBy    string    `json:"recordedBy"`
	Timestamp     time.Time `json:"timestamp"`
}

type MedicalCondition struct {
	Meta
	PatientID       string     `json:"patientId"`
	Condition       string     `json:"condition"`
	Severity        string     `json:"severity"`
	Symptoms        []string   `json:"symptoms"`
	Recommendations string     `json:"recommendations,omitempty"`
	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	Review          string     `json:"review,omitempty"`
}

type TipCategory string

const (
	TipGeneral      TipCategory = "GENERAL"
	TipExercise     TipCategory = "EXERCISE"
	TipDiet         TipCategory = "DIET"
	TipMedication   TipCategory = "MEDICATION"
	TipMentalHealth TipCategory = "MENTAL_HEALTH"
	TipRecovery     TipCategory = "RECOVERY"
)

func (c TipCategory) Valid() bool {
	switch c {
	case TipGeneral, TipExercise, TipDiet, TipMedication, TipMentalHealth, TipRecovery:
		return true
	}
	return false
}

type TipPriority string

const (
	TipPriorityLow    TipPriority = "LOW"
	TipPriorityMedium TipPriority = "MEDIUM"
	TipPriorityHigh   TipPriority = "HIGH"
)

func (p TipPriority) Valid() bool {
	return p == TipPriorityLow || p == TipPriorityMedium || p == TipPriorityHigh
}

type MotivationalTip struct {
	Meta
	NurseID       string      `json:"nurseId"`
	PatientID     string      `json:"patientId"`
	Title         string      `json:"title"`
	Content       string      `json:"content"`
	Category      TipCategory `json:"category"`
	Priority      TipPriority `json:"priority"`
	ScheduledDate time.Time   `json:"scheduledDate"`
	IsRead        bool        `json:"isRead"`
	ReadAt        *time.Time  `json:"readAt,omitempty"`
}

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

func (s AppointmentStatus) Valid() bool {
	return s == AppointmentScheduled || s == AppointmentCompleted || s == AppointmentCancelled
}

type Appointment struct {
	Meta
	PatientID string            `json:"patientId"`
	Type      string            `json:"type"`
	Date      string            `json:"date"`
	Time      string            `json:"time"`
	Location  string            `json:"location"`
	Notes     string            `json:"notes,omitempty"`
	Status    AppointmentStatus `json:"status"`
}

type Medication struct {
	Meta
	PatientID string     `json:"patientId"`
	Name      string     `json:"name"`
	Dosage    string     `json:"dosage"`
	Frequency string     `json:"frequency"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

type SymptomSeverity string

const (
	SymptomMild     SymptomSeverity = "MILD"
	SymptomModerate SymptomSeverity = "MODERATE"
	SymptomSevere   SymptomSeverity = "SEVERE"
)

func (s SymptomSeverity) Valid() bool {
	return s == SymptomMild || s == SymptomModerate || s == SymptomSevere
}

type Symptom struct {
	Name        string          `json:"name"`
	Severity    SymptomSeverity `json:"severity"`
	Description string          `json:"description,omitempty"`
}

type SymptomChecklist struct {
	Meta
	PatientID string    `json:"patientId"`
	NurseID   string    `json:"nurseId"`
	Symptoms  []Symptom `json:"symptoms"`
	Notes     string    `json:"notes,omitempty"`
	VisitDate time.Time `json:"visitDate"`
}
