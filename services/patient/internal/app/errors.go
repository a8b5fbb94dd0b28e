package app

import "carelink/pkg/apperr"

var (
	ErrPatientExists     = apperr.New(apperr.Conflict, "user already has a patient profile")
	ErrNurseUnavailable  = apperr.New(apperr.Validation, "nurse is not available").With("field", "nurseId")
	ErrUnknownNurse      = apperr.New(apperr.Validation, "nurse does not exist").With("field", "nurseId")
	ErrInvalidGender     = apperr.New(apperr.Validation, "gender must be MALE, FEMALE or OTHER").With("field", "gender")
	ErrInvalidBloodType  = apperr.New(apperr.Validation, "bloodType is not recognised").With("field", "bloodType")
	ErrInvalidSeverity   = apperr.New(apperr.Validation, "severity must be LOW, MEDIUM, HIGH or CRITICAL").With("field", "severity")
	ErrAppointmentClosed = apperr.New(apperr.InvalidTransition, "appointment is no longer scheduled")
	ErrNoPatientProfile  = apperr.New(apperr.NotFound, "no patient profile for this account")
)
