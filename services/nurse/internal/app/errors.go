package app

import "carelink/pkg/apperr"

var (
	ErrNurseExists       = apperr.New(apperr.Conflict, "user already has a nurse profile or the license is taken")
	ErrInvalidShift      = apperr.New(apperr.Validation, "shift must be MORNING, AFTERNOON or NIGHT").With("field", "shift")
	ErrInvalidCategory   = apperr.New(apperr.Validation, "category is not recognised").With("field", "category")
	ErrInvalidPriority   = apperr.New(apperr.Validation, "priority must be LOW, MEDIUM or HIGH").With("field", "priority")
	ErrNoNurseProfile    = apperr.New(apperr.NotFound, "no nurse profile for this account")
	ErrUnknownPatient    = apperr.New(apperr.Validation, "patient does not exist").With("field", "patientId")
	ErrPatientUnassigned = apperr.New(apperr.Validation, "patient has no assigned nurse").With("field", "patientId")
)
