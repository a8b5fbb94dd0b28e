package app

import "carelink/pkg/apperr"

var (
	// ErrInvalidCredentials does not say which of email or password was
	// wrong, so it cannot be used to enumerate accounts.
	ErrInvalidCredentials = apperr.New(apperr.Unauthenticated, "incorrect email address or password")

	ErrEmailAlreadyExists = apperr.New(apperr.Conflict, "email already exists")
	ErrInvalidEmail       = apperr.New(apperr.Validation, "email is not a valid address").With("field", "email")
	ErrInvalidRole        = apperr.New(apperr.Validation, "role must be PATIENT, NURSE or ADMIN").With("field", "role")
	ErrAdminRegistration  = apperr.New(apperr.Unauthorized, "only an admin may register an admin")
	ErrRoleChange         = apperr.New(apperr.Unauthorized, "only an admin may change a role")
	ErrWrongPassword      = apperr.New(apperr.Validation, "current password is incorrect").With("field", "currentPassword")
)
