package schema

import (
	"errors"

	"mds-backend/internal/metadata"
)

var (
	ErrEntityNotFound      = errors.New("entity not found")
	ErrEntityAlreadyExists = errors.New("entity already exists")
	// ErrEntityChanged is returned when a draft is committed after its parent moved on.
	ErrEntityChanged  = errors.New("entity changed since the draft was created")
	ErrEntityReadOnly = errors.New("entity is read-only")
	ErrFieldNotFound  = errors.New("field not found")
	ErrLookupNotFound = errors.New("lookup not found")
	ErrNoSuchType     = errors.New("no such type")
	// ErrAccessDenied is returned when an operation needs a draft but no actor is known.
	ErrAccessDenied  = errors.New("access denied")
	ErrInvalidPatch  = errors.New("invalid patch")
	ErrInvalidEntity = errors.New("invalid entity")

	ErrInvalidSettingValue = metadata.ErrInvalidSettingValue
)
