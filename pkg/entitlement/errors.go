package entitlement

import "errors"

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrStorageFailure = errors.New("entitlement state read failed")
)
