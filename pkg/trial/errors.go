package trial

import "errors"

var (
	ErrAlreadyTrialed    = errors.New("plan already trialed by this user")
	ErrNoActiveTrial     = errors.New("no active trial to convert")
	ErrTrialNotFound     = errors.New("trial not found")
	ErrTrialNotAvailable = errors.New("plan does not offer a trial")
	ErrStorageFailure    = errors.New("trial storage failure")
)
