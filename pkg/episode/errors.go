package episode

import "errors"

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrEpisodeNotFound      = errors.New("episode not found")
	ErrSymptomNotFound      = errors.New("symptom not found")
	ErrOpenEpisodeExists    = errors.New("patient already has an open episode")
	ErrEpisodeAlreadyClosed = errors.New("episode already stopped")
	ErrInvalidSeizureType   = errors.New("invalid seizure type")
	ErrAccessDenied         = errors.New("access denied")
)
