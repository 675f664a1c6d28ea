package domain

import "errors"

var (
	// ErrSensorUnavailable means the position feed stopped or never started.
	ErrSensorUnavailable = errors.New("position sensor unavailable")
	// ErrGeocodeNotFound means the geocoder returned no match for the query.
	ErrGeocodeNotFound = errors.New("destination not found")
	// ErrRouteNotFound means the router found no route between the points.
	ErrRouteNotFound = errors.New("route not found")
	// ErrNetwork wraps transport failures talking to geocoder or router.
	ErrNetwork = errors.New("network failure")
	// ErrSpeechUnavailable means no speech output device is reachable.
	ErrSpeechUnavailable = errors.New("speech output unavailable")
	// ErrAudioUnavailable means the alarm audio device could not play.
	ErrAudioUnavailable = errors.New("alarm audio unavailable")

	ErrEmptyQuery      = errors.New("destination query must not be empty")
	ErrInvalidRadius   = errors.New("alarm radius must be a positive number of meters")
	ErrInvalidPosition = errors.New("position outside WGS 84 bounds")
	ErrNoDestination   = errors.New("no destination set")
)
