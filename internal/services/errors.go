// Package services defines the business logic for chat sessions and messages.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrInvalidSessionID is returned when a session token does not match the
	// expected shape (the client-issued "chat_" prefix form).
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrSessionNotFound indicates that the addressed session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyMessage is returned when a request to save a message contains
	// an empty body.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrInvalidStatus is returned when a status value is outside the fixed
	// set (active, completed, lead, abandoned).
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNoLocation is returned when a location update carries neither
	// coordinates nor any direct location field.
	ErrNoLocation = errors.New("no location data provided")

	// ErrNoSessionIDs is returned when a bulk delete names no sessions.
	ErrNoSessionIDs = errors.New("no session ids provided")
)
