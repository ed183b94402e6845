// Package repository defines data access for activities and users plus the
// sentinel errors shared across repositories.  Sentinels let handlers map
// failure scenarios to HTTP statuses without string matching.
package repository

import "errors"

// ErrActivityNotFound is returned when no activity row matches the id.
// Handlers should translate this into an HTTP 404 response.
var ErrActivityNotFound = errors.New("activity not found")

// ErrEmailExists is returned when registering with an email that is already
// taken.  Handlers should translate this into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")
