// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apierr defines the two error kinds that flow out of every
// component in the agent and the JSON envelope the HTTP control plane uses
// to report them.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind distinguishes a bad-input/not-found/duplicate condition from a
// failure in an external system (runtime daemon, git, subprocess stderr).
type Kind int

const (
	// KindUser covers invalid input, not-found, duplicate names, reserved
	// names, and missing prerequisites such as "OIDC not configured".
	KindUser Kind = iota
	// KindSystem covers runtime-unavailable, pull/clone/build failures,
	// and any other captured subprocess stderr.
	KindSystem
)

// Error wraps an underlying error with a Kind so the HTTP layer can map it
// to a status code without the caller hand-rolling an HTTP status at every
// call site.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// User wraps err as a user error (maps to 400 by default).
func User(format string, args ...any) error {
	return &Error{Kind: KindUser, Err: fmt.Errorf(format, args...)}
}

// System wraps err as a system error (maps to 500).
func System(format string, args ...any) error {
	return &Error{Kind: KindSystem, Err: fmt.Errorf(format, args...)}
}

// NotFound is a convenience user error with a fixed message shape, used by
// stores so handlers can recognize not-found via errors.Is.
type notFoundError struct{ resource string }

func (e *notFoundError) Error() string { return e.resource + " not found" }

// NotFound returns a user error reporting that resource does not exist.
func NotFound(resource string) error {
	return &Error{Kind: KindUser, Err: &notFoundError{resource: resource}}
}

// IsNotFound reports whether err (or anything it wraps) is a NotFound error.
func IsNotFound(err error) bool {
	var nf *notFoundError
	return errors.As(err, &nf)
}

// StatusFor maps err to the HTTP status code the control plane should
// respond with. Errors that are not *Error default to 500, since an
// unclassified error reaching the HTTP layer is itself a coding mistake
// that should surface loudly rather than silently becoming a 400.
func StatusFor(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if e.Kind == KindUser {
		if IsNotFound(err) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Envelope is the uniform JSON response shape for every control-plane
// endpoint except the public health/auth checks.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes data as {success:true,data:...}.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

// WriteError writes err as {success:false,error:"..."} with the status
// derived from StatusFor.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(StatusFor(err))
	json.NewEncoder(w).Encode(Envelope{Success: false, Error: err.Error()})
}
