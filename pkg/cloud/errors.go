// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package cloud

import (
	"errors"
	"fmt"
)

// NotFoundError reports a resource that could not be resolved by name or ID
// within its scope.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

// NewNotFoundError builds a NotFoundError for the given kind and lookup name.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// AmbiguousError reports a name-based lookup that matched more than one
// candidate after scope filtering.
type AmbiguousError struct {
	Kind  string
	Name  string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s '%s' matches %d resources, narrow the scope", e.Kind, e.Name, e.Count)
}

// IsAmbiguous reports whether err is (or wraps) an AmbiguousError.
func IsAmbiguous(err error) bool {
	var amb *AmbiguousError
	return errors.As(err, &amb)
}

// PlatformError wraps a failure returned by the CloudStack API itself, keeping
// the API command name for context.
type PlatformError struct {
	Command    string
	Underlying error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("cloudstack %s: %v", e.Command, e.Underlying)
}

func (e *PlatformError) Unwrap() error {
	return e.Underlying
}

// JobError reports an asynchronous job that finished in the failed state.
type JobError struct {
	JobID     string
	ErrorText string
}

func (e *JobError) Error() string {
	if e.ErrorText == "" {
		return fmt.Sprintf("async job %s failed", e.JobID)
	}
	return fmt.Sprintf("async job %s failed: %s", e.JobID, e.ErrorText)
}

// IsJobError reports whether err is (or wraps) a JobError.
func IsJobError(err error) bool {
	var je *JobError
	return errors.As(err, &je)
}
