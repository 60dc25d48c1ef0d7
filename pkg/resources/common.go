// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resources

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/reconcile"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/scope"
)

// ParseProperties unmarshals JSON properties from a request into a map.
// Returns an error if the properties cannot be parsed.
func ParseProperties(data []byte) (map[string]interface{}, error) {
	var props map[string]interface{}
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("failed to parse resource properties: %w", err)
	}
	return props, nil
}

// ValidateNativeID checks that the NativeID is present and not empty.
// Returns an error if validation fails.
func ValidateNativeID(nativeID string) error {
	if nativeID == "" {
		return fmt.Errorf("nativeID is required")
	}
	return nil
}

// MarshalProperties marshals a properties map to a JSON string.
// Returns an error if marshaling fails.
func MarshalProperties(props map[string]interface{}) (string, error) {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to marshal properties: %w", err)
	}
	return string(propsJSON), nil
}

// StringProp reads a string-valued property, tolerating absence.
func StringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// BoolProp reads a bool-valued property with a default for absence.
func BoolProp(props map[string]interface{}, key string, def bool) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return def
}

// TagsProp reads the tags property as a key/value map. Tags arrive from JSON
// as map[string]interface{} with string values.
func TagsProp(props map[string]interface{}) map[string]string {
	raw, ok := props["tags"].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ScopeParams extracts the scope fields shared by every resource kind.
func ScopeParams(props map[string]interface{}) scope.Params {
	return scope.Params{
		Domain:  StringProp(props, "domain"),
		Account: StringProp(props, "account"),
		Project: StringProp(props, "project"),
		Zone:    StringProp(props, "zone"),
		VPC:     StringProp(props, "vpc"),
		Network: StringProp(props, "network"),
		VM:      StringProp(props, "virtualMachine"),
	}
}

// NewFailureResult creates a standardized failure ProgressResult.
// This helps reduce boilerplate when creating error responses.
func NewFailureResult(op resource.Operation, errCode resource.OperationErrorCode, nativeID string) *resource.ProgressResult {
	result := &resource.ProgressResult{
		Operation:       op,
		OperationStatus: resource.OperationStatusFailure,
		ErrorCode:       errCode,
	}
	if nativeID != "" {
		result.NativeID = nativeID
	}
	return result
}

// NewFailureResultWithMessage creates a standardized failure ProgressResult with a status message.
// Use this when you have an error message to include in the result.
func NewFailureResultWithMessage(op resource.Operation, errCode resource.OperationErrorCode, nativeID string, message string) *resource.ProgressResult {
	result := NewFailureResult(op, errCode, nativeID)
	result.StatusMessage = message
	return result
}

// FailureFromError builds a failure ProgressResult with the error mapped to
// an operation error code.
func FailureFromError(op resource.Operation, nativeID string, err error) *resource.ProgressResult {
	return NewFailureResultWithMessage(op, MapCloudStackErrorToOperationErrorCode(err), nativeID, err.Error())
}

// SuccessResult builds a success ProgressResult carrying the reconciliation
// outcome as resource properties.
func SuccessResult(op resource.Operation, nativeID string, res *reconcile.Result) *resource.ProgressResult {
	out := &resource.ProgressResult{
		Operation:       op,
		OperationStatus: resource.OperationStatusSuccess,
		NativeID:        nativeID,
	}
	if res != nil && res.Resource != nil {
		if propsJSON, err := json.Marshal(res.Resource); err == nil {
			out.ResourceProperties = propsJSON
		}
	}
	return out
}

// MapCloudStackErrorToOperationErrorCode maps resolver, job and platform
// errors to standard operation error codes. Typed errors are checked first;
// raw platform messages fall back to substring matching.
func MapCloudStackErrorToOperationErrorCode(err error) resource.OperationErrorCode {
	if err == nil {
		return ""
	}

	var (
		missingScope  *scope.MissingScopeError
		missingFields *reconcile.MissingFieldsError
	)
	switch {
	case cloud.IsNotFound(err):
		return resource.OperationErrorCodeNotFound
	case cloud.IsAmbiguous(err):
		return resource.OperationErrorCodeInvalidRequest
	case errors.As(err, &missingScope), errors.As(err, &missingFields):
		return resource.OperationErrorCodeInvalidRequest
	case cloud.IsJobError(err):
		return resource.OperationErrorCodeGeneralServiceException
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "unable to verify user credentials"):
		return resource.OperationErrorCodeAccessDenied

	case strings.Contains(errStr, "403"), strings.Contains(errStr, "Access denied"):
		return resource.OperationErrorCodeAccessDenied

	case strings.Contains(errStr, "404"), strings.Contains(errStr, "does not exist"), strings.Contains(errStr, "not found"):
		return resource.OperationErrorCodeNotFound

	case strings.Contains(errStr, "already exists"), strings.Contains(errStr, "already in use"):
		return resource.OperationErrorCodeAlreadyExists

	case strings.Contains(errStr, "431"), strings.Contains(errStr, "Invalid parameter"):
		return resource.OperationErrorCodeInvalidRequest

	case strings.Contains(errStr, "429"), strings.Contains(errStr, "rate limit"):
		return resource.OperationErrorCodeThrottling

	case strings.Contains(errStr, "limit exceeded"), strings.Contains(errStr, "Maximum number of"):
		return resource.OperationErrorCodeServiceLimitExceeded

	case strings.Contains(errStr, "530"), strings.Contains(errStr, "Internal error"):
		return resource.OperationErrorCodeServiceInternalError

	default:
		return resource.OperationErrorCodeGeneralServiceException
	}
}
