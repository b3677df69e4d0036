// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package errors defines the machine-readable error surface for Parley.
// Every error produced by the core carries a dotted Code so callers can
// classify failures (absent vs. contended vs. transient) without string
// matching. Built on samber/oops for structured context.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreUnavailable        Code = "store.backend.unavailable"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreOpenFailure        Code = "store.backend.open.failure"
	CodeStoreEncodeFailure      Code = "store.value.encode.failure"

	CodeSessionAppendFailure Code = "session.log.append.failure"
	CodeSessionReadFailure   Code = "session.log.read.failure"

	CodeContextNotFound   Code = "context.record.get.not_found"
	CodeContextValidation Code = "context.record.patch.validation"
	CodeContextEncode     Code = "context.record.encode.failure"

	CodeLockContended      Code = "lock.acquire.contended"
	CodeLockReleaseFailure Code = "lock.release.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldKey(value string) Attr {
	return Field("key", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf extracts the Code from an error chain, or "" if none is present.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// FieldsOf returns the structured context attached to an error chain.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsNotFound reports whether err classifies as an absent entity. Core read
// paths return explicit absence instead of errors, so this mostly shows up
// at API boundaries that promote absence into a response status.
func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

// IsContended reports whether err is a lock-acquisition exhaustion. Callers
// should treat this as "system busy, retry later", not a logic error.
func IsContended(err error) bool {
	return reason(CodeOf(err)) == "contended"
}

// IsUnavailable reports whether err is a transient store/network failure.
// A timed-out store call is unavailable, never "key absent".
func IsUnavailable(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

// IsValidation reports whether err is a record schema validation failure.
func IsValidation(err error) bool {
	return reason(CodeOf(err)) == "validation"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// HTTPStatus maps an error's classification to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsContended(err):
		return http.StatusTooManyRequests
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
