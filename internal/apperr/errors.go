// Copyright 2025 The Searchsocket Authors
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

// Package apperr defines the stable error envelope shared by every
// component of the indexing and search pipeline.
package apperr

import "fmt"

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeInvalidRequest           Code = "INVALID_REQUEST"
	CodeConfigMissing            Code = "CONFIG_MISSING"
	CodeRouteMappingFailed       Code = "ROUTE_MAPPING_FAILED"
	CodeBuildManifestNotFound    Code = "BUILD_MANIFEST_NOT_FOUND"
	CodeBuildServerFailed        Code = "BUILD_SERVER_FAILED"
	CodeVectorBackendUnavailable Code = "VECTOR_BACKEND_UNAVAILABLE"
	CodeEmbeddingProviderFailed  Code = "EMBEDDING_PROVIDER_FAILED"
	CodeRerankFailed             Code = "RERANK_FAILED"
	CodeInternal                 Code = "INTERNAL_ERROR"
	CodeCancelled                Code = "CANCELLED"
)

// statusByCode is the fixed HTTP-style status associated with each code.
var statusByCode = map[Code]int{
	CodeInvalidRequest:           400,
	CodeConfigMissing:            400,
	CodeRouteMappingFailed:       400,
	CodeBuildManifestNotFound:    400,
	CodeBuildServerFailed:        500,
	CodeVectorBackendUnavailable: 503,
	CodeEmbeddingProviderFailed:  502,
	CodeRerankFailed:             502,
	CodeInternal:                 500,
	CodeCancelled:                499,
}

// StatusFor returns the status code associated with code, or 500 for an
// unrecognized code.
func StatusFor(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return 500
}

// Error is the error envelope every component returns: {code, message,
// status, cause}.
type Error struct {
	Code    Code
	Message string
	Status  int
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Status: StatusFor(code)}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an Error that carries an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Status: StatusFor(code), Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error,
// otherwise returns CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code
	}
	return CodeInternal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
