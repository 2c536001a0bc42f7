// Copyright 2026 Google LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package util holds the error taxonomy shared by the query pipeline:
// parsing, schema resolution, cache lookups, auth, backend execution and
// result formatting all report through the same Category so the HTTP
// layer can pick a status code without inspecting concrete types.
package util

import "fmt"

type ErrorCategory string

const (
	CategoryInput     ErrorCategory = "INPUT_ERROR"
	CategorySchema    ErrorCategory = "SCHEMA_ERROR"
	CategoryCache     ErrorCategory = "CACHE_ERROR"
	CategoryAuth      ErrorCategory = "AUTH_ERROR"
	CategoryUpstream  ErrorCategory = "UPSTREAM_ERROR"
	CategoryFormatter ErrorCategory = "FORMATTER_ERROR"
)

// TesseractError is the interface all custom errors in this module satisfy.
type TesseractError interface {
	error
	Category() ErrorCategory
	Error() string
	Unwrap() error
}

// QueryError carries a message, a Category and an optional wrapped cause.
// Handlers map its Category to a status code in one place. Some layers
// (the RCA generator, the schema loader, the members cache build) wrap a
// *QueryError with fmt.Errorf, so the top-level error value is not always
// a *QueryError itself.
type QueryError struct {
	Msg   string
	Cat   ErrorCategory
	Cause error
}

var _ TesseractError = &QueryError{}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *QueryError) Category() ErrorCategory { return e.Cat }

func (e *QueryError) Unwrap() error { return e.Cause }

func NewInputError(msg string, cause error) *QueryError {
	return &QueryError{Msg: msg, Cat: CategoryInput, Cause: cause}
}

func NewSchemaError(msg string, cause error) *QueryError {
	return &QueryError{Msg: msg, Cat: CategorySchema, Cause: cause}
}

func NewCacheError(msg string, cause error) *QueryError {
	return &QueryError{Msg: msg, Cat: CategoryCache, Cause: cause}
}

func NewAuthError(msg string, cause error) *QueryError {
	return &QueryError{Msg: msg, Cat: CategoryAuth, Cause: cause}
}

func NewUpstreamError(msg string, cause error) *QueryError {
	return &QueryError{Msg: msg, Cat: CategoryUpstream, Cause: cause}
}

func NewFormatterError(msg string, cause error) *QueryError {
	return &QueryError{Msg: msg, Cat: CategoryFormatter, Cause: cause}
}

// StatusCode maps a Category to the HTTP status the server layer should
// respond with. Input/schema/cache problems are client mistakes (400);
// auth failures are 401; upstream and formatter failures are 500 since
// they originate below the request boundary.
func StatusCode(cat ErrorCategory) int {
	switch cat {
	case CategoryInput, CategorySchema, CategoryCache:
		return 400
	case CategoryAuth:
		return 401
	default:
		return 500
	}
}
