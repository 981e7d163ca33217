// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the coded error type shared by the RPC,
// simulator, and cache boundaries, plus sentinels for errors.Is checks.
package errors

import (
	"errors"
)

// New is a proxy to the standard errors.New
func New(text string) error {
	return errors.New(text)
}

// Is is a proxy to the standard errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a proxy to the standard errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Sentinel errors for comparison with errors.Is
var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrRPCConnectionFailed  = errors.New("RPC connection failed")
	ErrInvalidNetwork       = errors.New("invalid network")
	ErrSimulatorNotFound    = errors.New("simulator binary not found")
	ErrSimulationFailed     = errors.New("simulation execution failed")
	ErrSimulationLogicError = errors.New("simulation logic error")
	ErrMarshalFailed        = errors.New("failed to marshal request")
	ErrUnmarshalFailed      = errors.New("failed to unmarshal response")
	ErrCacheStoreFailed     = errors.New("cache store failed")
	ErrValidationFailed     = errors.New("validation failed")
)

// Code is a unified error code carried across the RPC and simulator
// boundaries and into daemon responses.
type Code string

const (
	CodeUnknown              Code = "UNKNOWN"
	CodeValidationFailed     Code = "VALIDATION_FAILED"
	CodeRPCConnectionFailed  Code = "RPC_CONNECTION_FAILED"
	CodeInvalidNetwork       Code = "INVALID_NETWORK"
	CodeTransactionNotFound  Code = "TRANSACTION_NOT_FOUND"
	CodeSimulatorNotFound    Code = "SIMULATOR_NOT_FOUND"
	CodeSimulationFailed     Code = "SIMULATION_FAILED"
	CodeSimulationLogicError Code = "SIMULATION_LOGIC_ERROR"
	CodeMarshalFailed        Code = "MARSHAL_FAILED"
	CodeUnmarshalFailed      Code = "UNMARSHAL_FAILED"
	CodeCacheStoreFailed     Code = "CACHE_STORE_FAILED"
)

var codeToSentinel = map[Code]error{
	CodeValidationFailed:     ErrValidationFailed,
	CodeRPCConnectionFailed:  ErrRPCConnectionFailed,
	CodeInvalidNetwork:       ErrInvalidNetwork,
	CodeTransactionNotFound:  ErrTransactionNotFound,
	CodeSimulatorNotFound:    ErrSimulatorNotFound,
	CodeSimulationFailed:     ErrSimulationFailed,
	CodeSimulationLogicError: ErrSimulationLogicError,
	CodeMarshalFailed:        ErrMarshalFailed,
	CodeUnmarshalFailed:      ErrUnmarshalFailed,
	CodeCacheStoreFailed:     ErrCacheStoreFailed,
}

// Error wraps an error with a standardized code and preserves the
// original error for Unwrap.
type Error struct {
	Code    Code
	Message string
	OrigErr error
}

func (e *Error) Error() string {
	if e.OrigErr != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.OrigErr.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.OrigErr
}

// Is lets errors.Is match a coded error against its sentinel.
func (e *Error) Is(target error) bool {
	if sentinel, ok := codeToSentinel[e.Code]; ok {
		return target == sentinel
	}
	return false
}

// Wrap helpers for consistent error construction at the boundaries.

func WrapTransactionNotFound(err error) error {
	return &Error{Code: CodeTransactionNotFound, Message: "transaction not found", OrigErr: err}
}

func WrapRPCConnectionFailed(err error) error {
	return &Error{Code: CodeRPCConnectionFailed, Message: "RPC connection failed", OrigErr: err}
}

func WrapInvalidNetwork(name string) error {
	return &Error{Code: CodeInvalidNetwork, Message: "unsupported network: " + name}
}

func WrapSimulatorNotFound(msg string) error {
	return &Error{Code: CodeSimulatorNotFound, Message: msg}
}

func WrapSimulationFailed(err error, stderr string) error {
	return &Error{Code: CodeSimulationFailed, Message: stderr, OrigErr: err}
}

func WrapSimulationLogicError(msg string) error {
	return &Error{Code: CodeSimulationLogicError, Message: msg}
}

func WrapMarshalFailed(err error) error {
	return &Error{Code: CodeMarshalFailed, Message: "failed to marshal request", OrigErr: err}
}

func WrapUnmarshalFailed(err error, output string) error {
	return &Error{Code: CodeUnmarshalFailed, Message: "invalid simulator output: " + output, OrigErr: err}
}

func WrapCacheStoreFailed(err error) error {
	return &Error{Code: CodeCacheStoreFailed, Message: "failed to persist cache entry", OrigErr: err}
}

func WrapValidationError(msg string) error {
	return &Error{Code: CodeValidationFailed, Message: msg}
}
