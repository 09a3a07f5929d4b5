// Package errcode gives device handlers and codecs a stable, allocation-free
// error identifier distinct from the SRCP wire codes (internal/srcp carries
// those; they're numeric and string-fixed by the protocol). This package is
// for signaling between a codec/handler and its caller inside one process.
package errcode

// Code is a stable internal error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK              Code = "ok"
	Busy            Code = "busy"
	NotReady        Code = "not_ready"
	InvalidParams   Code = "invalid_params"
	UnknownAddress  Code = "unknown_address"
	UnknownProtocol Code = "unknown_protocol"
	AddressInUse    Code = "address_in_use"
	HardwareFailure Code = "hardware_failure"
	VerifyMismatch  Code = "verify_mismatch"
	NoAck           Code = "no_ack"
	CRCFailure      Code = "crc_failure"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
