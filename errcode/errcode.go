package errcode

import "errors"

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                 Code = "ok"
	InvalidArgument    Code = "invalid_argument"
	UnsupportedDevice  Code = "unsupported_device"
	BusError           Code = "bus_error"
	MalformedFirmware  Code = "malformed_firmware"
	InvalidMeasurement Code = "invalid_measurement"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.InvalidArgument) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Invalid reports an argument outside its family-specific bound.
func Invalid(op, msg string) error {
	return &E{C: InvalidArgument, Op: op, Msg: msg}
}

// Unsupported reports an unknown family/revision combination or a missing layout.
func Unsupported(op, msg string) error {
	return &E{C: UnsupportedDevice, Op: op, Msg: msg}
}

// Bus wraps a Bus Transport failure. The cause stays reachable via errors.Is/As.
// An error that already carries BusError is returned unchanged.
func Bus(op string, err error) error {
	if err == nil {
		return nil
	}
	if Of(err) == BusError {
		return err
	}
	return &E{C: BusError, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
