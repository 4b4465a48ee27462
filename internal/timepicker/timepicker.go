// Package timepicker implements the stateless inline time-picker widget.
//
// The widget has no state of its own: the full value travels inside the
// callback token of every rendered button, so any later event can be routed
// back to the exact picker that produced it. All transforms here are pure.
package timepicker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token layout: "time:v1:<hour>:<minute>:<0|1>:<name>". The fixed prefix and
// version keep picker tokens from colliding with any other button payload;
// the name binds a token to the dialogue that rendered it. The name comes
// last so it may contain the separator.
const (
	tokenPrefix  = "time"
	tokenVersion = "v1"
	tokenParts   = 6
)

// ErrDecode reports a malformed or out-of-range widget token. Tokens cross a
// trust boundary: a client can replay a stale or tampered payload, so Decode
// validates everything Encode guarantees by construction.
var ErrDecode = errors.New("timepicker: cannot decode token")

// Value is the complete state of one rendered picker.
type Value struct {
	Name      string
	Hour      int // always in [0, 23]
	Minute    int // always in [0, 59]
	Confirmed bool
}

// New builds a picker value for the given dialogue name, clamping the time
// into range via wraparound.
func New(name string, hour, minute int) Value {
	return Value{
		Name:   name,
		Hour:   ((hour % 24) + 24) % 24,
		Minute: ((minute % 60) + 60) % 60,
	}
}

// FromTime builds a picker value showing the wall-clock time of t.
func FromTime(name string, t time.Time) Value {
	return Value{Name: name, Hour: t.Hour(), Minute: t.Minute()}
}

// Encode serializes the value into an opaque callback token. The result
// always round-trips through Decode.
func Encode(v Value) string {
	ok := "0"
	if v.Confirmed {
		ok = "1"
	}
	return strings.Join([]string{tokenPrefix, tokenVersion, strconv.Itoa(v.Hour), strconv.Itoa(v.Minute), ok, v.Name}, ":")
}

// Decode parses a callback token back into a Value. It fails with ErrDecode
// on any token that Encode could not have produced.
func Decode(token string) (Value, error) {
	parts := strings.SplitN(token, ":", tokenParts)
	if len(parts) != tokenParts {
		return Value{}, fmt.Errorf("%w: expected %d fields", ErrDecode, tokenParts)
	}
	if parts[0] != tokenPrefix || parts[1] != tokenVersion {
		return Value{}, fmt.Errorf("%w: unknown discriminator %q", ErrDecode, parts[0]+":"+parts[1])
	}
	hour, err := strconv.Atoi(parts[2])
	if err != nil || hour < 0 || hour > 23 {
		return Value{}, fmt.Errorf("%w: hour %q out of range", ErrDecode, parts[2])
	}
	minute, err := strconv.Atoi(parts[3])
	if err != nil || minute < 0 || minute > 59 {
		return Value{}, fmt.Errorf("%w: minute %q out of range", ErrDecode, parts[3])
	}
	var confirmed bool
	switch parts[4] {
	case "0":
		confirmed = false
	case "1":
		confirmed = true
	default:
		return Value{}, fmt.Errorf("%w: confirmed flag %q", ErrDecode, parts[4])
	}
	if parts[5] == "" {
		return Value{}, fmt.Errorf("%w: empty name", ErrDecode)
	}
	return Value{Name: parts[5], Hour: hour, Minute: minute, Confirmed: confirmed}, nil
}

// IncrementHour returns the value with the hour advanced, wrapping 23 to 0.
func IncrementHour(v Value) Value {
	v.Hour = (v.Hour + 1) % 24
	return v
}

// DecrementHour returns the value with the hour reduced, wrapping 0 to 23.
func DecrementHour(v Value) Value {
	v.Hour = (v.Hour + 23) % 24
	return v
}

// IncrementMinute returns the value with the minute advanced, wrapping 59 to 0.
func IncrementMinute(v Value) Value {
	v.Minute = (v.Minute + 1) % 60
	return v
}

// DecrementMinute returns the value with the minute reduced, wrapping 0 to 59.
func DecrementMinute(v Value) Value {
	v.Minute = (v.Minute + 59) % 60
	return v
}

// MarkConfirmed returns the value with the confirmed flag set.
func MarkConfirmed(v Value) Value {
	v.Confirmed = true
	return v
}
