// Package status defines the device status enumeration and its wire tokens.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownToken is returned when parsing an unrecognized status token.
var ErrUnknownToken = errors.New("unknown status token")

// Status is the discrete state a device reports or is assigned by the hub.
type Status uint8

const (
	// Good - the device is behaving.
	Good Status = iota

	// Angry - the device is unhappy.
	Angry

	// Dysciplined - the device has been dysciplined.
	Dysciplined

	// Offline - the device has stopped reporting. Offline is only ever
	// imposed by the hub; devices cannot report it themselves.
	Offline
)

// String returns the wire token for the status.
func (s Status) String() string {
	switch s {
	case Good:
		return "GOOD"
	case Angry:
		return "ANGRY"
	case Dysciplined:
		return "DYSCIPLINED"
	case Offline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s <= Offline
}

// MarshalJSON encodes the status as its wire token.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownToken, uint8(s))
	}
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a wire token into the status.
func (s *Status) UnmarshalJSON(data []byte) error {
	token := strings.Trim(string(data), `"`)
	parsed, err := Parse(token)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Parse converts a wire token into a Status. Matching is case-insensitive,
// so both the uppercase broadcast tokens and the lowercase report-endpoint
// tokens are accepted.
func Parse(token string) (Status, error) {
	switch strings.ToUpper(token) {
	case "GOOD":
		return Good, nil
	case "ANGRY":
		return Angry, nil
	case "DYSCIPLINED":
		return Dysciplined, nil
	case "OFFLINE":
		return Offline, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
}

// ParseReport converts a device-reported token into a Status. The offline
// token is rejected here: devices cannot self-report Offline, it is reserved
// for the hub's timeout path.
func ParseReport(token string) (Status, error) {
	s, err := Parse(token)
	if err != nil {
		return 0, err
	}
	if s == Offline {
		return 0, fmt.Errorf("%w: %q not reportable", ErrUnknownToken, token)
	}
	return s, nil
}
