package activity

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Sport is the closed set of activity kinds the pipeline can synthesize.
type Sport uint8

const (
	Running Sport = iota + 1
	Cycling
)

// Sports lists every supported sport in calendar order.
func Sports() []Sport {
	return []Sport{Running, Cycling}
}

func (s Sport) String() string {
	switch s {
	case Running:
		return "running"
	case Cycling:
		return "cycling"
	default:
		return fmt.Sprintf("sport(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the supported sports.
func (s Sport) Valid() bool {
	return s == Running || s == Cycling
}

// UnsupportedSportError is returned when a sport classification string does
// not map to a supported sport.
type UnsupportedSportError struct {
	Value string
}

func (e *UnsupportedSportError) Error() string {
	return fmt.Sprintf("unsupported sport %q", e.Value)
}

// ParseSport maps a session sport classification onto the closed set.
func ParseSport(value string) (Sport, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "running":
		return Running, nil
	case "cycling":
		return Cycling, nil
	default:
		return 0, &UnsupportedSportError{Value: value}
	}
}

func (s Sport) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &UnsupportedSportError{Value: s.String()}
	}
	return []byte(s.String()), nil
}

func (s *Sport) UnmarshalText(text []byte) error {
	parsed, err := ParseSport(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the sport as its classification string.
func (s Sport) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, &UnsupportedSportError{Value: s.String()}
	}
	return s.String(), nil
}

func (s *Sport) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		return fmt.Errorf("scan sport: null value")
	default:
		return fmt.Errorf("scan sport: unsupported type %T", src)
	}
}
