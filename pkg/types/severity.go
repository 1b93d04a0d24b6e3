package types

import "fmt"

// Severity is the ordered data state of a path.
type Severity int

const (
	SeverityNominal Severity = iota
	SeverityNormal
	SeverityAlert
	SeverityWarn
	SeverityAlarm
	SeverityEmergency
)

var severityNames = [...]string{"nominal", "normal", "alert", "warn", "alarm", "emergency"}

// Severities lists every level in ascending order.
func Severities() []Severity {
	return []Severity{SeverityNominal, SeverityNormal, SeverityAlert, SeverityWarn, SeverityAlarm, SeverityEmergency}
}

func (s Severity) String() string {
	if s < SeverityNominal || s > SeverityEmergency {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Alerting reports whether s is alert or worse.
func (s Severity) Alerting() bool { return s >= SeverityAlert }

// ParseSeverity maps a severity name to its level.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityNormal, fmt.Errorf("types: unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityNominal || s > SeverityEmergency {
		return nil, fmt.Errorf("types: invalid severity %d", int(s))
	}
	return []byte(severityNames[s]), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Method is a way of notifying the operator about an alerting state.
type Method string

const (
	MethodVisual Method = "visual"
	MethodSound  Method = "sound"
)
