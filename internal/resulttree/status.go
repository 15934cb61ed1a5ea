package resulttree

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the last known state of a test or group of tests. The numeric
// order is the precedence: a branch reports the highest status among its
// children.
type Status int

const (
	StatusInit Status = iota
	StatusSkipped
	StatusPassed
	StatusFailed
	// StatusRunning outranks StatusFailed so a tree mid-run never appears
	// terminal.
	StatusRunning
)

var statusNames = map[Status]string{
	StatusInit:    "init",
	StatusSkipped: "skipped",
	StatusPassed:  "passed",
	StatusFailed:  "failed",
	StatusRunning: "running",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus maps an outcome string reported by the test framework to a
// Status.
func ParseStatus(outcome string) (Status, error) {
	needle := strings.ToLower(strings.TrimSpace(outcome))
	for s, name := range statusNames {
		if name == needle {
			return s, nil
		}
	}
	return StatusInit, fmt.Errorf("unknown test outcome %q", outcome)
}

// MarshalJSON encodes the status as its lower-case name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a lower-case status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// highest returns the status with the highest precedence, or StatusInit for
// an empty input.
func highest(statuses ...Status) Status {
	out := StatusInit
	for _, s := range statuses {
		if s > out {
			out = s
		}
	}
	return out
}
