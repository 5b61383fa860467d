package attendance

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultLateThreshold is 07:00, in minutes since midnight.
const DefaultLateThreshold = 7 * 60

var (
	ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:MM")
	ErrInvalidStatus     = errors.New("invalid attendance status")
)

// ParseClock parses a "HH:MM" (or "HH:MM:SS") clock time into minutes since midnight.
// Seconds are accepted and ignored.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.Wrapf(ErrInvalidTimeFormat, "%q", s)
	}
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 || (i > 0 && len(p) != 2) {
			return 0, errors.Wrapf(ErrInvalidTimeFormat, "%q", s)
		}
		// digits only; Atoi would take a sign
		for j := 0; j < len(p); j++ {
			if p[j] < '0' || p[j] > '9' {
				return 0, errors.Wrapf(ErrInvalidTimeFormat, "%q", s)
			}
		}
	}

	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, errors.Wrapf(ErrInvalidTimeFormat, "%q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, errors.Wrapf(ErrInvalidTimeFormat, "%q", s)
	}
	if len(parts) == 3 {
		if ss, err := strconv.Atoi(parts[2]); err != nil || ss < 0 || ss > 59 {
			return 0, errors.Wrapf(ErrInvalidTimeFormat, "%q", s)
		}
	}
	return hh*60 + mm, nil
}

// Classify applies the late-arrival policy to a requested status.
// A "present" check-in strictly after thresholdMinutes becomes "late" (reclassified = true);
// every other status passes through. An empty timeIn carries no check-in and is never reclassified.
func Classify(status Status, timeIn string, thresholdMinutes int) (Status, bool, error) {
	if !status.Valid() {
		return status, false, errors.Wrapf(ErrInvalidStatus, "%q", status)
	}
	if status != StatusPresent || strings.TrimSpace(timeIn) == "" {
		return status, false, nil
	}

	minutes, err := ParseClock(timeIn)
	if err != nil {
		return status, false, err
	}
	if minutes > thresholdMinutes {
		return StatusLate, true, nil
	}
	return status, false, nil
}

// Classifier holds the configured late-arrival policy.
// Both the single-record and the bulk paths classify through it.
type Classifier struct {
	ThresholdMinutes int
}

// NewClassifier builds a Classifier from a "HH:MM" threshold. An empty threshold means DefaultLateThreshold.
func NewClassifier(threshold string) (Classifier, error) {
	if strings.TrimSpace(threshold) == "" {
		return Classifier{ThresholdMinutes: DefaultLateThreshold}, nil
	}
	minutes, err := ParseClock(threshold)
	if err != nil {
		return Classifier{}, errors.Wrap(err, "parsing late threshold")
	}
	return Classifier{ThresholdMinutes: minutes}, nil
}

func (c Classifier) Classify(status Status, timeIn string) (Status, bool, error) {
	return Classify(status, timeIn, c.ThresholdMinutes)
}
