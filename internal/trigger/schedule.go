package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

// Schedule is a fixed-interval EventBridge rate.
type Schedule struct {
	Rate time.Duration
}

var rateExpr = regexp.MustCompile(`^rate\((\d+) (minute|minutes|hour|hours|day|days)\)$`)

// ParseSchedule parses an EventBridge rate expression such as "rate(1 minute)".
func ParseSchedule(expr string) (Schedule, error) {
	m := rateExpr.FindStringSubmatch(expr)
	if m == nil {
		return Schedule{}, &topology.ConfigurationError{Field: "schedule", Reason: fmt.Sprintf("%q is not a rate expression", expr)}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return Schedule{}, &topology.ConfigurationError{Field: "schedule", Reason: fmt.Sprintf("%q has no positive value", expr)}
	}
	singular := m[2] == "minute" || m[2] == "hour" || m[2] == "day"
	if singular != (n == 1) {
		return Schedule{}, &topology.ConfigurationError{Field: "schedule", Reason: fmt.Sprintf("%q: unit must be singular only for a value of 1", expr)}
	}

	unit := time.Minute
	switch m[2] {
	case "hour", "hours":
		unit = time.Hour
	case "day", "days":
		unit = 24 * time.Hour
	}
	return Schedule{Rate: time.Duration(n) * unit}, nil
}

// Validate checks that the rate is expressible by EventBridge.
func (s Schedule) Validate() error {
	if s.Rate < time.Minute || s.Rate%time.Minute != 0 {
		return &topology.ConfigurationError{Field: "schedule", Reason: fmt.Sprintf("rate %s must be a whole number of minutes", s.Rate)}
	}
	return nil
}

// Expression renders the schedule as an EventBridge rate expression.
func (s Schedule) Expression() string {
	value, unit := int64(s.Rate/time.Minute), "minute"
	switch {
	case s.Rate%(24*time.Hour) == 0:
		value, unit = int64(s.Rate/(24*time.Hour)), "day"
	case s.Rate%time.Hour == 0:
		value, unit = int64(s.Rate/time.Hour), "hour"
	}
	if value != 1 {
		unit += "s"
	}
	return fmt.Sprintf("rate(%d %s)", value, unit)
}
