package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"todobot/internal/domain"
)

// ParseError reports a malformed custom reminder expression. It is
// user-correctable and surfaced at creation time; it never reaches the
// scheduler loop.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse reminder %q: %s", e.Input, e.Reason)
}

// PastInstantError reports a custom reminder that resolved to an instant at or
// before the reference time. Such reminders are rejected outright at creation.
type PastInstantError struct {
	Input    string
	Resolved time.Time
}

func (e *PastInstantError) Error() string {
	return fmt.Sprintf("reminder %q resolves to %s, which is not in the future",
		e.Input, e.Resolved.UTC().Format(time.RFC3339))
}

// relativeExpr matches the relative grammar: a positive integer followed by a
// unit, e.g. "30m", "5h", "1d", "2w".
var relativeExpr = regexp.MustCompile(`^(\d+)\s*([mhdw])$`)

const absoluteLayout = "2006-01-02 15:04"

// Resolve converts a raw custom reminder expression into an absolute UTC
// instant.
//
// Two grammars are accepted:
//
//   - relative: "<n><unit>" with unit in m/h/d/w, interpreted as an offset
//     before the item deadline ("1d" fires one day before the deadline);
//   - absolute: "YYYY-MM-DD HH:MM", interpreted in userZone and converted to
//     UTC, independent of the deadline.
//
// A malformed token, non-positive magnitude or unknown zone yields a
// *ParseError. A resolved instant at or before now yields a
// *PastInstantError.
func Resolve(raw, userZone string, deadline, now time.Time) (time.Time, error) {
	if m := relativeExpr.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, &ParseError{Input: raw, Reason: "offset must be a positive integer"}
		}
		var unit time.Duration
		switch m[2] {
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		case "w":
			unit = 7 * 24 * time.Hour
		}
		at := deadline.Add(-time.Duration(n) * unit).UTC()
		if !at.After(now) {
			return time.Time{}, &PastInstantError{Input: raw, Resolved: at}
		}
		return at, nil
	}

	loc, err := time.LoadLocation(userZone)
	if err != nil {
		return time.Time{}, &ParseError{Input: raw, Reason: fmt.Sprintf("unknown timezone %q", userZone)}
	}
	local, err := time.ParseInLocation(absoluteLayout, raw, loc)
	if err != nil {
		return time.Time{}, &ParseError{Input: raw, Reason: "expected <n><m|h|d|w> or YYYY-MM-DD HH:MM"}
	}
	at := local.UTC()
	if !at.After(now) {
		return time.Time{}, &PastInstantError{Input: raw, Resolved: at}
	}
	return at, nil
}

// ParseCustomReminder resolves raw into a CustomReminder ready to be appended
// to the item's custom list. Used by the add/edit command path.
func ParseCustomReminder(raw, userZone string, deadline, now time.Time, createdBy string) (domain.CustomReminder, error) {
	at, err := Resolve(raw, userZone, deadline, now)
	if err != nil {
		return domain.CustomReminder{}, err
	}
	return domain.CustomReminder{FireAt: at, CreatedBy: createdBy}, nil
}

// ResolveDeadline parses an absolute "YYYY-MM-DD HH:MM" expression in
// userZone and returns the UTC instant. Used when creating or editing items;
// unlike Resolve it does not accept the relative grammar.
func ResolveDeadline(raw, userZone string) (time.Time, error) {
	loc, err := time.LoadLocation(userZone)
	if err != nil {
		return time.Time{}, &ParseError{Input: raw, Reason: fmt.Sprintf("unknown timezone %q", userZone)}
	}
	local, err := time.ParseInLocation(absoluteLayout, raw, loc)
	if err != nil {
		return time.Time{}, &ParseError{Input: raw, Reason: "expected YYYY-MM-DD HH:MM"}
	}
	return local.UTC(), nil
}
