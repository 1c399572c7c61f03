package recurrence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRule marks a rule whose fields contradict each other or fall
// outside their ranges. Such rules are rejected, never coerced.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// ruleValidate is shared; validator caches struct metadata per instance.
var ruleValidate = validator.New()

// Validate checks field ranges and cross-field consistency of r.
func Validate(r Rule) error {
	if err := ruleValidate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if r.EndsOn != nil && Date(*r.EndsOn).Before(Date(r.StartsOn)) {
		return fmt.Errorf("%w: ends_on %s is before starts_on %s",
			ErrInvalidRule, FormatDate(*r.EndsOn), FormatDate(r.StartsOn))
	}

	switch r.Type {
	case TypeWeekly:
		if r.DayOfMonth != nil || r.WeekOfMonth != nil {
			return fmt.Errorf("%w: weekly rules take days of week only", ErrInvalidRule)
		}
		seen := make(map[int]bool, len(r.DaysOfWeek))
		for _, d := range r.DaysOfWeek {
			if seen[d] {
				return fmt.Errorf("%w: day of week %d repeated", ErrInvalidRule, d)
			}
			seen[d] = true
		}
	case TypeMonthly:
		if r.DayOfMonth != nil && r.WeekOfMonth != nil {
			return fmt.Errorf("%w: day of month and week of month are exclusive", ErrInvalidRule)
		}
		if r.WeekOfMonth == nil && len(r.DaysOfWeek) > 0 {
			return fmt.Errorf("%w: monthly days of week need a week of month", ErrInvalidRule)
		}
		if r.WeekOfMonth != nil && len(r.DaysOfWeek) > 1 {
			return fmt.Errorf("%w: monthly-by-week takes a single weekday", ErrInvalidRule)
		}
	default:
		if len(r.DaysOfWeek) > 0 || r.DayOfMonth != nil || r.WeekOfMonth != nil {
			return fmt.Errorf("%w: %s rules take no day selectors", ErrInvalidRule, r.Type)
		}
	}

	return nil
}
