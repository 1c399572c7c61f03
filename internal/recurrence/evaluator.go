package recurrence

import "time"

// Candidate limits for the month and year scans in Next. Twelve months
// repeat the month-length pattern and leap days recur within eight years,
// so these bounds only cut off rules that can never fire again.
const (
	maxMonthlyCandidates = 48
	maxYearlyCandidates  = 64
)

// IsDue reports whether an occurrence of r falls on date.
func IsDue(r Rule, date time.Time) bool {
	d := Date(date)
	if !r.inWindow(d) {
		return false
	}

	start := r.start()
	iv := r.interval()

	switch r.Type {
	case TypeDaily, TypeCustom:
		return floorMod(daysBetween(start, d), iv) == 0

	case TypeWeekly:
		if len(r.DaysOfWeek) == 0 {
			days := daysBetween(start, d)
			return days%7 == 0 && (days/7)%iv == 0
		}
		return r.weeklyDue(d)

	case TypeMonthly:
		if floorMod(monthsBetween(start, d), iv) != 0 {
			return false
		}
		cand, ok := r.monthlyCandidate(d.Year(), d.Month())
		return ok && cand.Equal(d)

	case TypeYearly:
		return d.Month() == start.Month() &&
			d.Day() == start.Day() &&
			floorMod(d.Year()-start.Year(), iv) == 0
	}

	return false
}

// Next returns the earliest due date on or after from. The second result
// is false when the rule has no further occurrence inside its window.
func Next(r Rule, from time.Time) (time.Time, bool) {
	from = Date(from)
	if from.Before(r.start()) {
		from = r.start()
	}

	var (
		next time.Time
		ok   bool
	)

	switch r.Type {
	case TypeDaily, TypeCustom:
		next, ok = r.nextEvery(from, r.interval()), true
	case TypeWeekly:
		if len(r.DaysOfWeek) == 0 {
			next, ok = r.nextEvery(from, 7*r.interval()), true
		} else {
			next, ok = r.nextWeekly(from)
		}
	case TypeMonthly:
		next, ok = r.nextMonthly(from)
	case TypeYearly:
		next, ok = r.nextYearly(from)
	}

	if !ok || !r.inWindow(next) {
		return time.Time{}, false
	}
	return next, true
}

// weeklyDue handles the explicit days-of-week variant. Week indexes count
// Sunday-started calendar weeks from the week holding StartsOn.
func (r Rule) weeklyDue(d time.Time) bool {
	if !r.hasWeekday(d.Weekday()) {
		return false
	}
	weeks := daysBetween(weekStart(r.start()), weekStart(d)) / 7
	return floorMod(weeks, r.interval()) == 0
}

// monthlyCandidate returns the single occurrence r could have in a month.
func (r Rule) monthlyCandidate(year int, month time.Month) (time.Time, bool) {
	if r.byWeekOfMonth() {
		return nthWeekday(year, month, r.monthlyWeekday(), *r.WeekOfMonth)
	}
	dom := r.dayOfMonth()
	if dom > daysInMonth(year, month) {
		return time.Time{}, false
	}
	return time.Date(year, month, dom, 0, 0, 0, 0, time.UTC), true
}

// nextEvery steps from StartsOn in fixed strides of step days.
func (r Rule) nextEvery(from time.Time, step int) time.Time {
	elapsed := daysBetween(r.start(), from)
	k := (elapsed + step - 1) / step
	return r.start().AddDate(0, 0, k*step)
}

func (r Rule) nextWeekly(from time.Time) (time.Time, bool) {
	// Any run of interval+1 weeks holds a full matching week.
	limit := 7 * (r.interval() + 1)
	for i := 0; i < limit; i++ {
		d := from.AddDate(0, 0, i)
		if r.weeklyDue(d) {
			return d, true
		}
	}
	return time.Time{}, false
}

func (r Rule) nextMonthly(from time.Time) (time.Time, bool) {
	start := r.start()
	anchor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	iv := r.interval()

	k := monthsBetween(start, from)
	k += floorMod(-k, iv)

	for tries := 0; tries < maxMonthlyCandidates; tries++ {
		month := anchor.AddDate(0, k, 0)
		if r.EndsOn != nil && month.After(Date(*r.EndsOn)) {
			return time.Time{}, false
		}
		if cand, ok := r.monthlyCandidate(month.Year(), month.Month()); ok && !cand.Before(from) {
			return cand, true
		}
		k += iv
	}
	return time.Time{}, false
}

func (r Rule) nextYearly(from time.Time) (time.Time, bool) {
	start := r.start()
	iv := r.interval()

	k := from.Year() - start.Year()
	k += floorMod(-k, iv)

	for tries := 0; tries < maxYearlyCandidates; tries++ {
		y := start.Year() + k
		cand := time.Date(y, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		if r.EndsOn != nil && cand.After(Date(*r.EndsOn)) {
			return time.Time{}, false
		}
		// Feb 29 normalises into March in common years.
		if cand.Month() == start.Month() && !cand.Before(from) {
			return cand, true
		}
		k += iv
	}
	return time.Time{}, false
}
