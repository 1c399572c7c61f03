package priority_test

import (
	"time"

	"github.com/nhle/task-cadence/internal/recurrence"
)

func time0() time.Time {
	d, _ := recurrence.ParseDate("2024-01-01")
	return d
}
