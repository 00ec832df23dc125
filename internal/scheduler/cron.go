package scheduler

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// parseSchedule accepts standard 5-field cron expressions and the descriptors
// @hourly, @daily, @weekly, @monthly, @yearly and "@every <duration>".
func parseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule expression")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}
