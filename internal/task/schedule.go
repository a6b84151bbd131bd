package task

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lyallcooper/fspulse/internal/model"
)

// nextRunTime materializes a Schedule's next occurrence after `after`
// into a concrete time by building a cron.Schedule from the rule and
// calling Next — the same library call the teacher's scheduler uses for
// its cron-expression schedules, generalized here to fspulse's four
// schedule kinds instead of a raw cron string.
func nextRunTime(sc *model.Schedule, after time.Time) (time.Time, error) {
	schedule, err := cronSchedule(sc)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}

func cronSchedule(sc *model.Schedule) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	switch sc.Kind {
	case model.ScheduleDaily:
		hh, mm := "0", "0"
		if sc.TimeOfDay != nil {
			hh, mm = splitTimeOfDay(*sc.TimeOfDay)
		}
		return parser.Parse(fmt.Sprintf("%s %s * * *", mm, hh))

	case model.ScheduleWeekly:
		hh, mm := "0", "0"
		if sc.TimeOfDay != nil {
			hh, mm = splitTimeOfDay(*sc.TimeOfDay)
		}
		dow := "0"
		if len(sc.DaysOfWeek) > 0 {
			dow = joinInts(sc.DaysOfWeek)
		}
		return parser.Parse(fmt.Sprintf("%s %s * * %s", mm, hh, dow))

	case model.ScheduleMonthly:
		hh, mm := "0", "0"
		if sc.TimeOfDay != nil {
			hh, mm = splitTimeOfDay(*sc.TimeOfDay)
		}
		dom := "1"
		if sc.DayOfMonth != nil {
			dom = fmt.Sprintf("%d", *sc.DayOfMonth)
		}
		return parser.Parse(fmt.Sprintf("%s %s %s * *", mm, hh, dom))

	case model.ScheduleInterval:
		if sc.IntervalVal == nil || sc.IntervalUnit == nil {
			return nil, fmt.Errorf("interval schedule %d missing interval_val/interval_unit", sc.ScheduleID)
		}
		return intervalSchedule{val: *sc.IntervalVal, unit: *sc.IntervalUnit}, nil

	default:
		return nil, fmt.Errorf("unknown schedule kind %d", sc.Kind)
	}
}

func splitTimeOfDay(s string) (hh, mm string) {
	if len(s) == 5 && s[2] == ':' {
		return s[0:2], s[3:5]
	}
	return "0", "0"
}

func joinInts(vs []int) string {
	out := ""
	for i, v := range vs {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", v)
	}
	return out
}

// intervalSchedule implements cron.Schedule for a fixed-period schedule
// that robfig/cron's expression grammar has no direct equivalent for
// (e.g. "every 90 minutes" rather than on a wall-clock boundary).
type intervalSchedule struct {
	val  int
	unit model.IntervalUnit
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	switch s.unit {
	case model.IntervalMinutes:
		return t.Add(time.Duration(s.val) * time.Minute)
	case model.IntervalHours:
		return t.Add(time.Duration(s.val) * time.Hour)
	case model.IntervalDays:
		return t.AddDate(0, 0, s.val)
	case model.IntervalWeeks:
		return t.AddDate(0, 0, s.val*7)
	default:
		return t.Add(time.Hour)
	}
}
