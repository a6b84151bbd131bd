package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/fspulse/internal/model"
)

func TestNextRunTimeDaily(t *testing.T) {
	tod := "03:30"
	sc := &model.Schedule{ScheduleID: 1, Kind: model.ScheduleDaily, TimeOfDay: &tod}

	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := nextRunTime(sc, after)

	require.NoError(t, err)
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 30, next.Minute())
}

func TestNextRunTimeWeeklyDefaultsToSunday(t *testing.T) {
	sc := &model.Schedule{ScheduleID: 1, Kind: model.ScheduleWeekly}

	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := nextRunTime(sc, after)

	require.NoError(t, err)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestNextRunTimeMonthlyUsesDayOfMonth(t *testing.T) {
	dom := 15
	sc := &model.Schedule{ScheduleID: 1, Kind: model.ScheduleMonthly, DayOfMonth: &dom}

	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := nextRunTime(sc, after)

	require.NoError(t, err)
	assert.Equal(t, 15, next.Day())
}

func TestNextRunTimeIntervalHours(t *testing.T) {
	val := 6
	unit := model.IntervalHours
	sc := &model.Schedule{ScheduleID: 1, Kind: model.ScheduleInterval, IntervalVal: &val, IntervalUnit: &unit}

	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := nextRunTime(sc, after)

	require.NoError(t, err)
	assert.Equal(t, after.Add(6*time.Hour), next)
}

func TestNextRunTimeIntervalMissingFieldsErrors(t *testing.T) {
	sc := &model.Schedule{ScheduleID: 1, Kind: model.ScheduleInterval}

	_, err := nextRunTime(sc, time.Now())

	assert.Error(t, err)
}

func TestSplitTimeOfDayMalformedFallsBackToMidnight(t *testing.T) {
	hh, mm := splitTimeOfDay("not-a-time")
	assert.Equal(t, "0", hh)
	assert.Equal(t, "0", mm)
}

func TestJoinInts(t *testing.T) {
	assert.Equal(t, "1,3,5", joinInts([]int{1, 3, 5}))
	assert.Equal(t, "", joinInts(nil))
}
