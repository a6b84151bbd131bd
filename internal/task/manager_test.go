package task

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/scan"
	"github.com/lyallcooper/fspulse/internal/store"
	"github.com/lyallcooper/fspulse/internal/validator"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := scan.NewEngine(st, validator.NewRegistry(), zerolog.Nop())
	return NewManager(st, engine, zerolog.Nop()), st
}

func TestScheduleManualScanEnqueuesEntry(t *testing.T) {
	m, st := newTestManager(t)
	root, err := st.CreateRoot("/data")
	require.NoError(t, err)

	entry, err := m.ScheduleManualScan(root.RootID, model.HashNew, model.ValModeNew)

	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, model.QueueManual, entry.Source)
}

func TestScheduleManualScanRejectsDuplicateForRoot(t *testing.T) {
	m, st := newTestManager(t)
	root, err := st.CreateRoot("/data")
	require.NoError(t, err)

	_, err = m.ScheduleManualScan(root.RootID, model.HashNew, model.ValModeNew)
	require.NoError(t, err)

	_, err = m.ScheduleManualScan(root.RootID, model.HashNew, model.ValModeNew)
	require.Error(t, err)
}

func TestScheduleCompactDatabaseRejectsWhileRunning(t *testing.T) {
	m, _ := newTestManager(t)

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	err := m.ScheduleCompactDatabase()

	require.Error(t, err)
}

func TestPauseResumeStopsTickFromStarting(t *testing.T) {
	m, st := newTestManager(t)
	root, err := st.CreateRoot("/data")
	require.NoError(t, err)

	_, err = st.EnqueueScan(root.RootID, nil, time.Now().UTC().Add(-time.Minute), model.HashNew, model.ValModeNew, model.QueueManual)
	require.NoError(t, err)

	m.Pause()
	m.stopChan = make(chan struct{})
	m.tick(nil)

	queue, err := st.ListQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1, "paused manager must not dequeue eligible work")

	m.Resume()
}

func TestMaterializeSchedulesEnqueuesDueSchedule(t *testing.T) {
	m, st := newTestManager(t)
	root, err := st.CreateRoot("/data")
	require.NoError(t, err)

	tod := "00:00"
	val := 1
	unit := model.IntervalHours
	_, err = st.CreateSchedule(&model.Schedule{
		RootID: root.RootID, Enabled: true, Name: "hourly", Kind: model.ScheduleInterval,
		TimeOfDay: &tod, IntervalVal: &val, IntervalUnit: &unit,
		HashMode: model.HashNew, ValMode: model.ValModeNew,
	})
	require.NoError(t, err)

	m.materializeSchedules()

	queue, err := st.ListQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.NotNil(t, queue[0].ScheduleID)
}
