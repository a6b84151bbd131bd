package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanProgressState(t *testing.T) {
	scanID := int64(5)
	rootID := int64(1)
	s := NewScanProgressState(&scanID, &rootID, "/data")

	require.NotNil(t, s)
	assert.Equal(t, "/data", s.RootPath)
	assert.Equal(t, StatusRunning, s.Status.Kind)
	assert.Nil(t, s.CurrentPhase)
	assert.Empty(t, s.CompletedPhases)
	assert.Nil(t, s.OverallProgress)
	assert.Nil(t, s.ScanningProgress)
	assert.Empty(t, s.ThreadStates)
	assert.Empty(t, s.Messages)
}

func TestAddMessageLimitsTo20(t *testing.T) {
	s := NewScanProgressState(nil, nil, "/data")
	for i := 0; i < 25; i++ {
		s.AddMessage("message")
	}
	assert.Len(t, s.Messages, messageHistoryLimit)
}

func TestUpdateThreadCreatesSlots(t *testing.T) {
	s := NewScanProgressState(nil, nil, "/data")
	s.UpdateThread(2, ThreadOperation{Kind: OpHashing, File: "a.txt"})

	require.Len(t, s.ThreadStates, 3)
	assert.Equal(t, OpIdle, s.ThreadStates[0].Operation.Kind)
	assert.Equal(t, OpIdle, s.ThreadStates[1].Operation.Kind)
	assert.Equal(t, OpHashing, s.ThreadStates[2].Operation.Kind)
	assert.Equal(t, "a.txt", s.ThreadStates[2].Operation.File)
}

func TestUpdateThreadReplacesExisting(t *testing.T) {
	s := NewScanProgressState(nil, nil, "/data")
	s.UpdateThread(0, ThreadOperation{Kind: OpHashing, File: "a.txt"})
	s.UpdateThread(0, ThreadOperation{Kind: OpValidating, File: "b.txt"})

	require.Len(t, s.ThreadStates, 1)
	assert.Equal(t, OpValidating, s.ThreadStates[0].Operation.Kind)
	assert.Equal(t, "b.txt", s.ThreadStates[0].Operation.File)
}

func TestIncrementScanning(t *testing.T) {
	s := NewScanProgressState(nil, nil, "/data")
	s.IncrementScanning(false)
	s.IncrementScanning(false)
	s.IncrementScanning(true)

	require.NotNil(t, s.ScanningProgress)
	assert.Equal(t, int64(2), s.ScanningProgress.FilesScanned)
	assert.Equal(t, int64(1), s.ScanningProgress.DirectoriesScanned)
}

func TestEnterPhaseRecordsCompleted(t *testing.T) {
	s := NewScanProgressState(nil, nil, "/data")
	s.EnterPhase("Scanning", 0)
	s.SetOverallProgress(5, 10)
	s.EnterPhase("Sweeping", 1)

	assert.Equal(t, []string{"Scanning"}, s.CompletedPhases)
	assert.Equal(t, "Sweeping", s.CurrentPhase.Name)
	assert.Nil(t, s.OverallProgress)
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewScanProgressState(nil, nil, "/data")
	s.AddMessage("hello")
	clone := s.Clone()
	clone.AddMessage("world")

	assert.Len(t, s.Messages, 1)
	assert.Len(t, clone.Messages, 2)
}
