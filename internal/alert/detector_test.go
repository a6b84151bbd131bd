package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/fspulse/internal/model"
)

func TestEvaluateInvalidItemFiresOnTransitionToInvalid(t *testing.T) {
	d := &Detector{}
	prior := &model.ItemVersion{Val: model.ValValid}
	errMsg := "unexpected token"

	pending, err := d.Evaluate(10, &model.Item{ItemID: 1}, prior, nil, model.ValInvalid, &errMsg)

	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, model.AlertInvalidItem, pending.Type)
	assert.Equal(t, &errMsg, pending.ValError)
}

func TestEvaluateInvalidItemDoesNotRefireOnceAlreadyInvalid(t *testing.T) {
	d := &Detector{}
	prior := &model.ItemVersion{Val: model.ValInvalid}

	pending, err := d.Evaluate(10, &model.Item{ItemID: 1}, prior, nil, model.ValInvalid, nil)

	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestEvaluateSkipsHashCheckWhenNoPriorHashScan(t *testing.T) {
	d := &Detector{}
	oldHash := "aaa"
	newHash := "bbb"
	prior := &model.ItemVersion{FirstScanID: 1, LastScanID: 5, FileHash: &oldHash, LastHashScan: nil}

	pending, err := d.Evaluate(10, &model.Item{ItemID: 1}, prior, &newHash, model.ValUnknown, nil)

	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestEvaluateSkipsHashCheckWhenMetadataChangedThisScan(t *testing.T) {
	d := &Detector{}
	oldHash := "aaa"
	newHash := "bbb"
	priorHashScan := int64(3)
	prior := &model.ItemVersion{FirstScanID: 10, LastScanID: 10, FileHash: &oldHash, LastHashScan: &priorHashScan}

	pending, err := d.Evaluate(10, &model.Item{ItemID: 1}, prior, &newHash, model.ValUnknown, nil)

	require.NoError(t, err)
	assert.Nil(t, pending)
}
