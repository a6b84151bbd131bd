// Package alert implements the two integrity rules that flag a version
// transition for human review: a content hash that changed with no
// metadata change to explain it, and validation that newly failed.
package alert

import (
	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/store"
)

// Detector evaluates a candidate version transition against the prior
// live version and decides whether it should carry an alert.
type Detector struct {
	store *store.Store
}

func NewDetector(st *store.Store) *Detector {
	return &Detector{store: st}
}

// Evaluate inspects the transition from prior (the version live at this
// scan before Phase 3 touched the item, which Phase 1 may have created in
// this same scan) to the new hash/validation state Phase 3
// computed, and returns a PendingAlert if either rule fires. Returns nil,
// nil when nothing is wrong.
//
// SuspiciousHash fires when the content hash changed but the item's
// metadata (mtime/size) did not change in this same scan — the
// traversal phase would have created a new version row for a real
// metadata change, so prior.FirstScanID == scanID signals "metadata did
// change here" and rules this alert out — and no change row between the
// version's previous hash scan and now recorded a metadata change
// either. A file whose bytes changed with no trace of why is exactly
// the signature of bit rot or an out-of-band modification.
//
// InvalidItem fires when validation transitions into ValInvalid from
// anything else; Unknown/NoValidator -> Invalid is just as alertable as
// Valid -> Invalid, since both mean a file newly fails its format check.
func (d *Detector) Evaluate(scanID int64, item *model.Item, prior *model.ItemVersion, newHash *string, newVal model.ValState, newValError *string) (*store.PendingAlert, error) {
	if newHash != nil {
		hashChanged := prior.FileHash == nil || *prior.FileHash != *newHash
		metaChangedThisScan := prior.FirstScanID == scanID

		if hashChanged && !metaChangedThisScan && prior.LastHashScan != nil {
			hadMeta, err := d.store.HadMetaChangeBetween(item.ItemID, *prior.LastHashScan, scanID)
			if err != nil {
				return nil, err
			}
			if !hadMeta {
				return &store.PendingAlert{
					Type:         model.AlertSuspiciousHash,
					PrevHashScan: prior.LastHashScan,
					HashOld:      prior.FileHash,
					HashNew:      newHash,
				}, nil
			}
		}
	}

	if newVal == model.ValInvalid && prior.Val != model.ValInvalid {
		return &store.PendingAlert{
			Type:     model.AlertInvalidItem,
			ValError: newValError,
		}, nil
	}

	return nil, nil
}
