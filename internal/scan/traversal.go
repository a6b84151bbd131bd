package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/progress"
	"github.com/lyallcooper/fspulse/internal/store"
)

type traversalCounts struct {
	files     int64
	dirs      int64
	totalSize int64
	adds      int64
}

// traverse is Phase 1: walk the root's filesystem tree, and for every
// entry found either extend its live version (no observed change),
// record a Modify transition (metadata changed), or record an Add
// transition (first time this path has been seen, including re-adds
// after a prior delete).
func (e *Engine) traverse(ctx context.Context, sc *model.Scan, root *model.Root, state *progress.ScanProgressState, reporter *progress.BroadcastReporter, log zerolog.Logger) (traversalCounts, error) {
	var counts traversalCounts
	var sinceBatch int

	err := filepath.WalkDir(root.RootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Warn().Err(walkErr).Str("path", path).Msg("walk error, skipping entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root.RootPath {
			return nil
		}

		sinceBatch++
		if sinceBatch >= batchSize {
			sinceBatch = 0
			if canceled(ctx) {
				return context.Canceled
			}
			state.IncrementScanning(d.IsDir())
			reporter.Update(state)
		} else {
			state.IncrementScanning(d.IsDir())
		}

		info, err := d.Info()
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("stat error, skipping entry")
			return nil
		}

		rel, err := filepath.Rel(root.RootPath, path)
		if err != nil {
			return nil
		}

		itemType := model.ItemFile
		switch {
		case d.IsDir():
			itemType = model.ItemDirectory
			counts.dirs++
		case info.Mode()&os.ModeSymlink != 0:
			itemType = model.ItemSymlink
		default:
			counts.files++
			counts.totalSize += info.Size()
		}

		if err := e.observe(sc.ScanID, root.RootID, rel, d.Name(), itemType, info); err == errItemAdded {
			counts.adds++
		} else if err != nil {
			return err
		}

		return nil
	})

	if err == context.Canceled {
		return counts, nil
	}
	if err != nil {
		return counts, err
	}

	return counts, nil
}

var errItemAdded = errMarker("item added")

type errMarker string

func (e errMarker) Error() string { return string(e) }

// observe reconciles one filesystem entry against its item history:
// first sighting ever (or re-sighting after a delete) produces an Add
// transition; a metadata change produces a Modify transition (Phase 3
// fills in hash/validation later); otherwise the live version is simply
// extended to this scan.
func (e *Engine) observe(scanID, rootID int64, relPath, name string, itemType model.ItemType, info fs.FileInfo) error {
	item, created, err := e.store.FindOrCreateItem(rootID, relPath, name, itemType)
	if err != nil {
		return err
	}

	modDate := info.ModTime().UTC()
	var size *int64
	if !info.IsDir() {
		s := info.Size()
		size = &s
	}

	if created {
		undelete := false
		_, _, err := e.store.RecordTransition(store.NewVersionInput{
			ItemID: item.ItemID, ScanID: scanID, IsAdded: true,
			ModDate: &modDate, Size: size, Val: model.ValUnknown, Access: model.AccessOk,
		}, &model.Change{ScanID: scanID, ItemID: item.ItemID, ChangeType: model.ChangeAdd, IsUndelete: &undelete}, nil)
		if err != nil {
			return err
		}
		return errItemAdded
	}

	live, err := e.store.LiveVersion(item.ItemID)
	if err != nil {
		return err
	}
	if live == nil || live.IsDeleted {
		// Existing item identity whose head version is a deletion (or
		// missing): it was deleted previously. Re-appearing is an Add,
		// reusing the same item_id per the add-after-delete invariant.
		undelete := true
		_, _, err := e.store.RecordTransition(store.NewVersionInput{
			ItemID: item.ItemID, ScanID: scanID, IsAdded: true,
			ModDate: &modDate, Size: size, Val: model.ValUnknown, Access: model.AccessOk,
		}, &model.Change{ScanID: scanID, ItemID: item.ItemID, ChangeType: model.ChangeAdd, IsUndelete: &undelete}, nil)
		if err != nil {
			return err
		}
		return errItemAdded
	}

	if sameMetadata(live, modDate, size) {
		return e.store.ExtendVersion(live, scanID, nil, nil)
	}

	_, _, err = e.store.RecordTransition(store.NewVersionInput{
		ItemID: item.ItemID, ScanID: scanID,
		ModDate: &modDate, Size: size,
		LastHashScan: live.LastHashScan, FileHash: live.FileHash,
		LastValScan: live.LastValScan, Val: live.Val, ValError: live.ValError,
		Access: model.AccessOk,
	}, metadataChange(scanID, item.ItemID, live, modDate, size), nil)
	return err
}

func sameMetadata(live *model.ItemVersion, modDate time.Time, size *int64) bool {
	if live.ModDate == nil || !live.ModDate.Equal(modDate) {
		return false
	}
	if (live.Size == nil) != (size == nil) {
		return false
	}
	if live.Size != nil && size != nil && *live.Size != *size {
		return false
	}
	return true
}

func metadataChange(scanID, itemID int64, live *model.ItemVersion, modDate time.Time, size *int64) *model.Change {
	metaChange := true
	return &model.Change{
		ScanID: scanID, ItemID: itemID, ChangeType: model.ChangeModify,
		MetaChange: &metaChange,
		ModDateOld: live.ModDate, ModDateNew: &modDate,
		SizeOld: live.Size, SizeNew: size,
	}
}
