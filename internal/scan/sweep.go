package scan

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/progress"
	"github.com/lyallcooper/fspulse/internal/store"
)

// sweep is Phase 2: every item whose live version wasn't touched by
// Phase 1's traversal of this scan has disappeared from the filesystem.
// Each gets a Delete transition. afterItemID resumes a sweep an earlier,
// interrupted run of this same scan had already made progress on —
// everything up to and including it was already committed. When queueID
// is set, the item_id of every batchSize'th commit is persisted as the
// new sweep_hwm, so a second interruption resumes past this one too.
func (e *Engine) sweep(ctx context.Context, sc *model.Scan, root *model.Root, queueID *int64, afterItemID int64, state *progress.ScanProgressState, reporter *progress.BroadcastReporter, log zerolog.Logger) error {
	items, versions, err := e.store.UnseenLiveItems(root.RootID, sc.ScanID, afterItemID)
	if err != nil {
		return err
	}

	state.SetOverallProgress(0, int64(len(items)))
	reporter.Update(state)

	for i, item := range items {
		if i%batchSize == 0 {
			if canceled(ctx) {
				return nil
			}
			state.SetOverallProgress(int64(i), int64(len(items)))
			reporter.Update(state)
		}

		live := versions[i]
		isUndelete := false
		_, _, err := e.store.RecordTransition(store.NewVersionInput{
			ItemID: item.ItemID, ScanID: sc.ScanID, IsDeleted: true,
			LastHashScan: live.LastHashScan, FileHash: live.FileHash,
			LastValScan: live.LastValScan, Val: live.Val, ValError: live.ValError,
			Access: live.Access,
		}, &model.Change{
			ScanID: sc.ScanID, ItemID: item.ItemID, ChangeType: model.ChangeDelete,
			IsUndelete: &isUndelete,
		}, nil)
		if err != nil {
			return err
		}

		if queueID != nil && (i+1)%batchSize == 0 {
			if err := e.store.SetSweepHWM(*queueID, item.ItemID); err != nil {
				log.Error().Err(err).Msg("failed persisting sweep high-water mark")
			}
		}
	}

	if queueID != nil && len(items) > 0 {
		if err := e.store.SetSweepHWM(*queueID, items[len(items)-1].ItemID); err != nil {
			log.Error().Err(err).Msg("failed persisting sweep high-water mark")
		}
	}

	state.SetOverallProgress(int64(len(items)), int64(len(items)))
	reporter.Update(state)

	return nil
}
