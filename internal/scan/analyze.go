package scan

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/progress"
	"github.com/lyallcooper/fspulse/internal/store"
)

type analyzeTarget struct {
	item    *model.Item
	version *model.ItemVersion
}

// analyze is Phase 3: hash and/or validate the items selected by the
// scan's HashMode/ValMode. Targets are processed in sequential batches
// ordered by item_id, each batch fanned out across a worker pool; the
// store serializes the resulting version/change/alert writes regardless
// (SQLite accepts one writer at a time). Batching this way, rather than
// one pool draining every target, is what makes analysis_hwm safe to
// persist: a worker pool's completions don't finish in item_id order,
// so the hwm can only ever advance once a whole batch — not any single
// item within it — is known to have committed. afterItemID resumes past
// an earlier, interrupted run's progress on this same scan.
func (e *Engine) analyze(ctx context.Context, sc *model.Scan, root *model.Root, opts Options, workers int, afterItemID int64, state *progress.ScanProgressState, reporter *progress.BroadcastReporter, log zerolog.Logger) error {
	targets, err := e.analyzeTargets(sc, root, opts, afterItemID)
	if err != nil {
		return err
	}

	state.SetOverallProgress(0, int64(len(targets)))
	reporter.Update(state)
	if len(targets) == 0 {
		return nil
	}

	var completed int64
	for start := 0; start < len(targets); start += batchSize {
		if canceled(ctx) {
			return nil
		}

		end := start + batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		if err := e.analyzeBatch(ctx, sc, root, opts, workers, batch, state, reporter); err != nil {
			return err
		}

		completed += int64(len(batch))
		state.SetOverallProgress(completed, int64(len(targets)))
		reporter.Update(state)

		if opts.QueueID != nil {
			if err := e.store.SetAnalysisHWM(*opts.QueueID, batch[len(batch)-1].item.ItemID); err != nil {
				log.Error().Err(err).Msg("failed persisting analysis high-water mark")
			}
		}
	}

	return nil
}

// analyzeBatch runs one item_id-ordered batch of targets across a
// worker pool and waits for every result before returning, so the
// caller can safely advance the persisted hwm once this returns clean.
func (e *Engine) analyzeBatch(ctx context.Context, sc *model.Scan, root *model.Root, opts Options, workers int, batch []analyzeTarget, state *progress.ScanProgressState, reporter *progress.BroadcastReporter) error {
	work := make(chan analyzeTarget)
	results := make(chan error, len(batch))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		workerIndex := w
		go func() {
			defer wg.Done()
			for t := range work {
				if canceled(ctx) {
					state.UpdateThread(workerIndex, progress.ThreadOperation{Kind: progress.OpIdle})
					results <- nil
					continue
				}

				_, _, err := e.analyzeOne(sc.ScanID, root, opts, t, workerIndex, state, reporter)
				results <- err
			}
		}()
	}

	go func() {
		defer close(work)
		for _, t := range batch {
			select {
			case work <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for err := range results {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// analyzeTargets selects the live versions Phase 3 must touch, ordered
// by item_id: "New" modes restrict to versions this scan itself created
// (adds/modifies), "All" modes touch every live, non-deleted version
// regardless of age. afterItemID excludes everything a resumed scan's
// earlier run already committed.
func (e *Engine) analyzeTargets(sc *model.Scan, root *model.Root, opts Options, afterItemID int64) ([]analyzeTarget, error) {
	if opts.HashMode == model.HashNone && opts.ValMode == model.ValModeNone {
		return nil, nil
	}

	versions, err := e.store.LiveVersionsAtScan(root.RootID, sc.ScanID)
	if err != nil {
		return nil, err
	}

	var out []analyzeTarget
	for _, v := range versions {
		if v.ItemID <= afterItemID {
			continue
		}
		needHash := opts.HashMode == model.HashAll || (opts.HashMode == model.HashNew && v.FirstScanID == sc.ScanID)
		needVal := opts.ValMode == model.ValModeAll || (opts.ValMode == model.ValModeNew && v.FirstScanID == sc.ScanID)
		if !needHash && !needVal {
			continue
		}
		item, err := e.store.GetItem(v.ItemID)
		if err != nil {
			return nil, err
		}
		if item.ItemType != model.ItemFile {
			continue
		}
		out = append(out, analyzeTarget{item: item, version: v})
	}
	return out, nil
}

func (e *Engine) analyzeOne(scanID int64, root *model.Root, opts Options, t analyzeTarget, workerIndex int, state *progress.ScanProgressState, reporter *progress.BroadcastReporter) (modified bool, alerted bool, err error) {
	fullPath := filepath.Join(root.RootPath, t.item.ItemPath)

	needHash := opts.HashMode == model.HashAll || (opts.HashMode == model.HashNew && t.version.FirstScanID == scanID)
	needVal := opts.ValMode == model.ValModeAll || (opts.ValMode == model.ValModeNew && t.version.FirstScanID == scanID)

	var newHash *string
	var valState model.ValState = t.version.Val
	var valError *string
	var access model.AccessState = model.AccessOk

	if needHash {
		state.UpdateThread(workerIndex, progress.ThreadOperation{Kind: progress.OpHashing, File: t.item.ItemPath})
		reporter.Update(state)
		h, herr := hashFile(fullPath)
		if herr != nil {
			access = model.AccessReadError
		} else {
			newHash = &h
		}
	}

	if needVal && access == model.AccessOk {
		state.UpdateThread(workerIndex, progress.ThreadOperation{Kind: progress.OpValidating, File: t.item.ItemPath})
		reporter.Update(state)
		vs, verr, vok := e.validateFile(fullPath, t.item.ItemPath)
		if vok {
			valState = vs
			if verr != "" {
				valError = &verr
			}
		}
	}

	state.UpdateThread(workerIndex, progress.ThreadOperation{Kind: progress.OpIdle})

	hashChanged := needHash && newHash != nil && (t.version.FileHash == nil || *t.version.FileHash != *newHash)
	valChanged := needVal && valState != t.version.Val

	if !hashChanged && !valChanged {
		if needHash || needVal {
			var hashScan, valScan *int64
			if needHash {
				hashScan = &scanID
			}
			if needVal {
				valScan = &scanID
			}
			return false, false, e.store.ExtendVersion(t.version, scanID, hashScan, valScan)
		}
		return false, false, nil
	}

	pending, err := e.detector.Evaluate(scanID, t.item, t.version, newHash, valState, valError)
	if err != nil {
		return false, false, err
	}

	hashChangeFlag := hashChanged
	valChangeFlag := valChanged
	change := &model.Change{
		ScanID: scanID, ItemID: t.item.ItemID, ChangeType: model.ChangeModify,
		HashChange: &hashChangeFlag, LastHashScanOld: t.version.LastHashScan, HashOld: t.version.FileHash, HashNew: newHash,
		ValChange: &valChangeFlag, LastValScanOld: t.version.LastValScan,
		ValOld: valStatePtr(t.version.Val), ValNew: valStatePtr(valState),
		ValErrorOld: t.version.ValError, ValErrorNew: valError,
	}

	input := store.NewVersionInput{
		ItemID: t.item.ItemID, ScanID: scanID,
		ModDate: t.version.ModDate, Size: t.version.Size,
		Val: valState, ValError: valError, Access: access,
	}
	if newHash != nil {
		input.FileHash = newHash
		input.LastHashScan = &scanID
	} else {
		input.FileHash = t.version.FileHash
		input.LastHashScan = t.version.LastHashScan
	}
	if needVal {
		input.LastValScan = &scanID
	} else {
		input.LastValScan = t.version.LastValScan
	}

	_, _, err = e.store.RecordTransition(input, change, pending)
	if err != nil {
		return false, false, err
	}

	return true, pending != nil, nil
}

func valStatePtr(v model.ValState) *model.ValState { return &v }

// hashFile streams a file's content through BLAKE2b-256, fspulse's
// content digest: a fast, well-vetted hash with no known collisions,
// available from the standard extended crypto library without a cgo
// dependency.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hashHex(h.Sum(nil)), nil
}

func hashHex(sum []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

func (e *Engine) validateFile(fullPath, relPath string) (model.ValState, string, bool) {
	f, err := os.Open(fullPath)
	if err != nil {
		return model.ValUnknown, "", false
	}
	defer f.Close()

	vs, err := e.validators.Validate(relPath, f)
	if err != nil {
		return vs, err.Error(), true
	}
	return vs, "", true
}
