package api

import (
	"net/http"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/store"
)

// latestScanID resolves the most recent scan for a root, used as the
// default "as of" point for item queries that don't pin a scan_id.
func (s *Server) latestScanID(rootID int64) (int64, error) {
	scans, err := s.store.ListScansForRoot(rootID, 1)
	if err != nil {
		return 0, err
	}
	if len(scans) == 0 {
		return 0, apperr.NotFound("root has no scans yet")
	}
	return scans[0].ScanID, nil
}

type sizeHistoryPoint struct {
	ScanID int64 `json:"scan_id"`
	Size   int64 `json:"size"`
}

func (s *Server) handleItemSizeHistory(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	item, err := s.store.GetItem(itemID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	from, err := queryInt64(r, "from_scan_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from_scan_id")
		return
	}
	to, err := queryInt64(r, "to_scan_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to_scan_id")
		return
	}
	fromID := int64(0)
	if from != nil {
		fromID = *from
	}
	toID := int64(1<<63 - 1)
	if to != nil {
		toID = *to
	} else if latest, err := s.latestScanID(item.RootID); err == nil {
		toID = latest
	}

	history, err := s.store.SizeHistory(itemID, fromID, toID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]sizeHistoryPoint, 0, len(history))
	for _, h := range history {
		out = append(out, sizeHistoryPoint{ScanID: h.ScanID, Size: h.Size})
	}
	writeJSON(w, http.StatusOK, out)
}

type childrenCountsResponse struct {
	FileCount      int64 `json:"file_count"`
	DirectoryCount int64 `json:"directory_count"`
}

func (s *Server) handleItemChildrenCounts(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	item, err := s.store.GetItem(itemID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	scanID, err := s.resolveScanID(r, item.RootID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	counts, err := s.store.ChildrenCounts(item.RootID, item.ItemPath, scanID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, childrenCountsResponse{
		FileCount:      counts.FileCount,
		DirectoryCount: counts.DirectoryCount,
	})
}

type itemVersionResponse struct {
	VersionID   int64   `json:"version_id"`
	ItemID      int64   `json:"item_id"`
	FirstScanID int64   `json:"first_scan_id"`
	LastScanID  int64   `json:"last_scan_id"`
	IsDeleted   bool    `json:"is_deleted"`
	IsAdded     bool    `json:"is_added"`
	Size        *int64  `json:"size,omitempty"`
	FileHash    *string `json:"file_hash,omitempty"`
	Val         string  `json:"val"`
	ValError    *string `json:"val_error,omitempty"`
	Access      string  `json:"access"`
}

func toItemVersionResponse(v *model.ItemVersion) itemVersionResponse {
	return itemVersionResponse{
		VersionID:   v.VersionID,
		ItemID:      v.ItemID,
		FirstScanID: v.FirstScanID,
		LastScanID:  v.LastScanID,
		IsDeleted:   v.IsDeleted,
		IsAdded:     v.IsAdded,
		Size:        v.Size,
		FileHash:    v.FileHash,
		Val:         v.Val.String(),
		ValError:    v.ValError,
		Access:      v.Access.String(),
	}
}

func (s *Server) handleItemVersionHistory(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if _, err := s.store.GetItem(itemID); err != nil {
		writeAppError(w, err)
		return
	}

	scanID, err := queryInt64(r, "scan_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan_id")
		return
	}
	beforeScanID, err := queryInt64(r, "before_scan_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid before_scan_id")
		return
	}
	limit := queryInt(r, "limit", 100)

	versions, err := s.store.VersionHistory(itemID, scanID, beforeScanID, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]itemVersionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, toItemVersionResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

type itemAtScanResponse struct {
	ItemID   int64                `json:"item_id"`
	ItemPath string               `json:"item_path"`
	ItemName string               `json:"item_name"`
	ItemType string               `json:"item_type"`
	Version  *itemVersionResponse `json:"version,omitempty"`
}

func toItemAtScanResponse(ias store.ItemAtScan) itemAtScanResponse {
	resp := itemAtScanResponse{
		ItemID:   ias.Item.ItemID,
		ItemPath: ias.Item.ItemPath,
		ItemName: ias.Item.ItemName,
		ItemType: ias.Item.ItemType.String(),
	}
	if ias.Version != nil {
		v := toItemVersionResponse(ias.Version)
		resp.Version = &v
	}
	return resp
}

// resolveScanID reads scan_id from the query string, defaulting to the
// root's most recent scan when absent.
func (s *Server) resolveScanID(r *http.Request, rootID int64) (int64, error) {
	scanID, err := queryInt64(r, "scan_id")
	if err != nil {
		return 0, apperr.Validation("invalid scan_id")
	}
	if scanID != nil {
		return *scanID, nil
	}
	return s.latestScanID(rootID)
}

func (s *Server) handleImmediateChildren(w http.ResponseWriter, r *http.Request) {
	rootID, err := queryInt64(r, "root_id")
	if err != nil || rootID == nil {
		writeError(w, http.StatusBadRequest, "root_id is required")
		return
	}
	parentPath := r.URL.Query().Get("parent_path")

	scanID, err := s.resolveScanID(r, *rootID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	children, err := s.store.ImmediateChildren(*rootID, parentPath, scanID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]itemAtScanResponse, 0, len(children))
	for _, c := range children {
		out = append(out, toItemAtScanResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	rootID, err := queryInt64(r, "root_id")
	if err != nil || rootID == nil {
		writeError(w, http.StatusBadRequest, "root_id is required")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	scanID, err := s.resolveScanID(r, *rootID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	results, err := s.store.SearchItems(*rootID, scanID, query)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]itemAtScanResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toItemAtScanResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}
