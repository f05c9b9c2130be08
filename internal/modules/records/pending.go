package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/famledger/internal/domain"
)

// pendingState marks a local copy that holds writes the remote has not seen.
// BaseIDs are the records the local copy held when the first write fell back;
// remote records outside that set and outside the local set were added
// elsewhere in the meantime.
type pendingState struct {
	Since   time.Time `json:"since"`
	BaseIDs []string  `json:"baseIds"`
}

func (p *pendingState) base() map[string]bool {
	base := make(map[string]bool, len(p.BaseIDs))
	for _, id := range p.BaseIDs {
		base[id] = true
	}
	return base
}

// readPendingMarker returns nil when path is empty or no marker exists.
func readPendingMarker(path string) (*pendingState, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending marker: %w", err)
	}
	var p pendingState
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pending marker: %w", err)
	}
	return &p, nil
}

func writePendingMarker(path string, p *pendingState) error {
	if path == "" {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func removePendingMarker(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// mergePending keeps every local record, in local order, and appends remote
// records that were created elsewhere while the local copy was pending.
// Remote records from the base set that are missing locally were deleted
// locally and stay deleted.
func mergePending(local, remote []domain.Record, base map[string]bool) []domain.Record {
	merged := cloneRecords(local)
	seen := make(map[string]bool, len(local))
	for _, r := range local {
		seen[r.ID] = true
	}
	for _, r := range remote {
		if seen[r.ID] || base[r.ID] {
			continue
		}
		seen[r.ID] = true
		merged = append(merged, r)
	}
	return merged
}

func recordIDs(records []domain.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
