package cache

import (
	"fmt"
	"os"
)

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []EntryInfo
	Kept    int
}

// Prune removes leftover temporary files and every pending entry not named
// in keep.
func (m *Manager) Prune(keep ...string) (*PruneResult, error) {
	entries, err := m.List()
	if err != nil {
		return nil, err
	}

	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[m.PendingPath(k)] = true
	}

	result := &PruneResult{}
	for _, e := range entries {
		if !e.Temporary && keepSet[e.Path] {
			result.Kept++
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to delete %s: %w", e.Name, err)
		}
		result.Deleted = append(result.Deleted, e)
	}

	return result, nil
}
