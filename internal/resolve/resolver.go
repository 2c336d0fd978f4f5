// Package resolve derives the current status of each resident from the
// append-only status log. Resolution is a pure computation: it never
// mutates the entities or the log it is given, and needs no locks.
package resolve

import (
	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/pkg/utils"
)

// Result holds the output of one resolution pass.
type Result struct {
	// CurrentStatus maps every given resident to its derived status.
	CurrentStatus map[string]models.StatusValue `json:"current_status"`

	// Counts is the cardinality of each status bucket, Unknown
	// included. The counts always sum to the number of residents.
	Counts map[models.StatusValue]int `json:"counts"`

	// StatusGroups lists resident IDs per status, in input order.
	StatusGroups map[models.StatusValue][]string `json:"status_groups"`

	// EvacCenterGroups lists resident IDs per evacuation center,
	// populated only from winning entries with status Evacuated and a
	// recorded center.
	EvacCenterGroups map[string][]string `json:"evac_center_groups"`
}

// Resolve computes the current status per resident from the log, scoped
// to the active disaster event.
//
// Latest-wins: for each resident the entry with the greatest RecordedAt
// among its entries in the active event is authoritative. Two entries
// with an identical timestamp are ordered by Seq — the higher sequence
// number (later insertion) wins. Entries from other events never
// influence the result. A resident with no entry in the active event
// resolves to Unknown.
//
// Empty residents or an empty log are valid degenerate inputs. Being
// asked to resolve log data without an active event is an integration
// error and fails with InvalidScope.
func Resolve(residents []*models.Resident, log []*models.StatusLogEntry, activeEventID string) (*Result, error) {
	if activeEventID == "" && len(log) > 0 {
		return nil, utils.NewAppError(utils.ErrCodeInvalidScope,
			"Cannot resolve log entries without an active disaster event", "")
	}

	// Group by resident, keeping only the winning entry per group.
	winners := make(map[string]*models.StatusLogEntry)
	for _, entry := range log {
		if entry.EventID != activeEventID {
			continue
		}

		current, exists := winners[entry.ResidentID]
		if !exists || entryWins(entry, current) {
			winners[entry.ResidentID] = entry
		}
	}

	result := newResult()

	// Single pass over the resident set accumulating every aggregate.
	for _, resident := range residents {
		status := models.StatusUnknown

		if entry, ok := winners[resident.ID]; ok {
			status = entry.Status

			if status == models.StatusEvacuated && entry.EvacCenterID != nil && *entry.EvacCenterID != "" {
				centerID := *entry.EvacCenterID
				result.EvacCenterGroups[centerID] = append(result.EvacCenterGroups[centerID], resident.ID)
			}
		}

		result.CurrentStatus[resident.ID] = status
		result.Counts[status]++
		result.StatusGroups[status] = append(result.StatusGroups[status], resident.ID)
	}

	return result, nil
}

// ResolveOffline is the conservative degradation used when no log is
// available: every resident resolves to Unknown. A stale status is never
// reused, since staleness could mislead responders.
func ResolveOffline(residents []*models.Resident) *Result {
	result := newResult()

	for _, resident := range residents {
		result.CurrentStatus[resident.ID] = models.StatusUnknown
		result.StatusGroups[models.StatusUnknown] = append(result.StatusGroups[models.StatusUnknown], resident.ID)
	}

	result.Counts[models.StatusUnknown] = len(residents)
	return result
}

// entryWins reports whether candidate beats current under latest-wins
// with the sequence-number tie-break.
func entryWins(candidate, current *models.StatusLogEntry) bool {
	if candidate.RecordedAt.After(current.RecordedAt) {
		return true
	}
	if candidate.RecordedAt.Equal(current.RecordedAt) {
		return candidate.Seq > current.Seq
	}
	return false
}

func newResult() *Result {
	counts := make(map[models.StatusValue]int, len(models.StatusValues()))
	for _, status := range models.StatusValues() {
		counts[status] = 0
	}

	return &Result{
		CurrentStatus:    make(map[string]models.StatusValue),
		Counts:           counts,
		StatusGroups:     make(map[models.StatusValue][]string),
		EvacCenterGroups: make(map[string][]string),
	}
}

// ResolvedView joins residents with their derived status into read-only
// view records. The originals are never modified.
func ResolvedView(residents []*models.Resident, result *Result) []models.ResolvedResident {
	// Winning evacuation center per resident, inverted from the groups.
	centerByResident := make(map[string]string)
	for centerID, residentIDs := range result.EvacCenterGroups {
		for _, id := range residentIDs {
			centerByResident[id] = centerID
		}
	}

	views := make([]models.ResolvedResident, 0, len(residents))
	for _, resident := range residents {
		views = append(views, models.ResolvedResident{
			Resident:     *resident,
			Status:       result.CurrentStatus[resident.ID],
			EvacCenterID: centerByResident[resident.ID],
		})
	}

	return views
}
