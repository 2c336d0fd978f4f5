package resolve

import (
	"math"
	"sort"

	"github.com/bantayph/bantay/internal/models"
)

// BuildCenterStats joins evacuation-center group sizes against the
// known center capacities and returns per-center occupancy statistics,
// most loaded first.
//
// A center with zero capacity holding evacuees gets an occupancy ratio
// of +Inf so it sorts ahead of every finite ratio. Centers with zero
// capacity and zero occupancy are omitted. Ties on ratio order by name
// ascending so repeated calls render identically.
func BuildCenterStats(centers []*models.EvacCenter, result *Result) []models.CenterStats {
	stats := make([]models.CenterStats, 0, len(centers))

	for _, center := range centers {
		occupancy := len(result.EvacCenterGroups[center.ID])
		if center.Capacity == 0 && occupancy == 0 {
			continue
		}

		ratio := math.Inf(1)
		if center.Capacity > 0 {
			ratio = float64(occupancy) / float64(center.Capacity)
		}

		stats = append(stats, models.CenterStats{
			CenterID:       center.ID,
			Name:           center.Name,
			Occupancy:      occupancy,
			Capacity:       center.Capacity,
			OccupancyRatio: ratio,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].OccupancyRatio != stats[j].OccupancyRatio {
			return stats[i].OccupancyRatio > stats[j].OccupancyRatio
		}
		return stats[i].Name < stats[j].Name
	})

	return stats
}
