// internal/service/rank/ranker.go

package rank

import (
	"math"
	"sort"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/zone"
)

// HotZoneRanker scores and ranks zones by engagement within a user's
// horizon. It is a stateless evaluator over a zone snapshot; ranking is a
// cheap full recompute over the horizon-bounded zone set, re-run whenever
// the snapshot or the user's position changes meaningfully.
type HotZoneRanker struct{}

// NewHotZoneRanker creates a new hot zone ranker
func NewHotZoneRanker() *HotZoneRanker {
	return &HotZoneRanker{}
}

// Rank filters zones to those within horizonMeters of the user, orders them
// by descending engagement score with ties broken by ascending distance
// then ascending zone ID, and assigns rank 1..topN to the leaders. All
// other zones get rank 0, the "not a hot zone" sentinel. If fewer than topN
// zones fall within the horizon only those are ranked; there is no padding.
func (r *HotZoneRanker) Rank(userPos geo.Position, zones []zone.Zone, horizonMeters float64, topN int) ([]zone.RankedZone, error) {
	if horizonMeters <= 0 {
		return nil, zone.ErrInvalidHorizon
	}
	if topN <= 0 {
		return nil, zone.ErrInvalidTopN
	}

	ranked := make([]zone.RankedZone, 0, len(zones))
	for _, z := range zones {
		distance := geo.DistanceMeters(userPos, z.Centroid)
		if distance > horizonMeters {
			continue
		}
		ranked = append(ranked, zone.RankedZone{
			Zone:             z,
			DistanceFromUser: distance,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		si, sj := ranked[i].EngagementScore(), ranked[j].EngagementScore()
		if si != sj {
			return si > sj
		}
		if ranked[i].DistanceFromUser != ranked[j].DistanceFromUser {
			return ranked[i].DistanceFromUser < ranked[j].DistanceFromUser
		}
		return ranked[i].ID < ranked[j].ID
	})

	for i := range ranked {
		if i < topN {
			ranked[i].Rank = i + 1
		} else {
			ranked[i].Rank = 0
		}
	}

	return ranked, nil
}

// Activity levels by message volume.
const (
	ActivityHot     = "hot"
	ActivityVeryHot = "very_hot"
	ActivityExtreme = "extreme"
)

// ActivityLevel tiers a zone's chat activity by message count within the
// activity window.
func ActivityLevel(messageCount int) string {
	switch {
	case messageCount >= 200:
		return ActivityExtreme
	case messageCount >= 100:
		return ActivityVeryHot
	default:
		return ActivityHot
	}
}

// ActivityScore blends total messages, last-hour messages and unique
// senders into a 0-100 score: up to 50 points for total volume, 30 for
// recent volume, 20 for sender spread.
func ActivityScore(totalMessages, messagesLastHour, uniqueSenders int) float64 {
	messageScore := math.Min(50.0, (float64(totalMessages)/200.0)*50)
	recentScore := math.Min(30.0, (float64(messagesLastHour)/20.0)*30)
	engagementScore := math.Min(20.0, (float64(uniqueSenders)/30.0)*20)

	return math.Min(100.0, messageScore+recentScore+engagementScore)
}
