// protocol/scoring.go
package protocol

import (
	"math"
	"sort"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters is the haversine great-circle distance between two
// E6-encoded coordinate pairs.
func DistanceMeters(aLatE6, aLonE6, bLatE6, bLonE6 int32) float64 {
	lat1 := radiansE6(aLatE6)
	lat2 := radiansE6(bLatE6)
	dLat := lat2 - lat1
	dLon := radiansE6(bLonE6) - radiansE6(aLonE6)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

func radiansE6(v int32) float64 {
	return float64(v) / 1e6 * math.Pi / 180
}

// ShareEntry is one revealed bet entering settlement.
type ShareEntry struct {
	Player         string
	Stake          int64
	DistanceMeters float64
}

// PayoutShare pairs a player with the slice of the pool they won.
type PayoutShare struct {
	Player string `json:"player"`
	Share  int64  `json:"share"`
}

// ComputeShares splits the revealed pool among revealed bets. Each bet is
// weighted by stake / (1 + distance_km), so a closer guess always beats a
// farther one at equal stake, and equidistant guesses split in proportion to
// stake. Shares are integers summing exactly to the pool: fractional parts
// are settled by largest remainder, with the player address as the final
// deterministic tie-break. Bets that never revealed are simply not passed in;
// their stake is forfeited and contributes to nobody's pool.
func ComputeShares(entries []ShareEntry) []PayoutShare {
	if len(entries) == 0 {
		return nil
	}

	var pool int64
	weights := make([]float64, len(entries))
	var totalWeight float64
	for i, e := range entries {
		pool += e.Stake
		weights[i] = float64(e.Stake) / (1 + e.DistanceMeters/1000)
		totalWeight += weights[i]
	}
	if pool <= 0 || totalWeight <= 0 {
		return nil
	}

	type slice struct {
		idx  int
		frac float64
	}
	shares := make([]PayoutShare, len(entries))
	remainders := make([]slice, len(entries))
	var assigned int64
	for i, e := range entries {
		ideal := float64(pool) * weights[i] / totalWeight
		base := int64(math.Floor(ideal))
		shares[i] = PayoutShare{Player: e.Player, Share: base}
		remainders[i] = slice{idx: i, frac: ideal - float64(base)}
		assigned += base
	}

	// Hand the leftover units to the largest fractional parts.
	sort.Slice(remainders, func(a, b int) bool {
		if remainders[a].frac != remainders[b].frac {
			return remainders[a].frac > remainders[b].frac
		}
		return entries[remainders[a].idx].Player < entries[remainders[b].idx].Player
	})
	for i := int64(0); i < pool-assigned; i++ {
		shares[remainders[i%int64(len(remainders))].idx].Share++
	}

	return shares
}
