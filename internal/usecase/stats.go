package usecase

import (
	"log"
	"math"
	"time"

	"mirror-backend/internal/domain"
)

// History returns closed pairs since fromTime, preferring the durable store
// when one is configured.
func (s *MirrorService) History(fromTime time.Time) []*domain.MirrorPair {
	if s.historian != nil {
		pairs, err := s.historian.History(fromTime)
		if err == nil {
			return pairs
		}
		log.Printf("Error reading pair history, falling back to memory: %v", err)
	}
	return s.repo.GetHistory(fromTime)
}

// GetStatistics summarizes closed pairs since fromTime.
func (s *MirrorService) GetStatistics(fromTime time.Time) *domain.MirrorStats {
	history := s.History(fromTime)

	stats := &domain.MirrorStats{TotalPairs: len(history)}
	if len(history) == 0 {
		return stats
	}

	wins := 0
	counted := 0
	totalProfit := 0.0
	totalDuration := 0

	for _, pair := range history {
		if pair.ProfitLoss != nil {
			counted++
			if *pair.ProfitLoss > 0 {
				wins++
			}
			totalProfit += *pair.ProfitLoss
		}
		if pair.ClosedAt != nil {
			totalDuration += int(pair.ClosedAt.Sub(pair.OpenedAt).Seconds())
		}
	}

	if counted > 0 {
		stats.WinRate = math.Round(float64(wins)/float64(counted)*100*100) / 100
	}
	stats.TotalProfit = math.Round(totalProfit*100) / 100
	stats.AvgDurationSec = totalDuration / len(history)
	return stats
}
