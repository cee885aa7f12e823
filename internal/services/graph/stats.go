package graph

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/models"
)

// RelationshipStats is an aggregate view over the referral graph
type RelationshipStats struct {
	TotalRelationships     int64            `json:"total_relationships"`
	ActiveRelationships    int64            `json:"active_relationships"`
	InactiveRelationships  int64            `json:"inactive_relationships"`
	SuspendedRelationships int64            `json:"suspended_relationships"`
	CircularRelationships  int64            `json:"circular_relationships"`
	MaxDepth               int              `json:"max_depth"`
	MeanDepth              float64          `json:"mean_depth"`
	TopReferrers           []LeaderboardRow `json:"top_referrers"`
}

// LeaderboardRow is one entry in the top-referrer leaderboard
type LeaderboardRow struct {
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	ReferralCount int       `json:"referral_count"`
}

const leaderboardSize = 10

// GetRelationshipStats computes aggregate counts over the whole graph by
// full scan and in-memory aggregation. The program operates at tens to
// low-hundreds of referrals per user, so the scan is acceptable.
func (s *Service) GetRelationshipStats() (*RelationshipStats, error) {
	var relationships []models.ReferralRelationship
	if err := s.db.Find(&relationships).Error; err != nil {
		return nil, fmt.Errorf("error scanning relationships: %w", err)
	}

	stats := &RelationshipStats{}
	byReferrer := make(map[uuid.UUID]int)
	parentOf := make(map[uuid.UUID]uuid.UUID)
	var active []models.ReferralRelationship
	var depthSum int

	for _, rel := range relationships {
		stats.TotalRelationships++
		switch rel.Status {
		case models.RelationshipStatusActive:
			stats.ActiveRelationships++
			depthSum += rel.RelationshipDepth
			if rel.RelationshipDepth > stats.MaxDepth {
				stats.MaxDepth = rel.RelationshipDepth
			}
			byReferrer[rel.ReferrerID]++
			parentOf[rel.ReferredUserID] = rel.ReferrerID
			active = append(active, rel)
		case models.RelationshipStatusInactive:
			stats.InactiveRelationships++
		case models.RelationshipStatusSuspended:
			stats.SuspendedRelationships++
		}
	}

	if len(active) > 0 {
		stats.MeanDepth = float64(depthSum) / float64(len(active))
	}

	stats.CircularRelationships = s.countCircularEdges(active, parentOf)
	stats.TopReferrers = s.buildLeaderboard(byReferrer)
	return stats, nil
}

// countCircularEdges reports how many active edges sit on a referral cycle:
// an edge closes a loop when its referred user is an ancestor of its
// referrer. Creation refuses cycles, so a nonzero count means edges were
// written around the service and the graph needs repair.
func (s *Service) countCircularEdges(active []models.ReferralRelationship, parentOf map[uuid.UUID]uuid.UUID) int64 {
	var circular int64
	for _, rel := range active {
		visited := map[uuid.UUID]bool{rel.ReferrerID: true}
		current := rel.ReferrerID

		for depth := 0; depth < s.cfg.ChainWalkMaxDepth; depth++ {
			parent, ok := parentOf[current]
			if !ok {
				break
			}
			if parent == rel.ReferredUserID {
				circular++
				break
			}
			if visited[parent] {
				break
			}
			visited[parent] = true
			current = parent
		}
	}
	return circular
}

// buildLeaderboard ranks referrers by active referral count and resolves
// the top entries to user names.
func (s *Service) buildLeaderboard(byReferrer map[uuid.UUID]int) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(byReferrer))
	for id, count := range byReferrer {
		rows = append(rows, LeaderboardRow{UserID: id, ReferralCount: count})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ReferralCount != rows[j].ReferralCount {
			return rows[i].ReferralCount > rows[j].ReferralCount
		}
		return rows[i].UserID.String() < rows[j].UserID.String()
	})

	if len(rows) > leaderboardSize {
		rows = rows[:leaderboardSize]
	}

	for i := range rows {
		if user, err := s.userSvc.GetUser(rows[i].UserID); err == nil {
			rows[i].Name = user.Name
		}
	}

	return rows
}
