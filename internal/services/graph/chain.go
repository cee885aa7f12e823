package graph

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/services/users"
)

// CircularCheckResult is the outcome of a circular reference check
type CircularCheckResult struct {
	HasCircularReference bool        `json:"has_circular_reference"`
	CircularPath         []uuid.UUID `json:"circular_path,omitempty"`
	Depth                int         `json:"depth"`
	Reason               string      `json:"reason,omitempty"`
}

// ChainNode is one ancestor in a user's referral chain
type ChainNode struct {
	UserID        uuid.UUID  `json:"user_id"`
	Name          string     `json:"name"`
	ReferralCode  string     `json:"referral_code"`
	Level         int        `json:"level"`
	ReferredBy    *uuid.UUID `json:"referred_by,omitempty"`
	ReferralCount int        `json:"referral_count"`
	IsActive      bool       `json:"is_active"`
}

// CheckCircularReference decides whether the proposed edge would close a
// loop. The edge makes referrerID the parent of referredID, so a cycle
// exists exactly when the referred user is already an ancestor of the
// referrer: the walk follows active referred-by edges upward from the
// referrer, looking for the referred user or a revisit. The walk is
// bounded; exhausting the bound without a hit is treated as no cycle, but
// the real chain could be longer, so it is logged as suspicious rather
// than trusted as definitive.
func (s *Service) CheckCircularReference(referrerID, referredID uuid.UUID) (*CircularCheckResult, error) {
	if referrerID == referredID {
		return &CircularCheckResult{
			HasCircularReference: true,
			CircularPath:         []uuid.UUID{referredID},
			Reason:               "self referral",
		}, nil
	}

	visited := map[uuid.UUID]bool{referrerID: true}
	path := []uuid.UUID{referrerID}
	current := referrerID

	for depth := 0; depth < s.cfg.CircularCheckMaxDepth; depth++ {
		parent, err := s.GetActiveRelationshipForUser(current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			// Reached a root without meeting the referred user.
			return &CircularCheckResult{Depth: depth}, nil
		}

		path = append(path, parent.ReferrerID)

		if parent.ReferrerID == referredID {
			return &CircularCheckResult{
				HasCircularReference: true,
				CircularPath:         path,
				Depth:                depth + 1,
				Reason:               "referred user is an ancestor of the proposed referrer",
			}, nil
		}
		if visited[parent.ReferrerID] {
			return &CircularCheckResult{
				HasCircularReference: true,
				CircularPath:         path,
				Depth:                depth + 1,
				Reason:               "existing chain already contains a cycle",
			}, nil
		}

		visited[parent.ReferrerID] = true
		current = parent.ReferrerID
	}

	log.Printf("warning: circular check for %s -> %s exhausted depth bound %d; treating as no cycle",
		referrerID, referredID, s.cfg.CircularCheckMaxDepth)
	return &CircularCheckResult{
		Depth:  s.cfg.CircularCheckMaxDepth,
		Reason: "walk depth bound exceeded; result inconclusive",
	}, nil
}

// GetReferralChain walks forward from a user toward the root referrer,
// returning one node per ancestor. The walk stops early on a revisit, a
// missing user record, or a root, and never exceeds the configured bound.
func (s *Service) GetReferralChain(userID uuid.UUID) ([]ChainNode, error) {
	var chain []ChainNode
	visited := map[uuid.UUID]bool{userID: true}
	current := userID

	for level := 1; level <= s.cfg.ChainWalkMaxDepth; level++ {
		parent, err := s.GetActiveRelationshipForUser(current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}

		if visited[parent.ReferrerID] {
			log.Printf("warning: referral chain for %s revisits %s; stopping walk", userID, parent.ReferrerID)
			break
		}
		visited[parent.ReferrerID] = true

		referrer, err := s.userSvc.GetUser(parent.ReferrerID)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				log.Printf("warning: referral chain for %s hit missing user %s; stopping walk", userID, parent.ReferrerID)
				break
			}
			return nil, fmt.Errorf("error loading chain member: %w", err)
		}

		node := ChainNode{
			UserID:        referrer.ID,
			Name:          referrer.Name,
			ReferralCode:  referrer.ReferralCode,
			Level:         level,
			ReferralCount: referrer.TotalReferrals,
			IsActive:      referrer.IsActive(),
		}

		// Peek at the ancestor's own parent to fill in who referred them.
		grandparent, err := s.GetActiveRelationshipForUser(referrer.ID)
		if err != nil {
			return nil, err
		}
		if grandparent != nil {
			referredBy := grandparent.ReferrerID
			node.ReferredBy = &referredBy
		}

		chain = append(chain, node)
		current = referrer.ID
	}

	return chain, nil
}
