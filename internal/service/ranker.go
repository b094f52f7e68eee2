package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/ensemblehq/chairfill/internal/model"
	"github.com/ensemblehq/chairfill/internal/settings"
	"github.com/ensemblehq/chairfill/internal/store"
)

// Candidate is one musician in a need's merged ranking order.
type Candidate struct {
	MusicianID string `json:"musicianId"`
	Rank       int    `json:"rank"`
	ListType   string `json:"listType"`
}

// RankedCandidates returns the ordered candidate sequence for a need,
// merging its ranking lists under the tenant's conflict strategy. The result
// is strictly ordered and duplicate-free.
func (s *StaffingService) RankedCandidates(ctx context.Context, st *store.Store, needID string, strategy settings.ConflictStrategy) ([]Candidate, error) {
	lists, err := st.ListRankingListsForNeed(ctx, needID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranking lists: %w", err)
	}

	switch strategy {
	case settings.FirstListWins:
		return mergeFirstListWins(lists), nil
	case settings.HighestRankWins:
		return mergeHighestRankWins(lists), nil
	default:
		// Strategies are validated at settings load; reaching this means a
		// caller bypassed that validation.
		return nil, fmt.Errorf("%w: %q", settings.ErrUnknownStrategy, strategy)
	}
}

// mergeFirstListWins keeps each musician's placement from the first list in
// precedence order and drops later duplicates. Candidates from earlier lists
// sort ahead of later lists entirely.
func mergeFirstListWins(lists []*model.RankingList) []Candidate {
	seen := make(map[string]bool)
	var merged []Candidate
	for _, list := range lists {
		for _, r := range list.Rankings {
			if seen[r.MusicianID] {
				continue
			}
			seen[r.MusicianID] = true
			merged = append(merged, Candidate{
				MusicianID: r.MusicianID,
				Rank:       r.Rank,
				ListType:   list.ListType,
			})
		}
	}
	return merged
}

// mergeHighestRankWins keeps, for each musician, the occurrence with the
// lowest rank number across all lists, then orders by that rank. Ties on
// rank resolve by list precedence, which keeps the order deterministic.
func mergeHighestRankWins(lists []*model.RankingList) []Candidate {
	type placement struct {
		candidate  Candidate
		precedence int
	}
	best := make(map[string]placement)

	for precedence, list := range lists {
		for _, r := range list.Rankings {
			current, ok := best[r.MusicianID]
			if !ok || r.Rank < current.candidate.Rank {
				best[r.MusicianID] = placement{
					candidate: Candidate{
						MusicianID: r.MusicianID,
						Rank:       r.Rank,
						ListType:   list.ListType,
					},
					precedence: precedence,
				}
			}
		}
	}

	merged := make([]placement, 0, len(best))
	for _, p := range best {
		merged = append(merged, p)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].candidate.Rank != merged[j].candidate.Rank {
			return merged[i].candidate.Rank < merged[j].candidate.Rank
		}
		if merged[i].precedence != merged[j].precedence {
			return merged[i].precedence < merged[j].precedence
		}
		return merged[i].candidate.MusicianID < merged[j].candidate.MusicianID
	})

	out := make([]Candidate, len(merged))
	for i, p := range merged {
		out[i] = p.candidate
	}
	return out
}
