package services

import (
	"context"
	"fmt"
	"sync"

	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"

	"github.com/google/uuid"
)

// DedupService decides which of several play records describing the same
// real-world event is authoritative. Plays sharing a grouping key (board
// game, play date, group) with set-equal participant identities collapse to
// one leading play; the rest are excluded with a back-reference, hidden from
// default listings but kept for audit and reversal.
//
// Resolution for a given grouping key is serialized through an in-process
// keyed mutex: two plays with the same key must never resolve concurrently
// or the graph can end up with two leaders or a chain.
type DedupService struct {
	playRepo repositories.PlayRepository
	log      logger.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewDedupService(playRepo repositories.PlayRepository) *DedupService {
	return &DedupService{
		playRepo: playRepo,
		log:      logger.New("DedupService"),
		locks:    make(map[string]*keyLock),
	}
}

// groupingKey identifies the duplicate-candidate set for a play
func groupingKey(play *Play) string {
	groupID := uuid.Nil
	if play.GroupID != nil {
		groupID = *play.GroupID
	}
	return fmt.Sprintf("%s|%s|%s",
		play.BoardGameID,
		play.PlayDate.Format("2006-01-02"),
		groupID,
	)
}

func (s *DedupService) lockKey(key string) func() {
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &keyLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Resolve places a play in the leading/excluded graph. It must be called
// after every create and after every participant-set change, for local and
// inbound plays alike.
func (s *DedupService) Resolve(ctx context.Context, play *Play) error {
	log := s.log.Function("Resolve")

	if play == nil {
		return log.ErrMsg("cannot resolve nil play")
	}

	// Personal plays are never merged
	if !play.IsGrouped() {
		if play.IsExcluded || play.LeadingPlayID != nil {
			play.MarkAsLeading()
			if err := s.playRepo.Update(ctx, play); err != nil {
				return err
			}
		}
		return nil
	}

	unlock := s.lockKey(groupingKey(play))
	defer unlock()

	// Detach first so a stale position never leaks into the new resolution
	if err := s.detach(ctx, play); err != nil {
		return err
	}

	candidates, err := s.playRepo.GetLeadingCandidates(
		ctx,
		play.BoardGameID,
		play.PlayDate,
		*play.GroupID,
		play.ID,
	)
	if err != nil {
		return err
	}

	identitySet := play.IdentitySet()

	match := pickMatch(candidates, identitySet)
	if match == nil {
		if play.IsExcluded || play.LeadingPlayID != nil {
			play.MarkAsLeading()
			if err := s.playRepo.Update(ctx, play); err != nil {
				return err
			}
		}
		return nil
	}

	log.Info("Play matches an existing leading play, excluding",
		"playID", play.ID,
		"leadingPlayID", match.ID,
	)

	play.MarkAsExcluded(match.ID)
	if err := s.playRepo.Update(ctx, play); err != nil {
		return err
	}

	return nil
}

// HandleDeleted re-homes the followers of a play that was removed. Followers
// are never cascade-deleted; the best of them is promoted.
func (s *DedupService) HandleDeleted(ctx context.Context, play *Play) error {
	if play == nil || !play.IsGrouped() {
		return nil
	}

	unlock := s.lockKey(groupingKey(play))
	defer unlock()

	return s.reassignFollowers(ctx, play)
}

// detach removes the play from its current graph position: an excluded play
// simply clears its pointer, a leading play hands its followers to the best
// remaining candidate
func (s *DedupService) detach(ctx context.Context, play *Play) error {
	if play.IsExcluded {
		play.MarkAsLeading()
		return s.playRepo.Update(ctx, play)
	}

	return s.reassignFollowers(ctx, play)
}

// reassignFollowers re-points every follower of the given play: to a leading
// play with a matching identity set when one exists, otherwise the earliest
// follower is promoted and the rest point to it
func (s *DedupService) reassignFollowers(ctx context.Context, play *Play) error {
	log := s.log.Function("reassignFollowers")

	followers, err := s.playRepo.GetFollowers(ctx, play.ID)
	if err != nil {
		return err
	}

	if len(followers) == 0 {
		return nil
	}

	candidates, err := s.playRepo.GetLeadingCandidates(
		ctx,
		play.BoardGameID,
		play.PlayDate,
		*play.GroupID,
		play.ID,
	)
	if err != nil {
		return err
	}

	var promoted *Play

	for i := range followers {
		follower := &followers[i]
		identitySet := follower.IdentitySet()

		if match := pickMatch(candidates, identitySet); match != nil {
			follower.MarkAsExcluded(match.ID)
			if err := s.playRepo.Update(ctx, follower); err != nil {
				return err
			}
			continue
		}

		if promoted != nil && IdentitySetEquals(identitySet, promoted.IdentitySet()) {
			follower.MarkAsExcluded(promoted.ID)
			if err := s.playRepo.Update(ctx, follower); err != nil {
				return err
			}
			continue
		}

		// Followers arrive ordered by creation time, so the first unmatched
		// one is the promotion target
		follower.MarkAsLeading()
		if err := s.playRepo.Update(ctx, follower); err != nil {
			return err
		}
		if promoted == nil {
			promoted = follower
		}

		log.Info("Promoted follower to leading play",
			"playID", follower.ID,
			"formerLeadingID", play.ID,
		)
	}

	return nil
}

// pickMatch finds the leading candidate whose identity set equals the given
// one. Candidates arrive ordered by creation time then id, which doubles as
// the defensive tie-break when more than one matches.
func pickMatch(candidates []Play, identitySet map[string]int) *Play {
	if len(identitySet) == 0 {
		return nil
	}
	for i := range candidates {
		if IdentitySetEquals(candidates[i].IdentitySet(), identitySet) {
			return &candidates[i]
		}
	}
	return nil
}

// VerifyGraph checks the well-formedness invariants for a play against its
// neighbors and reports violations loudly. Violations mean a bug, not an
// expected external failure.
func (s *DedupService) VerifyGraph(ctx context.Context, play *Play) error {
	log := s.log.Function("VerifyGraph")

	if play.IsExcluded {
		if play.LeadingPlayID == nil {
			return log.Error("INVARIANT VIOLATION: excluded play has no leading pointer", "playID", play.ID)
		}

		leading, err := s.playRepo.GetByID(ctx, *play.LeadingPlayID)
		if err != nil {
			return err
		}
		if leading == nil {
			return log.Error("INVARIANT VIOLATION: excluded play points to missing play",
				"playID", play.ID,
				"leadingPlayID", *play.LeadingPlayID,
			)
		}
		if leading.IsExcluded {
			return log.Error("INVARIANT VIOLATION: exclusion chain deeper than one",
				"playID", play.ID,
				"leadingPlayID", leading.ID,
			)
		}
		return nil
	}

	if play.LeadingPlayID != nil {
		return log.Error("INVARIANT VIOLATION: leading play carries a leading pointer", "playID", play.ID)
	}

	return nil
}
