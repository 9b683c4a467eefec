package services

import (
	"context"
	"time"

	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"

	"github.com/google/uuid"
)

// PlayService owns the lifecycle of locally logged plays. Every create and
// every participant change runs through the deduplication resolver, so a
// play can move in and out of exclusion as it is edited.
type PlayService struct {
	playRepo  repositories.PlayRepository
	groupRepo repositories.GroupRepository
	gameRepo  repositories.BoardGameRepository
	dedup     *DedupService
	log       logger.Logger
}

func NewPlayService(
	playRepo repositories.PlayRepository,
	groupRepo repositories.GroupRepository,
	gameRepo repositories.BoardGameRepository,
	dedup *DedupService,
) *PlayService {
	return &PlayService{
		playRepo:  playRepo,
		groupRepo: groupRepo,
		gameRepo:  gameRepo,
		dedup:     dedup,
		log:       logger.New("PlayService"),
	}
}

// CreatePlayRequest carries everything needed to log a play
type CreatePlayRequest struct {
	BoardGameID  uuid.UUID         `json:"boardGameId" validate:"required"`
	GroupID      *uuid.UUID        `json:"groupId,omitempty"`
	PlayDate     time.Time         `json:"playDate" validate:"required"`
	Location     string            `json:"location"`
	Duration     *int              `json:"duration,omitempty"`
	Comments     string            `json:"comments"`
	Participants []PlayParticipant `json:"participants"`
	ExpansionIDs []uuid.UUID       `json:"expansionIds,omitempty"`

	RequestOutboundSync bool `json:"requestOutboundSync"`
}

// UpdatePlayRequest replaces the mutable fields of a play. Participants are
// replaced wholesale, never patched.
type UpdatePlayRequest struct {
	PlayDate     time.Time         `json:"playDate" validate:"required"`
	Location     string            `json:"location"`
	Duration     *int              `json:"duration,omitempty"`
	Comments     string            `json:"comments"`
	Participants []PlayParticipant `json:"participants"`
	ExpansionIDs []uuid.UUID       `json:"expansionIds,omitempty"`

	RequestOutboundSync bool `json:"requestOutboundSync"`
}

// Create logs a new play and resolves its place in the duplicate graph
func (s *PlayService) Create(ctx context.Context, userID uuid.UUID, req CreatePlayRequest) (*Play, error) {
	log := s.log.Function("Create")

	if err := s.validateParticipants(req.Participants); err != nil {
		return nil, err
	}

	game, err := s.gameRepo.GetByID(ctx, req.BoardGameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, log.ErrMsg("board game not found")
	}
	// Plays are logged against base games; expansions attach separately
	if game.IsExpansion {
		return nil, log.ErrMsg("cannot log a play against an expansion")
	}

	if err := s.validateExpansions(ctx, req.ExpansionIDs); err != nil {
		return nil, err
	}

	if req.GroupID != nil {
		isMember, err := s.groupRepo.IsMember(ctx, *req.GroupID, userID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, log.ErrMsg("user is not a member of the group")
		}
	}

	play := &Play{
		BoardGameID:         req.BoardGameID,
		GroupID:             req.GroupID,
		CreatedByID:         userID,
		PlayDate:            req.PlayDate,
		Location:            req.Location,
		Duration:            req.Duration,
		Comments:            req.Comments,
		Source:              PlaySourceLocal,
		RequestOutboundSync: req.RequestOutboundSync,
	}

	if err := s.playRepo.Create(ctx, play); err != nil {
		return nil, err
	}

	if err := s.playRepo.ReplaceParticipants(ctx, play.ID, req.Participants); err != nil {
		return nil, err
	}
	play.Participants = req.Participants

	if len(req.ExpansionIDs) > 0 {
		if err := s.playRepo.ReplaceExpansions(ctx, play.ID, req.ExpansionIDs); err != nil {
			return nil, err
		}
	}

	if err := s.dedup.Resolve(ctx, play); err != nil {
		return nil, err
	}

	log.Info("Play created", "playID", play.ID, "boardGameID", play.BoardGameID)
	return play, nil
}

// Update edits a play. Changing the participants re-runs duplicate
// resolution, so an excluded play whose roster diverges becomes leading
// again and vice versa.
func (s *PlayService) Update(ctx context.Context, playID uuid.UUID, req UpdatePlayRequest) (*Play, error) {
	log := s.log.Function("Update")

	if err := s.validateParticipants(req.Participants); err != nil {
		return nil, err
	}
	if err := s.validateExpansions(ctx, req.ExpansionIDs); err != nil {
		return nil, err
	}

	play, err := s.playRepo.GetByID(ctx, playID)
	if err != nil {
		return nil, err
	}
	if play == nil {
		return nil, log.ErrMsg("play not found")
	}

	play.PlayDate = req.PlayDate
	play.Location = req.Location
	play.Duration = req.Duration
	play.Comments = req.Comments
	if req.RequestOutboundSync {
		play.RequestOutboundSync = true
	}

	if err := s.playRepo.Update(ctx, play); err != nil {
		return nil, err
	}

	if err := s.playRepo.ReplaceParticipants(ctx, play.ID, req.Participants); err != nil {
		return nil, err
	}
	play.Participants = req.Participants

	if err := s.playRepo.ReplaceExpansions(ctx, play.ID, req.ExpansionIDs); err != nil {
		return nil, err
	}

	if err := s.dedup.Resolve(ctx, play); err != nil {
		return nil, err
	}

	return play, nil
}

// Delete removes a play. Its followers are re-homed before the row goes
// away, never cascade-deleted.
func (s *PlayService) Delete(ctx context.Context, playID uuid.UUID) error {
	log := s.log.Function("Delete")

	play, err := s.playRepo.GetByID(ctx, playID)
	if err != nil {
		return err
	}
	if play == nil {
		return nil
	}

	if err := s.dedup.HandleDeleted(ctx, play); err != nil {
		return err
	}

	if err := s.playRepo.DeleteHard(ctx, playID); err != nil {
		return err
	}

	log.Info("Play deleted", "playID", playID)
	return nil
}

func (s *PlayService) GetByID(ctx context.Context, playID uuid.UUID) (*Play, error) {
	return s.playRepo.GetByID(ctx, playID)
}

func (s *PlayService) List(ctx context.Context, filter repositories.StatsFilter, limit, offset int) ([]Play, error) {
	return s.playRepo.List(ctx, filter, limit, offset)
}

// PlayStats summarizes a user's record, counting only leading plays
type PlayStats struct {
	TotalPlays int64 `json:"totalPlays"`
	Wins       int64 `json:"wins"`
}

// Stats computes play and win counts. Excluded plays never contribute, so a
// session logged by three group members counts once.
func (s *PlayService) Stats(ctx context.Context, userID uuid.UUID, groupID *uuid.UUID) (*PlayStats, error) {
	filter := repositories.StatsFilter{UserID: &userID, GroupID: groupID}

	total, err := s.playRepo.CountPlays(ctx, filter)
	if err != nil {
		return nil, err
	}

	wins, err := s.playRepo.CountWins(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	return &PlayStats{TotalPlays: total, Wins: wins}, nil
}

func (s *PlayService) validateParticipants(participants []PlayParticipant) error {
	for i := range participants {
		if _, err := participants[i].Identity(); err != nil {
			return err
		}
	}
	return nil
}

// validateExpansions requires every referenced id to be a known expansion
func (s *PlayService) validateExpansions(ctx context.Context, expansionIDs []uuid.UUID) error {
	log := s.log.Function("validateExpansions")

	for _, id := range expansionIDs {
		game, err := s.gameRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if game == nil {
			return log.ErrMsg("expansion not found")
		}
		if !game.IsExpansion {
			return log.ErrMsg("referenced game is not an expansion")
		}
	}
	return nil
}
