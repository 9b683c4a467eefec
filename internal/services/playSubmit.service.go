package services

import (
	"context"
	"strconv"

	"tabletally/internal/events"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"
	"tabletally/internal/utils"

	"github.com/google/uuid"
)

// PlaySubmitService pushes locally created plays up to BGG. Submissions run
// one play at a time: resolve a credential, log in, post the play, record
// the returned play id. Failures are recorded on the play and re-raised so
// the caller's retry policy sees them.
type PlaySubmitService struct {
	bgg              BGGService
	credentials      *CredentialService
	playRepo         repositories.PlayRepository
	gameRepo         repositories.BoardGameRepository
	eventBus         *events.EventBus
	preferPlayScoped bool
	log              logger.Logger
}

func NewPlaySubmitService(
	bgg BGGService,
	credentials *CredentialService,
	playRepo repositories.PlayRepository,
	gameRepo repositories.BoardGameRepository,
	eventBus *events.EventBus,
	preferPlayScoped bool,
) *PlaySubmitService {
	return &PlaySubmitService{
		bgg:              bgg,
		credentials:      credentials,
		playRepo:         playRepo,
		gameRepo:         gameRepo,
		eventBus:         eventBus,
		preferPlayScoped: preferPlayScoped,
		log:              logger.New("PlaySubmitService"),
	}
}

// Submit pushes one play to BGG. A play that already carries a BGG play id
// is updated in place rather than re-created. The explicit credential, when
// given, overrides any stored scope. The force flag marks a deliberate user
// submission and overrides a cleared outbound request; queued callers leave
// it false so a request cancelled after listing short-circuits.
func (s *PlaySubmitService) Submit(ctx context.Context, playID uuid.UUID, explicit *Credential, force bool) error {
	log := s.log.Function("Submit")

	play, err := s.playRepo.GetByID(ctx, playID)
	if err != nil {
		return err
	}
	if play == nil {
		return log.ErrMsg("play not found")
	}

	// The outbound request can be withdrawn between a flush listing and
	// this call, or before a retry fires.
	if !force && !play.RequestOutboundSync {
		log.Info("Outbound sync no longer requested, skipping", "playID", play.ID)
		return nil
	}

	if err := s.checkSubmittable(play); err != nil {
		return err
	}

	// Already pushed and nothing requested since: nothing to do
	if play.HasBGGPlayID() && play.SubmitStatus == SyncStatusSynced && !play.RequestOutboundSync {
		return nil
	}

	submission, err := s.buildSubmission(ctx, play)
	if err != nil {
		return s.recordFailure(ctx, play, err)
	}

	credential, err := s.credentials.ResolveForSubmission(ctx, play, explicit, s.preferPlayScoped)
	if err != nil {
		return s.recordFailure(ctx, play, err)
	}

	session, err := s.bgg.Login(ctx, credential.Username, credential.Password)
	if err != nil {
		return s.recordFailure(ctx, play, err)
	}

	bggPlayID, err := s.bgg.SubmitPlay(ctx, session, *submission)
	if err != nil {
		return s.recordFailure(ctx, play, err)
	}

	play.MarkAsSubmitted(bggPlayID)
	play.RequestOutboundSync = false
	if err := s.playRepo.Update(ctx, play); err != nil {
		return err
	}

	log.Info("Play submitted to BGG", "playID", play.ID, "bggPlayID", bggPlayID)
	s.publish(events.PLAY_SUBMITTED, play, map[string]any{"bggPlayId": bggPlayID})

	return nil
}

// checkSubmittable enforces the preconditions that make a submission even
// possible. These are terminal: retrying without fixing the play is useless.
func (s *PlaySubmitService) checkSubmittable(play *Play) error {
	log := s.log.Function("checkSubmittable")

	if play.IsExcluded {
		return log.Err("cannot submit excluded play",
			ErrPermanentClient, "playID", play.ID)
	}
	if play.IsFromBGG() && !play.RequestOutboundSync {
		return log.Err("imported play has no outbound changes to push",
			ErrPermanentClient, "playID", play.ID)
	}
	for i := range play.Participants {
		if _, err := play.Participants[i].Identity(); err != nil {
			return log.Err("participant identity is ambiguous", err, "playID", play.ID)
		}
	}
	return nil
}

// buildSubmission translates the play into the BGG payload. The board game
// must be mapped to a BGG id; submission of unmapped games is terminal.
func (s *PlaySubmitService) buildSubmission(ctx context.Context, play *Play) (*PlaySubmission, error) {
	log := s.log.Function("buildSubmission")

	game, err := s.gameRepo.GetByID(ctx, play.BoardGameID)
	if err != nil {
		return nil, err
	}
	if game == nil || !game.HasBGGID() {
		return nil, log.Err("board game has no BGG mapping",
			ErrMissingExternalMapping, "playID", play.ID, "boardGameID", play.BoardGameID)
	}

	submission := &PlaySubmission{
		ObjectID: *game.BGGID,
		Date:     utils.FormatPlayDate(play.PlayDate),
		Location: play.Location,
		Comments: play.Comments,
		Quantity: 1,
		Length:   play.Duration,
	}
	if play.HasBGGPlayID() {
		submission.PlayID = play.BGGPlayID
	}

	for i := range play.Participants {
		player, err := s.participantToPlayer(&play.Participants[i])
		if err != nil {
			return nil, err
		}
		submission.Players = append(submission.Players, *player)
	}

	for i := range play.Expansions {
		if play.Expansions[i].HasBGGID() {
			submission.Expansions = append(submission.Expansions, *play.Expansions[i].BGGID)
		}
	}

	return submission, nil
}

func (s *PlaySubmitService) participantToPlayer(participant *PlayParticipant) (*SubmissionPlayer, error) {
	identity, err := participant.Identity()
	if err != nil {
		return nil, err
	}

	player := &SubmissionPlayer{
		Win: participant.IsWinner,
		New: participant.IsFirstPlay,
	}

	switch identity.Kind {
	case IdentityKindBGG:
		player.Username = identity.Value
	case IdentityKindGuest:
		player.Name = identity.Value
	case IdentityKindUser:
		if participant.User != nil && participant.User.HasBGGUsername() {
			player.Username = *participant.User.BGGUsername
		} else if participant.User != nil {
			player.Name = participant.User.DisplayName
		} else {
			player.Name = identity.Value
		}
	}

	if participant.Score != nil {
		player.Score = participant.Score.String()
	}
	if participant.FinishPosition != nil {
		player.Position = strconv.Itoa(*participant.FinishPosition)
	}

	return player, nil
}

// recordFailure stores the failure on the play and re-raises the original
// error so task-level retry policy can classify it
func (s *PlaySubmitService) recordFailure(ctx context.Context, play *Play, cause error) error {
	log := s.log.Function("recordFailure")

	play.MarkAsSubmitFailed(utils.TruncateError(cause.Error()))
	if err := s.playRepo.Update(ctx, play); err != nil {
		log.Warn("Failed to record submit failure", "playID", play.ID, "error", err)
	}

	s.publish(events.PLAY_SUBMIT_ERROR, play, map[string]any{"error": cause.Error()})
	return cause
}

func (s *PlaySubmitService) publish(msgType events.MessageType, play *Play, data map[string]any) {
	if s.eventBus == nil {
		return
	}
	userID := play.CreatedByID
	if data == nil {
		data = map[string]any{}
	}
	data["playId"] = play.ID.String()
	if err := s.eventBus.Publish(events.SUBMIT_CHANNEL, events.Event{
		Type:   msgType,
		UserID: &userID,
		Data:   data,
	}); err != nil {
		s.log.Warn("Failed to publish submit event", "type", msgType, "error", err)
	}
}
