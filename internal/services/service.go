package services

import (
	"time"

	"tabletally/config"
	"tabletally/internal/database"
	"tabletally/internal/events"
	"tabletally/internal/repositories"
)

type Service struct {
	Transaction *TransactionService
	Scheduler   *SchedulerService
	RateGate    *BGGRateGate
	BGG         BGGService
	Credential  *CredentialService
	GameSync    *GameSyncService
	PlaySync    *PlaySyncService
	Dedup       *DedupService
	Play        *PlayService
	PlaySubmit  *PlaySubmitService
}

func New(db database.DB, config config.Config, eventBus *events.EventBus) (Service, error) {
	transactionService := NewTransactionService(db)
	repos := repositories.New(db)

	rateGate := NewBGGRateGate(time.Duration(config.SyncMinCallIntervalSeconds) * time.Second)
	bggClient := NewBGGClient(config, rateGate)

	credentialService, err := NewCredentialService(config, repos.BGGCredential)
	if err != nil {
		return Service{}, err
	}

	schedulerService := NewSchedulerService()
	dedupService := NewDedupService(repos.Play)
	gameSyncService := NewGameSyncService(bggClient, repos.BoardGame, eventBus, config.SyncStaleMonths)
	playSyncService := NewPlaySyncService(
		bggClient,
		gameSyncService,
		dedupService,
		repos.Play,
		repos.User,
		repos.SyncRun,
		eventBus,
	)
	playService := NewPlayService(repos.Play, repos.Group, repos.BoardGame, dedupService)
	playSubmitService := NewPlaySubmitService(
		bggClient,
		credentialService,
		repos.Play,
		repos.BoardGame,
		eventBus,
		config.PreferPlayScopedCredentials,
	)

	return Service{
		Transaction: transactionService,
		Scheduler:   schedulerService,
		RateGate:    rateGate,
		BGG:         bggClient,
		Credential:  credentialService,
		GameSync:    gameSyncService,
		PlaySync:    playSyncService,
		Dedup:       dedupService,
		Play:        playService,
		PlaySubmit:  playSubmitService,
	}, nil
}
