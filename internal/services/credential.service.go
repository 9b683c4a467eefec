package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"tabletally/config"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"
)

var ErrCredentialUnsealable = errors.New("credential could not be unsealed")

// CredentialService seals BGG passwords with secretbox before they touch the
// database and resolves the credential to use for an outbound submission
type CredentialService struct {
	repo repositories.BGGCredentialRepository
	key  [32]byte
	log  logger.Logger
}

func NewCredentialService(
	cfg config.Config,
	repo repositories.BGGCredentialRepository,
) (*CredentialService, error) {
	log := logger.New("CredentialService")

	if len(cfg.CredentialSecretKey) < 32 {
		return nil, log.ErrMsg("credential secret key must be at least 32 bytes")
	}

	service := &CredentialService{
		repo: repo,
		log:  log,
	}
	copy(service.key[:], cfg.CredentialSecretKey)

	return service, nil
}

// Seal encrypts a plaintext password, returning ciphertext and nonce
func (s *CredentialService) Seal(password string) ([]byte, []byte, error) {
	log := s.log.Function("Seal")

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, nil, log.Err("failed to generate nonce", err)
	}

	sealed := secretbox.Seal(nil, []byte(password), &nonce, &s.key)
	return sealed, nonce[:], nil
}

// Open decrypts a stored credential back to its plaintext password
func (s *CredentialService) Open(credential *BGGCredential) (string, error) {
	log := s.log.Function("Open")

	if len(credential.Nonce) != 24 {
		return "", log.Err("invalid credential nonce", ErrCredentialUnsealable, "id", credential.ID)
	}

	var nonce [24]byte
	copy(nonce[:], credential.Nonce)

	opened, ok := secretbox.Open(nil, credential.SealedPassword, &nonce, &s.key)
	if !ok {
		return "", log.Err("failed to unseal credential", ErrCredentialUnsealable, "id", credential.ID)
	}

	return string(opened), nil
}

// StoreUserCredential seals and saves a user-scoped credential, replacing
// any previous one
func (s *CredentialService) StoreUserCredential(
	ctx context.Context,
	userID uuid.UUID,
	plaintext Credential,
) error {
	log := s.log.Function("StoreUserCredential")

	sealed, nonce, err := s.Seal(plaintext.Password)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	credential := existing
	if credential == nil {
		credential = &BGGCredential{UserID: &userID}
	}
	credential.Username = plaintext.Username
	credential.SealedPassword = sealed
	credential.Nonce = nonce

	if err := s.repo.Save(ctx, credential); err != nil {
		return log.Err("failed to store user credential", err, "userID", userID)
	}

	return nil
}

// StorePlayCredential seals and saves a play-scoped credential
func (s *CredentialService) StorePlayCredential(
	ctx context.Context,
	playID uuid.UUID,
	plaintext Credential,
) error {
	log := s.log.Function("StorePlayCredential")

	sealed, nonce, err := s.Seal(plaintext.Password)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetByPlayID(ctx, playID)
	if err != nil {
		return err
	}

	credential := existing
	if credential == nil {
		credential = &BGGCredential{PlayID: &playID}
	}
	credential.Username = plaintext.Username
	credential.SealedPassword = sealed
	credential.Nonce = nonce

	if err := s.repo.Save(ctx, credential); err != nil {
		return log.Err("failed to store play credential", err, "playID", playID)
	}

	return nil
}

// ResolveForSubmission picks the credential for an outbound submission.
// An explicit one-time credential always wins; between the two stored scopes
// the order is configuration-driven (see PREFER_PLAY_SCOPED_CREDENTIALS).
func (s *CredentialService) ResolveForSubmission(
	ctx context.Context,
	play *Play,
	explicit *Credential,
	preferPlayScoped bool,
) (*Credential, error) {
	log := s.log.Function("ResolveForSubmission")

	if explicit != nil && explicit.Username != "" && explicit.Password != "" {
		return explicit, nil
	}

	lookups := []func() (*BGGCredential, error){
		func() (*BGGCredential, error) { return s.repo.GetByPlayID(ctx, play.ID) },
		func() (*BGGCredential, error) { return s.repo.GetByUserID(ctx, play.CreatedByID) },
	}
	if !preferPlayScoped {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, lookup := range lookups {
		stored, err := lookup()
		if err != nil {
			return nil, err
		}
		if stored == nil {
			continue
		}

		password, err := s.Open(stored)
		if err != nil {
			return nil, err
		}
		return &Credential{Username: stored.Username, Password: password}, nil
	}

	return nil, log.Err(
		"no credential available for play submission",
		fmt.Errorf("%w: no stored credential", ErrAuthenticationFailed),
		"playID", play.ID,
	)
}
