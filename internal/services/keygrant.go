package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"Bootcamp/internal/chain"
	"Bootcamp/internal/models"
	"Bootcamp/internal/store"
)

type KeyGrantRequest struct {
	UserProfileID uuid.UUID
	ApplicationID uuid.UUID
	CohortID      string
	WalletAddress string
	LockAddress   string
	KeyManagers   []string
	Origin        string
}

// GrantOutcome reports what happened to one grant request. Exactly one of
// Granted, AlreadyHadKey, InProgress, Skipped is set on a nil error.
type GrantOutcome struct {
	Granted                bool   `json:"granted"`
	AlreadyHadKey          bool   `json:"already_had_key"`
	InProgress             bool   `json:"in_progress,omitempty"`
	Skipped                string `json:"skipped,omitempty"`
	TransactionHash        string `json:"transaction_hash,omitempty"`
	Attempts               int    `json:"attempts"`
	Error                  string `json:"error,omitempty"`
	RequiresReconciliation bool   `json:"requires_reconciliation,omitempty"`
}

// HasKey reports whether the wallet holds a key after the call.
func (o *GrantOutcome) HasKey() bool {
	return o.Granted || o.AlreadyHadKey
}

type KeyGrantOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	KeyDuration time.Duration
	LockTTL     time.Duration
	Locker      Locker
	Events      EventPublisher
}

type KeyGrantService struct {
	store       Store
	chain       ChainClient
	locker      Locker
	events      EventPublisher
	maxAttempts int
	baseDelay   time.Duration
	keyDuration time.Duration
	lockTTL     time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewKeyGrantService(s Store, c ChainClient, opts KeyGrantOptions) *KeyGrantService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.KeyDuration <= 0 {
		opts.KeyDuration = 365 * 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &KeyGrantService{
		store:       s,
		chain:       c,
		locker:      opts.Locker,
		events:      opts.Events,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		keyDuration: opts.KeyDuration,
		lockTTL:     opts.LockTTL,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GrantKeyToUser issues a lock key to the wallet, retrying failed attempts
// with a linearly growing delay. Every failed attempt and the final outcome
// are recorded as user activities. An exhausted grant returns the outcome
// together with an upstream error.
func (s *KeyGrantService) GrantKeyToUser(ctx context.Context, req KeyGrantRequest) (*GrantOutcome, error) {
	if req.UserProfileID == uuid.Nil {
		return nil, validationError("missing_user", "user profile id is required")
	}
	if !common.IsHexAddress(req.WalletAddress) {
		return nil, validationError("invalid_wallet_address", "wallet address is not a valid address")
	}
	if !common.IsHexAddress(req.LockAddress) {
		return nil, validationError("invalid_lock_address", "lock address is not a valid address")
	}
	if s.chain == nil {
		return nil, upstreamError("chain_unavailable", "no chain client configured", nil)
	}

	if s.locker != nil {
		key := fmt.Sprintf("keygrant:%s:%s", strings.ToLower(req.LockAddress), strings.ToLower(req.WalletAddress))
		release, ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			log.Printf("⚠️ Key grant lock unavailable, continuing without it: %v", err)
		} else if !ok {
			return &GrantOutcome{InProgress: true}, nil
		} else {
			defer release()
		}
	}

	has, err := s.chain.HasValidKey(ctx, req.LockAddress, req.WalletAddress)
	if err != nil {
		log.Printf("⚠️ Key check failed for %s, attempting grant: %v", req.WalletAddress, err)
	} else if has {
		return &GrantOutcome{AlreadyHadKey: true}, nil
	}

	params := chain.GrantKeyParams{
		LockAddress: req.LockAddress,
		Recipient:   req.WalletAddress,
		KeyManagers: req.KeyManagers,
		Expiration:  s.now().Add(s.keyDuration),
	}

	var lastErr error
	var lastHash string
	attempt := 0
	for attempt < s.maxAttempts {
		// A timed out attempt may still have been mined.
		if attempt > 0 && s.keyLanded(ctx, req) {
			s.record(ctx, req, models.ActivityKeyGranted, models.KeyGrantData{
				TransactionHash: lastHash,
				AttemptNumber:   attempt,
				Attempts:        attempt,
			})
			log.Printf("🔑 Key for %s landed after attempt %d reported failure", req.WalletAddress, attempt)
			return &GrantOutcome{Granted: true, TransactionHash: lastHash, Attempts: attempt}, nil
		}
		attempt++
		hash, err := s.chain.GrantKey(ctx, params)
		if err == nil {
			s.record(ctx, req, models.ActivityKeyGranted, models.KeyGrantData{
				TransactionHash: hash,
				AttemptNumber:   attempt,
				Attempts:        attempt,
			})
			log.Printf("🔑 Granted key to %s on lock %s (attempt %d)", req.WalletAddress, req.LockAddress, attempt)
			return &GrantOutcome{Granted: true, TransactionHash: hash, Attempts: attempt}, nil
		}

		lastErr = err
		if hash != "" {
			lastHash = hash
		}
		s.record(ctx, req, models.ActivityKeyGrantAttemptFailed, models.KeyGrantData{
			TransactionHash: hash,
			Error:           err.Error(),
			AttemptNumber:   attempt,
			Attempts:        s.maxAttempts,
		})
		log.Printf("⚠️ Key grant attempt %d/%d for %s failed: %v", attempt, s.maxAttempts, req.WalletAddress, err)

		if attempt < s.maxAttempts {
			if err := s.sleep(ctx, time.Duration(attempt)*s.baseDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	s.record(ctx, req, models.ActivityKeyGrantFailed, models.KeyGrantData{
		Error:                  lastErr.Error(),
		Attempts:               attempt,
		RequiresReconciliation: true,
	})
	s.publishFailure(ctx, req, attempt, lastErr)

	outcome := &GrantOutcome{
		Attempts:               attempt,
		Error:                  lastErr.Error(),
		RequiresReconciliation: true,
	}
	return outcome, upstreamError("key_grant_exhausted", fmt.Sprintf("key grant failed after %d attempts", attempt), lastErr)
}

func (s *KeyGrantService) keyLanded(ctx context.Context, req KeyGrantRequest) bool {
	has, err := s.chain.HasValidKey(ctx, req.LockAddress, req.WalletAddress)
	if err != nil {
		log.Printf("⚠️ Key re-check failed for %s: %v", req.WalletAddress, err)
		return false
	}
	return has
}

// GrantForApplication resolves the wallet and lock for an application and
// grants the key. Applications without a wallet or a cohort lock are skipped.
func (s *KeyGrantService) GrantForApplication(ctx context.Context, app *models.Application, origin string) (*GrantOutcome, error) {
	profile, err := s.store.GetUserProfile(ctx, app.UserProfileID)
	if errors.Is(err, store.ErrNotFound) {
		return &GrantOutcome{Skipped: "user profile not found"}, nil
	}
	if err != nil {
		return nil, storageError("load user profile", err)
	}
	if !profile.HasWallet() {
		return &GrantOutcome{Skipped: "user has no wallet address"}, nil
	}

	cohort, err := s.store.GetCohort(ctx, app.CohortID)
	if errors.Is(err, store.ErrNotFound) {
		return &GrantOutcome{Skipped: "cohort not found"}, nil
	}
	if err != nil {
		return nil, storageError("load cohort", err)
	}
	if !cohort.HasLock() {
		return &GrantOutcome{Skipped: "cohort has no lock"}, nil
	}

	return s.GrantKeyToUser(ctx, KeyGrantRequest{
		UserProfileID: app.UserProfileID,
		ApplicationID: app.ID,
		CohortID:      cohort.ID,
		WalletAddress: profile.WalletAddress,
		LockAddress:   cohort.LockAddress,
		KeyManagers:   cohort.KeyManagerAddresses(),
		Origin:        origin,
	})
}

func (s *KeyGrantService) record(ctx context.Context, req KeyGrantRequest, kind models.ActivityType, data models.KeyGrantData) {
	data.CohortID = req.CohortID
	data.LockAddress = req.LockAddress
	data.WalletAddress = req.WalletAddress
	if req.ApplicationID != uuid.Nil {
		data.ApplicationID = req.ApplicationID.String()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("❌ Encode %s activity: %v", kind, err)
		return
	}
	// The activity log must not turn a grant result into an error.
	if err := s.store.RecordActivity(context.WithoutCancel(ctx), &models.UserActivity{
		UserProfileID: req.UserProfileID,
		ActivityType:  kind,
		ActivityData:  raw,
	}); err != nil {
		log.Printf("❌ Record %s activity for %s: %v", kind, req.UserProfileID, err)
	}
}

func (s *KeyGrantService) publishFailure(ctx context.Context, req KeyGrantRequest, attempts int, cause error) {
	if s.events == nil {
		return
	}
	ev := KeyGrantFailedEvent{
		UserProfileID: req.UserProfileID.String(),
		CohortID:      req.CohortID,
		WalletAddress: req.WalletAddress,
		LockAddress:   req.LockAddress,
		Attempts:      attempts,
		Error:         cause.Error(),
		Origin:        req.Origin,
		FailedAt:      s.now().UTC().Format(time.RFC3339),
	}
	if req.ApplicationID != uuid.Nil {
		ev.ApplicationID = req.ApplicationID.String()
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), TopicKeyGrantFailed, ev); err != nil {
		log.Printf("⚠️ Publish %s: %v", TopicKeyGrantFailed, err)
	}
}
