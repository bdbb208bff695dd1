package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/logger"
	"instagram-automation/internal/schedule"
	"instagram-automation/internal/store"
	"instagram-automation/models"
)

// AccountVerifier looks an account up on the platform.
type AccountVerifier interface {
	GetAccountInfo(ctx context.Context, accountID, token string) (*instagram.AccountInfo, error)
}

// ScheduleDefaults seed the schedule of a freshly registered account.
type ScheduleDefaults struct {
	Timezone        string
	Slot1           string
	Slot2           string
	VarianceMinutes int
}

type RegisterAccountRequest struct {
	Username    string `json:"username" binding:"required"`
	InstagramID string `json:"instagram_id" binding:"required"`
	AccessToken string `json:"access_token" binding:"required"`
	AccountType string `json:"account_type"`
	Niche       string `json:"niche"`
}

type ScheduleRequest struct {
	TimeSlot1       string `json:"time_slot_1" binding:"required"`
	TimeSlot2       string `json:"time_slot_2" binding:"required"`
	Timezone        string `json:"timezone"`
	VarianceMinutes *int   `json:"variance_minutes"`
}

type AccountService struct {
	store    store.Store
	verifier AccountVerifier
	defaults ScheduleDefaults
	now      func() time.Time
	log      *slog.Logger
}

func NewAccountService(s store.Store, verifier AccountVerifier, defaults ScheduleDefaults) *AccountService {
	return &AccountService{
		store:    s,
		verifier: verifier,
		defaults: defaults,
		now:      time.Now,
		log:      logger.Component("accounts"),
	}
}

// Register adds an account. Simulation accounts skip the platform lookup;
// real ones must resolve to the same platform id they were submitted with.
func (s *AccountService) Register(ctx context.Context, req RegisterAccountRequest) (*models.Account, error) {
	const op = "register account"

	req.Username = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(req.Username), "@"))
	req.InstagramID = strings.TrimSpace(req.InstagramID)
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if req.Username == "" || req.InstagramID == "" || req.AccessToken == "" {
		return nil, apperr.Validation(op, "username, instagram_id and access_token are required")
	}

	existing, err := s.store.FindAccountByIdentity(ctx, req.Username, req.InstagramID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(op, "account", err)
	}
	if existing != nil {
		return nil, apperr.Newf(apperr.KindConflict, op, "account @%s is already registered", existing.Username)
	}

	now := s.now().UTC()
	account := &models.Account{
		Username:    req.Username,
		InstagramID: req.InstagramID,
		AccessToken: req.AccessToken,
		AccountType: req.AccountType,
		Niche:       strings.TrimSpace(req.Niche),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if account.IsSimulation() {
		s.log.Info("Registering simulation account", "username", account.Username)
	} else {
		info, err := s.verifier.GetAccountInfo(ctx, account.InstagramID, account.AccessToken)
		if err != nil {
			return nil, err
		}
		if info.ID != account.InstagramID {
			return nil, apperr.Newf(apperr.KindValidation, op,
				"access token belongs to account %s, not %s", info.ID, account.InstagramID)
		}
		if account.AccountType == "" {
			account.AccountType = info.AccountType
		}
	}
	if account.AccountType == "" {
		account.AccountType = "business"
	}

	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, storeError(op, "account", err)
	}

	sched := &models.PostingSchedule{
		AccountID:       account.ID,
		TimeSlot1:       s.defaults.Slot1,
		TimeSlot2:       s.defaults.Slot2,
		Timezone:        s.defaults.Timezone,
		VarianceMinutes: s.defaults.VarianceMinutes,
		IsActive:        true,
		CreatedAt:       now,
	}
	if err := s.store.SaveSchedule(ctx, sched); err != nil {
		return nil, storeError(op, "schedule", err)
	}

	s.log.Info("Account registered", "account_id", account.ID.Hex(), "username", account.Username,
		"simulation", account.IsSimulation(), "token", account.TokenHint())
	return account, nil
}

func (s *AccountService) List(ctx context.Context, activeOnly bool) ([]models.Account, error) {
	accounts, err := s.store.ListAccounts(ctx, activeOnly)
	return accounts, storeError("list accounts", "account", err)
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	const op = "get account"
	oid, err := parseID(op, "account", id)
	if err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, oid)
	if err != nil {
		return nil, storeError(op, "account", err)
	}
	return account, nil
}

func (s *AccountService) SetActive(ctx context.Context, id string, active bool) (*models.Account, error) {
	const op = "set account active"
	oid, err := parseID(op, "account", id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAccountActive(ctx, oid, active); err != nil {
		return nil, storeError(op, "account", err)
	}
	return s.Get(ctx, id)
}

func (s *AccountService) Schedule(ctx context.Context, id string) (*models.PostingSchedule, error) {
	const op = "get schedule"
	oid, err := parseID(op, "account", id)
	if err != nil {
		return nil, err
	}
	sched, err := s.store.ActiveSchedule(ctx, oid)
	if err != nil {
		return nil, storeError(op, "schedule", err)
	}
	return sched, nil
}

// SetSchedule replaces the active schedule. The old one stays as history.
func (s *AccountService) SetSchedule(ctx context.Context, id string, req ScheduleRequest) (*models.PostingSchedule, error) {
	const op = "set schedule"
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sched := &models.PostingSchedule{
		AccountID:       account.ID,
		TimeSlot1:       strings.TrimSpace(req.TimeSlot1),
		TimeSlot2:       strings.TrimSpace(req.TimeSlot2),
		Timezone:        req.Timezone,
		VarianceMinutes: s.defaults.VarianceMinutes,
		IsActive:        true,
		CreatedAt:       s.now().UTC(),
	}
	if sched.Timezone == "" {
		sched.Timezone = s.defaults.Timezone
	}
	if req.VarianceMinutes != nil {
		sched.VarianceMinutes = *req.VarianceMinutes
	}
	if err := schedule.ValidateSchedule(sched); err != nil {
		return nil, err
	}

	if err := s.store.SaveSchedule(ctx, sched); err != nil {
		return nil, storeError(op, "schedule", err)
	}
	return sched, nil
}
