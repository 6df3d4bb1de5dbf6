package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/finbridge/tradegate/internal/broker"
	"github.com/finbridge/tradegate/internal/constants"
	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuoteCache is the short-TTL byte cache for market snapshots. A miss
// is (nil, nil); a disabled cache misses everything.
type QuoteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TradingService fronts the broker's account and trading endpoints,
// always going through the session cache with its one forced retry.
type TradingService struct {
	sessions *BrokerSessionService
	api      BrokerAPI
	settings SystemSettingRepository
	audits   AuditLogRepository
	quotes   QuoteCache
	quoteTTL time.Duration
}

func NewTradingService(sessions *BrokerSessionService, api BrokerAPI, settings SystemSettingRepository, audits AuditLogRepository, quotes QuoteCache, quoteTTL time.Duration) *TradingService {
	return &TradingService{
		sessions: sessions,
		api:      api,
		settings: settings,
		audits:   audits,
		quotes:   quotes,
		quoteTTL: quoteTTL,
	}
}

// Accounts lists the user's trading accounts at the broker.
func (s *TradingService) Accounts(ctx context.Context, userID uint, environment string) ([]broker.Account, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Accounts")

	var accounts []broker.Account
	err := s.sessions.WithSession(ctx, userID, environment, func(tokens broker.SessionTokens) error {
		var apiErr error
		accounts, apiErr = s.api.GetAccounts(ctx, environment, tokens)
		return apiErr
	})
	return accounts, err
}

// Positions lists the user's open positions.
func (s *TradingService) Positions(ctx context.Context, userID uint, environment string) ([]broker.Position, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Positions")

	var positions []broker.Position
	err := s.sessions.WithSession(ctx, userID, environment, func(tokens broker.SessionTokens) error {
		var apiErr error
		positions, apiErr = s.api.GetPositions(ctx, environment, tokens)
		return apiErr
	})
	return positions, err
}

// History returns account activity in the given range.
func (s *TradingService) History(ctx context.Context, userID uint, environment, from, to string) ([]broker.Activity, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "History")

	var activities []broker.Activity
	err := s.sessions.WithSession(ctx, userID, environment, func(tokens broker.SessionTokens) error {
		var apiErr error
		activities, apiErr = s.api.GetActivityHistory(ctx, environment, tokens, from, to)
		return apiErr
	})
	return activities, err
}

// Markets returns quote snapshots. An empty epics list falls back to
// the operator-configured watchlist, then to the built-in default.
// Results are cached briefly per environment and epic set since quote
// fan-out from dashboard polling dwarfs everything else.
func (s *TradingService) Markets(ctx context.Context, userID uint, environment string, epics []string) ([]broker.MarketSnapshot, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Markets")

	if len(epics) == 0 {
		epics = s.defaultEpics(ctx)
	}

	cacheKey := "quotes:" + environment + ":" + strings.Join(epics, ",")
	if cached, err := s.quotes.Get(ctx, cacheKey); err == nil && cached != nil {
		var snapshots []broker.MarketSnapshot
		if err := json.Unmarshal(cached, &snapshots); err == nil {
			return snapshots, nil
		}
	}

	var snapshots []broker.MarketSnapshot
	err := s.sessions.WithSession(ctx, userID, environment, func(tokens broker.SessionTokens) error {
		var apiErr error
		snapshots, apiErr = s.api.GetMarkets(ctx, environment, tokens, epics)
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(snapshots); marshalErr == nil {
		if cacheErr := s.quotes.Set(ctx, cacheKey, raw, s.quoteTTL); cacheErr != nil {
			logger.DebugWithContext(ctx, "Quote cache write failed").
				Err(cacheErr).
				Log()
		}
	}

	return snapshots, nil
}

// PlaceOrder submits a market order and audits the confirmation.
func (s *TradingService) PlaceOrder(ctx context.Context, userID uint, environment string, ticket broker.OrderTicket, meta ClientMeta) (*broker.OrderConfirmation, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "PlaceOrder")

	var confirmation *broker.OrderConfirmation
	err := s.sessions.WithSession(ctx, userID, environment, func(tokens broker.SessionTokens) error {
		var apiErr error
		confirmation, apiErr = s.api.PlaceOrder(ctx, environment, tokens, ticket)
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"environment":    environment,
		"epic":           ticket.Epic,
		"direction":      ticket.Direction,
		"size":           ticket.Size.String(),
		"deal_reference": confirmation.DealReference,
	})
	entry := &model.AuditLog{
		UserID:    &userID,
		Action:    constants.ActionOrderPlaced,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  datatypes.JSON(raw),
	}
	if auditErr := s.audits.Create(ctx, entry); auditErr != nil {
		logger.WarnWithContext(ctx, "Audit write failed").
			String("action", constants.ActionOrderPlaced).
			Err(auditErr).
			Log()
	}

	return confirmation, nil
}

func (s *TradingService) defaultEpics(ctx context.Context) []string {
	value, err := s.settings.Get(ctx, constants.SettingDefaultEpics)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WarnWithContext(ctx, "Failed to load default epics setting").
				Err(err).
				Log()
		}
		return constants.DefaultEpics
	}

	var epics []string
	for _, epic := range strings.Split(value, ",") {
		if epic = strings.TrimSpace(epic); epic != "" {
			epics = append(epics, epic)
		}
	}
	if len(epics) == 0 {
		return constants.DefaultEpics
	}
	return epics
}
