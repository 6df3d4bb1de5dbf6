package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finbridge/tradegate/config"
	"github.com/finbridge/tradegate/internal/constants"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/pkg/circuit"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
)

const (
	headerAPIKey        = "X-CAP-API-KEY"
	headerCST           = "CST"
	headerSecurityToken = "X-SECURITY-TOKEN"
)

// Client is the typed gateway to the broker's REST API. Demo and live
// environments are separate hostnames, each behind its own circuit
// breaker. Only transport failures and broker 5xx responses count
// against a breaker; auth failures are the caller's problem.
type Client struct {
	demoBaseURL string
	liveBaseURL string
	httpClient  *http.Client
	breakers    *circuit.BreakerRegistry
}

func NewClient(cfg config.BrokerConfig, breakers *circuit.BreakerRegistry) *Client {
	return &Client{
		demoBaseURL: strings.TrimRight(cfg.DemoBaseURL, "/"),
		liveBaseURL: strings.TrimRight(cfg.LiveBaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		breakers:    breakers,
	}
}

func (c *Client) baseURL(environment string) string {
	if environment == constants.EnvLive {
		return c.liveBaseURL
	}
	return c.demoBaseURL
}

func (c *Client) breakerFor(base string) *circuit.Breaker {
	name := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		name = u.Host
	}
	return c.breakers.GetOrCreate(name)
}

// CreateSession authenticates against the broker. The session tokens
// come back in the CST and X-SECURITY-TOKEN response headers, not the
// body; the body carries account details.
func (c *Client) CreateSession(ctx context.Context, environment, apiKey, identifier, password string) (SessionTokens, *SessionDetails, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "broker", "CreateSession")

	base := c.baseURL(environment)
	body, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return SessionTokens{}, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/session", bytes.NewReader(body))
	if err != nil {
		return SessionTokens{}, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, apiKey)

	resp, err := c.do(req, base)
	if err != nil {
		return SessionTokens{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return SessionTokens{}, nil, apperrors.WrapError(apperrors.ErrInvalidCredentials,
			fmt.Errorf("broker rejected session request with status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SessionTokens{}, nil, brokerStatusError(resp)
	}

	tokens := SessionTokens{
		CST:           resp.Header.Get(headerCST),
		SecurityToken: resp.Header.Get(headerSecurityToken),
	}
	if tokens.CST == "" || tokens.SecurityToken == "" {
		return SessionTokens{}, nil, apperrors.WrapError(apperrors.ErrBrokerRequestFailed,
			errors.New("broker session response missing token headers"))
	}

	var details SessionDetails
	if decErr := json.NewDecoder(resp.Body).Decode(&details); decErr != nil {
		// tokens are usable even when the detail body is odd
		logger.WarnWithContext(ctx, "Failed to decode broker session body").
			Err(decErr).
			Log()
	}

	logger.InfoWithContext(ctx, "Broker session created").
		String("environment", environment).
		String("account_id", details.AccountID).
		Log()

	return tokens, &details, nil
}

// GetAccounts lists the trading accounts visible to the session.
func (c *Client) GetAccounts(ctx context.Context, environment string, tokens SessionTokens) ([]Account, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "broker", "GetAccounts")

	var out accountsResponse
	if err := c.doJSON(ctx, environment, tokens, http.MethodGet, "/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// GetPositions lists open positions.
func (c *Client) GetPositions(ctx context.Context, environment string, tokens SessionTokens) ([]Position, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "broker", "GetPositions")

	var out positionsResponse
	if err := c.doJSON(ctx, environment, tokens, http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// GetActivityHistory returns account activity in the given range. The
// from and to values are broker-format timestamps and optional.
func (c *Client) GetActivityHistory(ctx context.Context, environment string, tokens SessionTokens, from, to string) ([]Activity, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "broker", "GetActivityHistory")

	path := "/history/activity"
	params := url.Values{}
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out activityResponse
	if err := c.doJSON(ctx, environment, tokens, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Activities, nil
}

// GetMarkets fetches quote snapshots for the given epics.
func (c *Client) GetMarkets(ctx context.Context, environment string, tokens SessionTokens, epics []string) ([]MarketSnapshot, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "broker", "GetMarkets")

	path := "/markets?epics=" + url.QueryEscape(strings.Join(epics, ","))

	var out marketsResponse
	if err := c.doJSON(ctx, environment, tokens, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	snapshots := make([]MarketSnapshot, 0, len(out.MarketDetails))
	for _, detail := range out.MarketDetails {
		snapshots = append(snapshots, MarketSnapshot{
			Epic:           detail.Instrument.Epic,
			InstrumentName: detail.Instrument.Name,
			InstrumentType: detail.Instrument.Type,
			MarketStatus:   detail.Snapshot.MarketStatus,
			Bid:            detail.Snapshot.Bid,
			Offer:          detail.Snapshot.Offer,
			NetChange:      detail.Snapshot.NetChange,
			PercentChange:  detail.Snapshot.PercentChange,
			UpdateTime:     detail.Snapshot.UpdateTime,
		})
	}
	return snapshots, nil
}

// PlaceOrder submits a market order. Orders are always MARKET type with
// forceOpen set and no guaranteed stop.
func (c *Client) PlaceOrder(ctx context.Context, environment string, tokens SessionTokens, ticket OrderTicket) (*OrderConfirmation, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "broker", "PlaceOrder")

	payload := orderRequest{
		Epic:           ticket.Epic,
		Direction:      ticket.Direction,
		Size:           ticket.Size,
		OrderType:      "MARKET",
		ForceOpen:      true,
		GuaranteedStop: false,
	}

	var out OrderConfirmation
	if err := c.doJSON(ctx, environment, tokens, http.MethodPost, "/positions", payload, &out); err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "Order placed").
		String("environment", environment).
		String("epic", ticket.Epic).
		String("direction", ticket.Direction).
		String("deal_reference", out.DealReference).
		Log()

	return &out, nil
}

// doJSON performs one authenticated request and decodes the JSON body.
func (c *Client) doJSON(ctx context.Context, environment string, tokens SessionTokens, method, path string, payload, out interface{}) error {
	base := c.baseURL(environment)

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apperrors.WrapError(apperrors.ErrInternal, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerCST, tokens.CST)
	req.Header.Set(headerSecurityToken, tokens.SecurityToken)

	start := time.Now()
	resp, err := c.do(req, base)
	if err != nil {
		logger.WarnWithContext(ctx, "Broker request failed").
			String("method", method).
			String("path", path).
			String("environment", environment).
			Duration(time.Since(start)).
			Err(err).
			Log()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return apperrors.ErrBrokerSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = brokerStatusError(resp)
		logger.WarnWithContext(ctx, "Broker request failed").
			String("method", method).
			String("path", path).
			String("environment", environment).
			StatusCode(resp.StatusCode).
			Duration(time.Since(start)).
			Err(err).
			Log()
		return err
	}

	if out == nil {
		return nil
	}
	if decErr := json.NewDecoder(resp.Body).Decode(out); decErr != nil {
		return apperrors.WrapError(apperrors.ErrBrokerRequestFailed, decErr)
	}
	return nil
}

// do runs the request under the breaker for the target host. A 5xx
// response or transport error feeds the breaker; everything else,
// including 4xx, counts as the broker being healthy.
func (c *Client) do(req *http.Request, base string) (*http.Response, error) {
	breaker := c.breakerFor(base)
	if err := breaker.Allow(); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrBrokerUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		breaker.Record(err)
		return nil, apperrors.WrapError(apperrors.ErrBrokerUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		breaker.Record(fmt.Errorf("broker returned status %d", resp.StatusCode))
	} else {
		breaker.Record(nil)
	}

	return resp, nil
}

// brokerStatusError builds the error for a non-2xx broker response. The
// body is captured for logs but never surfaced to API clients.
func brokerStatusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return apperrors.WrapError(apperrors.ErrBrokerRequestFailed,
		fmt.Errorf("broker returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
}
