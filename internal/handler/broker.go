package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/finbridge/tradegate/internal/broker"
	"github.com/finbridge/tradegate/internal/constants"
	"github.com/finbridge/tradegate/internal/dto"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/service"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"github.com/gin-gonic/gin"
)

type BrokerHandler struct {
	linkService    *service.BrokerLinkService
	tradingService *service.TradingService
}

func NewBrokerHandler(linkService *service.BrokerLinkService, tradingService *service.TradingService) *BrokerHandler {
	return &BrokerHandler{
		linkService:    linkService,
		tradingService: tradingService,
	}
}

// environment reads the env query parameter, defaulting to demo.
func environment(c *gin.Context) (string, bool) {
	env := c.DefaultQuery("env", constants.EnvDemo)
	if !constants.ValidEnvironment(env) {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid environment", "env must be demo or live"))
		return "", false
	}
	return env, true
}

func authedUserID(c *gin.Context) (uint, bool) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", ""))
		return 0, false
	}
	return userID, true
}

// Connect links broker credentials to the authenticated user.
func (h *BrokerHandler) Connect(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Connect")

	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	var req dto.ConnectBrokerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	account, err := h.linkService.Connect(ctx, userID, req.Environment,
		req.APIKey, req.Identifier, req.APIPassword, clientMeta(c))
	if err != nil {
		logger.WarnWithContext(ctx, "Broker connect failed").
			Uint("user_id", userID).
			String("environment", req.Environment).
			Err(err).
			Log()
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Broker connect failed", apperrors.GetErrorMessage(err)))
		return
	}

	resp := dto.BrokerAccountResponse{
		Environment:     account.Environment,
		LinkedAt:        account.UpdatedAt,
		SessionCachedAt: account.SessionUpdatedAt,
	}
	if account.BrokerAccountID != nil {
		resp.BrokerAccountID = *account.BrokerAccountID
	}

	c.JSON(http.StatusCreated, constants.BuildDataResponse(resp))
}

// Linked lists the user's linked broker accounts without touching the
// broker.
func (h *BrokerHandler) Linked(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Linked")

	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	accounts, err := h.linkService.ListAccounts(ctx, userID)
	if err != nil {
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Failed to list linked accounts", apperrors.GetErrorMessage(err)))
		return
	}

	resp := make([]dto.BrokerAccountResponse, 0, len(accounts))
	for _, account := range accounts {
		item := dto.BrokerAccountResponse{
			Environment:     account.Environment,
			LinkedAt:        account.UpdatedAt,
			SessionCachedAt: account.SessionUpdatedAt,
		}
		if account.BrokerAccountID != nil {
			item.BrokerAccountID = *account.BrokerAccountID
		}
		resp = append(resp, item)
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse(resp))
}

// Accounts proxies the broker's account list.
func (h *BrokerHandler) Accounts(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Accounts")

	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	env, ok := environment(c)
	if !ok {
		return
	}

	accounts, err := h.tradingService.Accounts(ctx, userID, env)
	if err != nil {
		h.brokerError(c, ctx, "Failed to fetch accounts", err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse(accounts))
}

// Positions proxies the broker's open positions.
func (h *BrokerHandler) Positions(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Positions")

	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	env, ok := environment(c)
	if !ok {
		return
	}

	positions, err := h.tradingService.Positions(ctx, userID, env)
	if err != nil {
		h.brokerError(c, ctx, "Failed to fetch positions", err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse(positions))
}

// History proxies account activity.
func (h *BrokerHandler) History(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "History")

	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	env, ok := environment(c)
	if !ok {
		return
	}

	activities, err := h.tradingService.History(ctx, userID, env, c.Query("from"), c.Query("to"))
	if err != nil {
		h.brokerError(c, ctx, "Failed to fetch history", err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse(activities))
}

// Markets returns quote snapshots for the requested epics, or the
// default watchlist when none are given.
func (h *BrokerHandler) Markets(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Markets")

	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	env, ok := environment(c)
	if !ok {
		return
	}

	var epics []string
	if raw := c.Query("epics"); raw != "" {
		for _, epic := range strings.Split(raw, ",") {
			if epic = strings.TrimSpace(epic); epic != "" {
				epics = append(epics, epic)
			}
		}
	}

	snapshots, err := h.tradingService.Markets(ctx, userID, env, epics)
	if err != nil {
		h.brokerError(c, ctx, "Failed to fetch markets", err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse(snapshots))
}

// PlaceOrder submits a market order.
func (h *BrokerHandler) PlaceOrder(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "PlaceOrder")

	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}
	if req.Size.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", "size must be positive"))
		return
	}

	confirmation, err := h.tradingService.PlaceOrder(ctx, userID, req.Environment, broker.OrderTicket{
		Epic:      req.Epic,
		Direction: req.Direction,
		Size:      req.Size,
	}, clientMeta(c))
	if err != nil {
		h.brokerError(c, ctx, "Order failed", err)
		return
	}

	c.JSON(http.StatusCreated, constants.BuildDataResponse(confirmation))
}

// brokerError logs and renders an upstream failure. The client sees the
// domain message only, never the broker's raw response.
func (h *BrokerHandler) brokerError(c *gin.Context, ctx context.Context, message string, err error) {
	logger.WarnWithContext(ctx, message).
		Err(err).
		Log()
	c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse(message, apperrors.GetErrorMessage(err)))
}
