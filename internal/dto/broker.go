package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ConnectBrokerRequest struct {
	Environment string `json:"environment" binding:"required,oneof=demo live"`
	APIKey      string `json:"api_key" binding:"required"`
	Identifier  string `json:"identifier" binding:"required"`
	APIPassword string `json:"api_password" binding:"required"`
}

type BrokerAccountResponse struct {
	Environment     string     `json:"environment"`
	BrokerAccountID string     `json:"broker_account_id,omitempty"`
	LinkedAt        time.Time  `json:"linked_at"`
	SessionCachedAt *time.Time `json:"session_cached_at,omitempty"`
}

type PlaceOrderRequest struct {
	Environment string          `json:"environment" binding:"required,oneof=demo live"`
	Epic        string          `json:"epic" binding:"required,epic"`
	Direction   string          `json:"direction" binding:"required,oneof=BUY SELL"`
	Size        decimal.Decimal `json:"size" binding:"required"`
}
