package broker

import "github.com/shopspring/decimal"

// SessionTokens are the two header values that authenticate every
// broker API call after session creation.
type SessionTokens struct {
	CST           string `json:"cst"`
	SecurityToken string `json:"securityToken"`
}

// SessionDetails is what the broker returns alongside the token headers
// when a session is created.
type SessionDetails struct {
	AccountID   string `json:"currentAccountId"`
	ClientID    string `json:"clientId"`
	Currency    string `json:"currency"`
	StreamHost  string `json:"streamingHost"`
	AccountType string `json:"accountType"`
}

type Account struct {
	AccountID   string         `json:"accountId"`
	AccountName string         `json:"accountName"`
	AccountType string         `json:"accountType"`
	Currency    string         `json:"currency"`
	Preferred   bool           `json:"preferred"`
	Balance     AccountBalance `json:"balance"`
}

type AccountBalance struct {
	Balance    decimal.Decimal `json:"balance"`
	Deposit    decimal.Decimal `json:"deposit"`
	ProfitLoss decimal.Decimal `json:"profitLoss"`
	Available  decimal.Decimal `json:"available"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type Position struct {
	Contract PositionContract `json:"position"`
	Market   MarketSnapshot   `json:"market"`
}

type PositionContract struct {
	DealID         string          `json:"dealId"`
	Direction      string          `json:"direction"`
	Size           decimal.Decimal `json:"size"`
	Level          decimal.Decimal `json:"level"`
	Currency       string          `json:"currency"`
	CreatedDate    string          `json:"createdDate"`
	UPL            decimal.Decimal `json:"upl"`
	GuaranteedStop bool            `json:"guaranteedStop"`
}

type MarketSnapshot struct {
	Epic           string          `json:"epic"`
	InstrumentName string          `json:"instrumentName"`
	InstrumentType string          `json:"instrumentType"`
	MarketStatus   string          `json:"marketStatus"`
	Bid            decimal.Decimal `json:"bid"`
	Offer          decimal.Decimal `json:"offer"`
	NetChange      decimal.Decimal `json:"netChange"`
	PercentChange  decimal.Decimal `json:"percentageChange"`
	UpdateTime     string          `json:"updateTime"`
}

type positionsResponse struct {
	Positions []Position `json:"positions"`
}

type Activity struct {
	Date        string          `json:"date"`
	Epic        string          `json:"epic"`
	DealID      string          `json:"dealId"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Direction   string          `json:"direction,omitempty"`
	Size        decimal.Decimal `json:"size,omitempty"`
	Level       decimal.Decimal `json:"level,omitempty"`
	Description string          `json:"description,omitempty"`
}

type activityResponse struct {
	Activities []Activity `json:"activities"`
}

type marketsResponse struct {
	MarketDetails []struct {
		Instrument struct {
			Epic string `json:"epic"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"instrument"`
		Snapshot struct {
			MarketStatus  string          `json:"marketStatus"`
			Bid           decimal.Decimal `json:"bid"`
			Offer         decimal.Decimal `json:"offer"`
			NetChange     decimal.Decimal `json:"netChange"`
			PercentChange decimal.Decimal `json:"percentageChange"`
			UpdateTime    string          `json:"updateTime"`
		} `json:"snapshot"`
	} `json:"marketDetails"`
}

// OrderTicket is a market order to open a position.
type OrderTicket struct {
	Epic      string
	Direction string // BUY or SELL
	Size      decimal.Decimal
}

type orderRequest struct {
	Epic           string          `json:"epic"`
	Direction      string          `json:"direction"`
	Size           decimal.Decimal `json:"size"`
	OrderType      string          `json:"orderType"`
	ForceOpen      bool            `json:"forceOpen"`
	GuaranteedStop bool            `json:"guaranteedStop"`
}

// OrderConfirmation is the broker's acknowledgement of an order.
type OrderConfirmation struct {
	DealReference string `json:"dealReference"`
}
