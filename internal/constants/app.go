package constants

// Trading environments. Demo and live are distinct broker hostnames,
// never a query parameter.
const (
	EnvDemo = "demo"
	EnvLive = "live"
)

// Cookie names and paths for the user session chain. The refresh cookie
// is scoped to the refresh endpoint only to limit its blast radius.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	RefreshCookiePath  = "/api/v1/auth/refresh"
)

// Audit log actions.
const (
	ActionRegister        = "REGISTER"
	ActionLogin           = "LOGIN"
	ActionLoginFailed     = "LOGIN_FAILED"
	ActionRefreshToken    = "REFRESH_TOKEN"
	ActionTokenReuse      = "REFRESH_TOKEN_REUSE"
	ActionLogout          = "LOGOUT"
	ActionPasswordChanged = "PASSWORD_CHANGED"
	ActionBrokerConnect   = "BROKER_CONNECT"
	ActionBrokerConnFail  = "BROKER_CONNECT_FAILED"
	ActionOrderPlaced     = "ORDER_PLACED"
)

// System setting keys.
const (
	SettingDefaultEpics = "default_epics"
)

// DefaultEpics is the quote watchlist used when a markets request carries
// no explicit epics parameter.
var DefaultEpics = []string{
	"IX.D.GOLD.IFM.IP",
	"IX.D.WTI.IFM.IP",
	"EU.D.EURUSD.CASH.IP",
	"BT.D.BTCUSD.CASH.IP",
}

func ValidEnvironment(env string) bool {
	return env == EnvDemo || env == EnvLive
}
