package errs

const (
	ServerInternalError = 500

	BrokerUnavailableCode  = 1001
	MalformedEnvelopeCode  = 1002
	CacheUnavailableCode   = 1003
	ConnectionNotFoundCode = 1004
	ShutdownTimeoutCode    = 1005
	UnauthorizedCode       = 1006
)

var (
	ErrServerInternal     = NewCodeError(ServerInternalError, "server internal error")
	ErrBrokerUnavailable  = NewCodeError(BrokerUnavailableCode, "broker unavailable")
	ErrMalformedEnvelope  = NewCodeError(MalformedEnvelopeCode, "malformed envelope")
	ErrCacheUnavailable   = NewCodeError(CacheUnavailableCode, "cache unavailable")
	ErrConnectionNotFound = NewCodeError(ConnectionNotFoundCode, "connection not found")
	ErrShutdownTimeout    = NewCodeError(ShutdownTimeoutCode, "shutdown timeout")
	ErrUnauthorized       = NewCodeError(UnauthorizedCode, "unauthorized")
)
