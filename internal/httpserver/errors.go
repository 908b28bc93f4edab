package httpserver

const (
	ErrBadForm          = "bad form"
	ErrInvalidJSON      = "invalid json"
	ErrInvalidSignature = "invalid signature"
	ErrVerifyFailed     = "verification failed"
	ErrNotFound         = "not found"
	ErrDependency       = "dependency error"
)
