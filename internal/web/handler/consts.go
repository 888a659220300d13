package handler

const (
	// APIRoot is the base path of the JSON API.
	APIRoot = "/api"

	// PublicRoot is the base path of the unauthenticated JSON API.
	PublicRoot = APIRoot + "/public"

	// ErrNilACDFatalLogMsg is used if app or cfg or db var pointer is nil.
	ErrNilACDFatalLogMsg = "app, cfg or db is nil"
)
