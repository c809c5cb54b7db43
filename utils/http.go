package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound integrations (sync service, Twilio).
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
