// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the chain gateway and media service clients.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
