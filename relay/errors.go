package relay

import (
	"errors"

	"github.com/mahfuzr/reposter/relay/internal/publish"
	"github.com/mahfuzr/reposter/relay/internal/queue"
)

// ErrNotFound is returned when a link or keyword identifier matches nothing.
var ErrNotFound = queue.ErrNotFound

// ErrMissingCredentials is returned when Facebook credentials are absent.
var ErrMissingCredentials = publish.ErrMissingCredentials

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("relay: invalid input")
