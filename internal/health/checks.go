package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/peridot-guide/internal/live"
)

// ErrNoAPIKey is reported by [APIKey] when no key is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// APIKey fails while key is empty. Without a key every model request is
// rejected upstream.
func APIKey(key string) Checker {
	return Checker{
		Name: "api_key",
		Check: func(context.Context) error {
			if key == "" {
				return ErrNoAPIKey
			}
			return nil
		},
	}
}

// Session fails while the live session reported by status is anything but
// connected.
func Session(status func() live.Status) Checker {
	return Checker{
		Name: "session",
		Check: func(context.Context) error {
			if st := status(); st != live.StatusConnected {
				return fmt.Errorf("session is %s", st)
			}
			return nil
		},
	}
}
