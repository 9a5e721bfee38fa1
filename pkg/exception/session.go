package exception

import "errors"

var (
	ErrSessionExpired    = errors.New("session: expired")
	ErrNoStoredSession   = errors.New("session: no stored record")
	ErrAutoLoginDisabled = errors.New("session: automated login disabled and no cached token")
)
