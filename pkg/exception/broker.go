package exception

import "github.com/yanun0323/errors"

var (
	ErrBrokerAuthorization     = errors.New("broker: authorization failure")
	ErrBrokerNetwork           = errors.New("broker: network failure")
	ErrBrokerMalformedResponse = errors.New("broker: malformed response")
	ErrBrokerTokenRevoked      = errors.New("broker: token revoked")
)
