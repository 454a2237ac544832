package trust

import "errors"

var (
	ErrInvalidAgentID   = errors.New("trust: agent id required")
	ErrInvalidTrustLevel = errors.New("trust: level out of range [0,5]")
)
