package governance

import "errors"

var ErrInvalidAgentID = errors.New("governance: agent id required")
