package consent

import "errors"

var (
	ErrInvalidAgentID   = errors.New("consent: agent id required")
	ErrInvalidDataType  = errors.New("consent: data type required")
	ErrInvalidGrantedBy = errors.New("consent: granted_by required")
)
