package protocol

import "errors"

var (
	ErrNilEnvelope      = errors.New("protocol: nil envelope")
	ErrInvalidEnvelope  = errors.New("protocol: invalid envelope")
	ErrInvalidTimeStamp = errors.New("protocol: invalid timestamp")
)
