package protocol

import (
	"github.com/pkg/errors"
)

var (
	ErrPayloadTooLarge = errors.New("protocol: payload too large")

	ErrPartialHeader       = errors.New("protocol: partial message header")
	ErrMessageTooLarge     = errors.New("protocol: message too large")
	ErrUnexpectedIndicator = errors.New("protocol: unexpected indicator")
	ErrMalformed           = errors.New("protocol: malformed message")
	ErrPartialPayload      = errors.New("protocol: partial message payload")
)

// IsProtocolError reports whether err means the peer broke the framing.
func IsProtocolError(err error) bool {
	for _, e := range []error{ErrPartialHeader, ErrMessageTooLarge,
		ErrUnexpectedIndicator, ErrMalformed, ErrPartialPayload} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
