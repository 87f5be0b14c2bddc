package tele

import (
	"context"

	"github.com/kjh948/plen3/log2"
)

// Transporter delivers payloads with broker acknowledgement or reports false.
// Init must not fail on network errors, the application starts offline.
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, c Config, device string, willPayload []byte) error
	SendState(payload []byte) bool
	SendError(payload []byte) bool
	Close()
}
