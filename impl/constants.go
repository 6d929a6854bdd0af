package impl

import "time"

const (
	// MaxPacketSize bounds one framed message on the wire.
	MaxPacketSize = 256
	// MemQueueSize is the receive buffer of an in-memory endpoint.
	MemQueueSize = 4096
	HelloTimeout = time.Second * 5
	fieldKey     = 1
	fieldValue   = 2
	fieldSession = 1
	fieldIndex   = 2
)
