package lib

// Flag constants
const (
	// RTP flag constants
	SYNFlag  uint16 = 0x01
	ACKFlag  uint16 = 0x02
	FINFlag  uint16 = 0x04
	DATAFlag uint16 = 0x08
	RSTFlag  uint16 = 0x10
)

const (
	HeaderLength = 20   // fixed header, options not supported
	MaxPayload   = 1460 // payload bytes per segment, must match on both peers
	SackBits     = 32   // width of the SACK bitmap; also the advertised window cap
)

// Protocol timers and budgets (milliseconds unless noted).
const (
	HandshakeTimeoutMs     = 800
	DataTimeoutMs          = 500
	MaxHandshakeRetries    = 5
	MaxFinRetries          = 5
	MaxSackRetxPerAck      = 4  // SACK gap retransmits allowed per incoming ACK
	MaxRetransmits         = 15 // per-segment budget before the connection is declared dead
	MaxConsecutiveTimeouts = 10 // receiver idle slices before it assumes the peer is gone
	GlobalTimeoutMs        = 30000
	MinRtoMs               = 20
	MaxRtoMs               = 60000
	PersistBaseMs          = 5000 // first window probe delay
	PersistMaxBackoff      = 12
	RecvSliceMs            = 50 // sender's socket wait per loop iteration
)
