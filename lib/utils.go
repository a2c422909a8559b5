package lib

import (
	"math"
	"net"
	"time"
)

// nowMs returns the current wall clock in milliseconds. All protocol timers
// are polled against this value.
func nowMs() int64 {
	return time.Now().UnixMilli()
}

// deadlineFromMs converts a relative millisecond timeout to an absolute
// read deadline.
func deadlineFromMs(ms int64) time.Time {
	return time.Now().Add(time.Duration(ms) * time.Millisecond)
}

// sameEndpoint pins traffic to the peer recorded at handshake; datagrams
// from any other source are dropped.
func sameEndpoint(a, b *net.UDPAddr) bool {
	return a != nil && b != nil && a.Port == b.Port && a.IP.Equal(b.IP)
}

// SEQ compare function with SEQ wraparound in mind
func isGreater(seq1, seq2 uint32) bool {
	if seq1 == seq2 {
		return false
	}
	// Calculate direct difference
	var diff, wrapdiff, distance int64
	diff = int64(seq1) - int64(seq2)
	if diff < 0 {
		diff = -diff
	}
	wrapdiff = int64(math.MaxUint32 + 1 - diff)

	// Choose the shorter distance
	if diff < wrapdiff {
		distance = diff
	} else {
		distance = wrapdiff
	}

	// Check if the first sequence number is "greater"
	return (distance+int64(seq2))%(math.MaxUint32+1) == int64(seq1)
}

func isGreaterOrEqual(seq1, seq2 uint32) bool {
	return isGreater(seq1, seq2) || (seq1 == seq2)
}

func isLess(seq1, seq2 uint32) bool {
	return !isGreaterOrEqual(seq1, seq2)
}

func isLessOrEqual(seq1, seq2 uint32) bool {
	return !isGreater(seq1, seq2)
}
