package lib

import (
	"log"
	"math"
)

// CongestionControl implements NewReno over segment-granularity windows.
// cwnd and ssthresh are kept as reals; the sender floors cwnd when sizing
// its window.
type CongestionControl struct {
	cwnd           float64
	ssthresh       float64
	dupAckCount    int
	inFastRecovery bool
	recoverSeq     uint32 // next at the moment fast recovery entered
}

func NewCongestionControl(initialSsthresh float64) *CongestionControl {
	return &CongestionControl{
		cwnd:     1.0,
		ssthresh: initialSsthresh,
	}
}

// OnNewAck processes a cumulative ACK that advances the window. It returns
// true when the ACK is a partial ACK inside fast recovery, in which case the
// caller must retransmit the segment at ackSeq immediately.
func (c *CongestionControl) OnNewAck(ackSeq, nextSeq uint32) bool {
	c.dupAckCount = 0
	isPartialAck := false

	// NewReno: inside fast recovery a new ACK is either partial or full
	if c.inFastRecovery {
		if ackSeq < c.recoverSeq {
			// partial ACK: more loss beyond the hole that was just filled;
			// deflate by the one segment that left the network and stay in FR
			c.cwnd = math.Max(c.cwnd-1.0, c.ssthresh)
			isPartialAck = true
			log.Printf("[NewReno] Partial ACK (ack=%d, recover=%d), cwnd=%.2f\n", ackSeq, c.recoverSeq, c.cwnd)
		} else {
			c.cwnd = c.ssthresh
			c.inFastRecovery = false
			log.Printf("[NewReno] Full ACK, exiting fast recovery (cwnd=%.2f)\n", c.cwnd)
		}
	}

	if !c.inFastRecovery {
		if c.cwnd < c.ssthresh {
			// slow start: one segment per ACK
			c.cwnd += 1.0
		} else {
			// congestion avoidance: one segment per RTT
			c.cwnd += 1.0 / c.cwnd
		}
	}

	return isPartialAck
}

// OnDuplicateAck counts a duplicate ACK. Window inflation is gated by fast
// recovery: each duplicate then stands for a packet that left the network.
func (c *CongestionControl) OnDuplicateAck() {
	c.dupAckCount++
	if c.inFastRecovery {
		c.cwnd += 1.0
	}
}

// ShouldFastRetransmit reports whether the third duplicate ACK just arrived.
func (c *CongestionControl) ShouldFastRetransmit() bool {
	return c.dupAckCount == 3 && !c.inFastRecovery
}

// OnFastRetransmit enters fast recovery and records the NewReno high-water.
func (c *CongestionControl) OnFastRetransmit(nextSeq uint32) {
	log.Printf("[LOSS] 3 duplicate ACKs, fast retransmit (cwnd: %.2f -> %.2f)\n", c.cwnd, math.Max(2.0, c.cwnd/2.0)+3.0)
	c.ssthresh = math.Max(2.0, c.cwnd/2.0)
	c.cwnd = c.ssthresh + 3.0
	c.inFastRecovery = true
	c.recoverSeq = nextSeq
}

// OnTimeout collapses the window back to slow start.
func (c *CongestionControl) OnTimeout() {
	log.Printf("[TIMEOUT] Congestion control timeout (cwnd: %.2f -> 1.0, ssthresh: %.2f -> %.2f)\n",
		c.cwnd, c.ssthresh, math.Max(2.0, c.cwnd/2.0))
	c.ssthresh = math.Max(2.0, c.cwnd/2.0)
	c.cwnd = 1.0
	c.dupAckCount = 0
	c.inFastRecovery = false
	c.recoverSeq = 0
}

func (c *CongestionControl) Cwnd() float64        { return c.cwnd }
func (c *CongestionControl) Ssthresh() float64    { return c.ssthresh }
func (c *CongestionControl) InFastRecovery() bool { return c.inFastRecovery }
func (c *CongestionControl) RecoverSeq() uint32   { return c.recoverSeq }
func (c *CongestionControl) DupAckCount() int     { return c.dupAckCount }
