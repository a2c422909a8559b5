package lib

import (
	"io"

	rp "github.com/Clouded-Sabre/ringpool/lib"
	"github.com/google/btree"
)

// AdmitResult classifies one data segment presented to the receive buffer.
type AdmitResult int

const (
	AdmitAcceptedNew AdmitResult = iota
	AdmitDuplicate
	AdmitOutOfWindow
)

// bufferedSegment is one out-of-order payload held until the prefix below
// it is complete. Ordered by relative segment index.
type bufferedSegment struct {
	seq   uint32
	chunk *rp.Element
}

func (s *bufferedSegment) Less(than btree.Item) bool {
	return s.seq < than.(*bufferedSegment).seq
}

// ReceiveBuffer reassembles the receiver's byte stream. Keys are relative
// segment indices; expectedSeq is the smallest index not yet delivered.
// Invariant: no entry with key < expectedSeq.
type ReceiveBuffer struct {
	tree        *btree.BTree
	expectedSeq uint32
	windowSize  uint16
}

func NewReceiveBuffer(windowSize uint16) *ReceiveBuffer {
	return &ReceiveBuffer{
		tree:        btree.New(8),
		expectedSeq: 1,
		windowSize:  windowSize,
	}
}

func (b *ReceiveBuffer) ExpectedSeq() uint32 { return b.expectedSeq }
func (b *ReceiveBuffer) Buffered() int       { return b.tree.Len() }

// IsInWindow reports whether seq falls inside the receive window.
func (b *ReceiveBuffer) IsInWindow(seq uint32) bool {
	return seq >= b.expectedSeq && seq < b.expectedSeq+uint32(b.windowSize)
}

// Admit stores one data segment. The payload is copied into a pool chunk;
// the caller's slice may be reused immediately. An ACK must be sent in
// every case, whatever the result.
func (b *ReceiveBuffer) Admit(seq uint32, payload []byte) AdmitResult {
	if seq < b.expectedSeq {
		return AdmitDuplicate // already delivered
	}
	if !b.IsInWindow(seq) {
		return AdmitOutOfWindow
	}
	if b.tree.Has(&bufferedSegment{seq: seq}) {
		return AdmitDuplicate
	}

	chunk := Pool.GetElement()
	if chunk == nil {
		// pool exhaustion behaves like a dropped datagram; the sender will
		// retransmit the segment
		return AdmitOutOfWindow
	}
	if err := chunk.Data.(*Payload).Copy(payload); err != nil {
		Pool.ReturnElement(chunk)
		return AdmitOutOfWindow
	}
	b.tree.ReplaceOrInsert(&bufferedSegment{seq: seq, chunk: chunk})
	return AdmitAcceptedNew
}

// DrainPrefix writes the longest in-order prefix to out, advancing
// expectedSeq past every delivered segment, and returns the bytes written.
func (b *ReceiveBuffer) DrainPrefix(out io.Writer) (int64, error) {
	var written int64
	for {
		item := b.tree.Get(&bufferedSegment{seq: b.expectedSeq})
		if item == nil {
			return written, nil
		}
		seg := item.(*bufferedSegment)
		n, err := out.Write(seg.chunk.Data.(*Payload).GetSlice())
		written += int64(n)
		b.tree.Delete(seg)
		Pool.ReturnElement(seg.chunk)
		if err != nil {
			return written, err
		}
		b.expectedSeq++
	}
}

// SackMask builds the 32-bit bitmap advertised with every ACK: bit i is set
// iff segment expectedSeq+1+i is buffered.
func (b *ReceiveBuffer) SackMask() uint32 {
	var mask uint32
	low := b.expectedSeq + 1
	b.tree.AscendGreaterOrEqual(&bufferedSegment{seq: low}, func(item btree.Item) bool {
		seq := item.(*bufferedSegment).seq
		if seq >= low+SackBits {
			return false
		}
		mask |= 1 << (seq - low)
		return true
	})
	return mask
}
