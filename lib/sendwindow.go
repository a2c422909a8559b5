package lib

import (
	"io"
	"math"
	"os"

	rp "github.com/Clouded-Sabre/ringpool/lib"
	"github.com/pkg/errors"
)

// SegmentState tracks one in-flight segment of the transfer. The payload
// lives in a pool chunk that is materialized on first access and returned
// as soon as the segment is acknowledged.
type SegmentState struct {
	chunk           *rp.Element
	payloadLen      int
	Sent            bool
	Acked           bool
	LastSendMs      int64
	LastSackRetxMs  int64
	FirstSendMs     int64 // first transmission timestamp, for RTT sampling
	RetransCount    int
	IsRetransmitted bool // Karn flag: RTT is never sampled from this segment
}

// Payload returns the segment's byte slice, nil once the segment is acked.
func (s *SegmentState) Payload() []byte {
	if s.chunk == nil {
		return nil
	}
	return s.chunk.Data.(*Payload).GetSlice()
}

// SendWindow is the sender-side sliding window over the input file.
// Segments are stored sparsely; state below the base is erased as the
// window advances. Invariant: 1 <= base <= next <= total+1.
type SendWindow struct {
	file          *os.File
	fileSize      int64
	totalSegments uint32
	baseSeq       uint32 // smallest unacknowledged segment
	nextSeq       uint32 // smallest never-sent segment
	segments      map[uint32]*SegmentState
}

// NewSendWindow slices the file into ceil(size/MaxPayload) segments.
func NewSendWindow(file *os.File, fileSize int64) *SendWindow {
	return &SendWindow{
		file:          file,
		fileSize:      fileSize,
		totalSegments: uint32((fileSize + MaxPayload - 1) / MaxPayload),
		baseSeq:       1,
		nextSeq:       1,
		segments:      make(map[uint32]*SegmentState),
	}
}

func (w *SendWindow) TotalSegments() uint32 { return w.totalSegments }
func (w *SendWindow) BaseSeq() uint32       { return w.baseSeq }
func (w *SendWindow) NextSeq() uint32       { return w.nextSeq }

// Segment lazily materializes segment state for index seq in [1, total].
// The payload is loaded from the file region on first access.
func (w *SendWindow) Segment(seq uint32) (*SegmentState, error) {
	if seq == 0 || seq > w.totalSegments {
		return nil, errors.Errorf("segment index %d out of range [1, %d]", seq, w.totalSegments)
	}
	if seg, ok := w.segments[seq]; ok {
		return seg, nil
	}

	seg := &SegmentState{}
	if err := w.loadPayload(seq, seg); err != nil {
		return nil, err
	}
	w.segments[seq] = seg
	return seg, nil
}

func (w *SendWindow) loadPayload(seq uint32, seg *SegmentState) error {
	start := int64(seq-1) * MaxPayload
	length := w.fileSize - start
	if length > MaxPayload {
		length = MaxPayload
	}

	seg.chunk = Pool.GetElement()
	if seg.chunk == nil {
		return errors.New("payload pool exhausted")
	}
	payload := seg.chunk.Data.(*Payload)
	buf := payload.payloadBytes[:length]
	if _, err := io.ReadFull(io.NewSectionReader(w.file, start, length), buf); err != nil {
		Pool.ReturnElement(seg.chunk)
		seg.chunk = nil
		return errors.Wrapf(err, "reading file region for segment %d", seq)
	}
	payload.length = int(length)
	seg.payloadLen = int(length)
	return nil
}

// peek returns existing state without materializing a payload.
func (w *SendWindow) peek(seq uint32) *SegmentState {
	return w.segments[seq]
}

// MarkAcked marks a segment acknowledged and releases its payload chunk.
// Idempotent; out-of-range indices are ignored.
func (w *SendWindow) MarkAcked(seq uint32) {
	if seq == 0 || seq > w.totalSegments {
		return
	}
	seg, ok := w.segments[seq]
	if !ok {
		// never materialized (SACK for a segment acked before its first
		// send can not happen, but a stray mask bit must not allocate)
		seg = &SegmentState{}
		w.segments[seq] = seg
	}
	if !seg.Acked {
		seg.Acked = true
		seg.LastSackRetxMs = 0
		if seg.chunk != nil {
			Pool.ReturnElement(seg.chunk)
			seg.chunk = nil
		}
	}
}

// AckedPayloadLen reports the payload size of seq if it is newly
// acknowledgeable, for byte accounting before MarkAcked.
func (w *SendWindow) AckedPayloadLen(seq uint32) int {
	seg := w.peek(seq)
	if seg == nil || seg.Acked {
		return 0
	}
	return seg.payloadLen
}

// AdvanceBase slides the left edge over acknowledged segments.
func (w *SendWindow) AdvanceBase() {
	for w.baseSeq <= w.totalSegments {
		seg, ok := w.segments[w.baseSeq]
		if !ok || !seg.Acked {
			break
		}
		delete(w.segments, w.baseSeq)
		w.baseSeq++
	}
}

// SetBase advances the left edge to seq, erasing all state below it.
func (w *SendWindow) SetBase(seq uint32) {
	if seq <= w.baseSeq {
		return
	}
	for s := w.baseSeq; s < seq; s++ {
		w.MarkAcked(s)
		delete(w.segments, s)
	}
	w.baseSeq = seq
	if w.nextSeq < w.baseSeq {
		w.nextSeq = w.baseSeq
	}
}

// AdvanceNext moves the right edge of the transmitted region.
func (w *SendWindow) AdvanceNext() {
	w.nextSeq++
}

// AllAcked reports whether every segment has been acknowledged.
func (w *SendWindow) AllAcked() bool {
	return w.baseSeq > w.totalSegments
}

// Inflight counts sent-but-unacknowledged segments.
func (w *SendWindow) Inflight() uint32 {
	if w.nextSeq >= w.baseSeq {
		return w.nextSeq - w.baseSeq
	}
	return 0
}

// EffectiveWindow caps the usable window by the local and peer advertised
// windows, the congestion window, and the SACK bitmap width.
func EffectiveWindow(localWnd, peerWnd uint16, cwnd float64, sackBits uint32) uint32 {
	windowCap := uint32(localWnd)
	if uint32(peerWnd) < windowCap {
		windowCap = uint32(peerWnd)
	}
	if c := uint32(math.Floor(cwnd)); c < windowCap {
		windowCap = c
	}
	if sackBits < windowCap {
		windowCap = sackBits
	}
	return windowCap
}
