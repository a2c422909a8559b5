package lib

import (
	"log"
	"math"
	"net"
	"os"
	"strconv"

	"github.com/Clouded-Sabre/RTP-Go/config"
	"github.com/pkg/errors"
)

// ReliableSender drives one simplex file transfer: active handshake, data
// phase with NewReno congestion control and SACK-assisted retransmission,
// persist probing against a zero peer window, and the FIN close handshake.
// It runs as a single-threaded event loop over one UDP socket; the only
// suspension point is the bounded socket wait in processNetwork.
type ReliableSender struct {
	destIP     string
	destPort   int
	filePath   string
	windowSize uint16
	localPort  int

	handshakeTimeoutMs int64
	dataTimeoutMs      int64

	conn   *net.UDPConn
	remote *net.UDPAddr

	window     *SendWindow
	congestion *CongestionControl
	rto        *RtoEstimator
	stats      *TransferStats

	isn     uint32
	peerIsn uint32
	peerWnd uint16

	zeroWindow        bool
	persistDeadlineMs int64
	persistBackoff    int

	finSent       bool
	finComplete   bool
	finLastSendMs int64
	finRetryCount int

	lastAckMs int64
	fatalErr  error

	fileSize            int64
	bytesAcked          int64
	lastProgressPercent int
	lastProgressMs      int64
	dataTimingRecorded  bool

	rxBuf []byte
	txBuf []byte
}

// NewReliableSender prepares a sender for one transfer. The window size is
// capped to the SACK bitmap width.
func NewReliableSender(destIP string, destPort int, filePath string, windowSize uint16, localPort int, cfg *config.Config) *ReliableSender {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if windowSize > SackBits {
		windowSize = SackBits
	}
	if windowSize == 0 {
		windowSize = 1
	}
	return &ReliableSender{
		destIP:              destIP,
		destPort:            destPort,
		filePath:            filePath,
		windowSize:          windowSize,
		localPort:           localPort,
		handshakeTimeoutMs:  int64(cfg.HandshakeTimeoutMs),
		dataTimeoutMs:       int64(cfg.DataTimeoutMs),
		rto:                 NewRtoEstimator(int64(cfg.MinRtoMs)),
		stats:               NewTransferStats(),
		lastProgressPercent: -1,
		rxBuf:               make([]byte, HeaderLength+MaxPayload+64),
		txBuf:               make([]byte, HeaderLength+MaxPayload),
	}
}

// waitForPacket blocks up to timeoutMs for one well-formed datagram.
// Malformed datagrams are dropped silently, as are socket errors; both look
// like a timeout to the caller.
func (s *ReliableSender) waitForPacket(pkt *Packet, timeoutMs int64) (*net.UDPAddr, bool) {
	if err := s.conn.SetReadDeadline(deadlineFromMs(timeoutMs)); err != nil {
		return nil, false
	}
	n, from, err := s.conn.ReadFromUDP(s.rxBuf)
	if err != nil {
		return nil, false
	}
	if err := pkt.Unmarshal(s.rxBuf[:n]); err != nil {
		return nil, false
	}
	return from, true
}

func (s *ReliableSender) sendRaw(hdr PacketHeader, payload []byte) {
	pkt := Packet{Header: hdr, Payload: payload}
	n, err := pkt.Marshal(s.txBuf)
	if err != nil {
		log.Println("sendRaw marshal error:", err)
		return
	}
	if _, err := s.conn.WriteToUDP(s.txBuf[:n], s.remote); err != nil {
		log.Println("sendRaw write error:", err)
	}
}

// sendRst forces the peer to abandon the connection. Used on handshake
// failure, retransmit budget exhaustion and the global deadline.
func (s *ReliableSender) sendRst() {
	s.sendRaw(PacketHeader{
		Seq:   s.isn + 1,
		Ack:   s.peerIsn + 1,
		Flags: RSTFlag,
	}, nil)
	log.Println("[RST] Sent RST segment to reset connection")
}

// handshake performs the active three-way handshake: SYN, SYN+ACK, ACK.
func (s *ReliableSender) handshake() bool {
	syn := PacketHeader{
		Seq:   s.isn,
		Wnd:   s.windowSize,
		Flags: SYNFlag,
	}

	for attempt := 0; attempt < MaxHandshakeRetries; attempt++ {
		log.Printf("[DEBUG] Sending SYN (attempt %d/%d)\n", attempt+1, MaxHandshakeRetries)
		s.sendRaw(syn, nil)

		var pkt Packet
		from, ok := s.waitForPacket(&pkt, s.handshakeTimeoutMs)
		if !ok {
			continue
		}
		if !sameEndpoint(from, s.remote) {
			log.Println("[DEBUG] Ignoring handshake response from unexpected peer")
			continue
		}
		if pkt.Header.Flags&RSTFlag != 0 {
			log.Println("[RST] Received RST during handshake, connection reset by peer")
			return false
		}
		if pkt.Header.Flags&SYNFlag != 0 && pkt.Header.Flags&ACKFlag != 0 && pkt.Header.Ack == s.isn+1 {
			s.peerIsn = pkt.Header.Seq
			s.peerWnd = pkt.Header.Wnd
			if s.peerWnd > SackBits {
				s.peerWnd = SackBits
			}
			log.Printf("[DEBUG] Received SYN+ACK, peer window size: %d\n", s.peerWnd)
			s.sendRaw(PacketHeader{
				Seq:   s.isn + 1,
				Ack:   s.peerIsn + 1,
				Wnd:   s.windowSize,
				Flags: ACKFlag,
			}, nil)
			log.Println("[DEBUG] Handshake completed successfully")
			return true
		}
	}

	log.Println("[WARN] Handshake failed after retries")
	s.sendRst()
	return false
}

// transmitSegment sends or retransmits the segment at seq. Exceeding the
// per-segment retransmit budget is a fatal connection error.
func (s *ReliableSender) transmitSegment(seq uint32) {
	seg, err := s.window.Segment(seq)
	if err != nil {
		s.fatalErr = err
		return
	}
	isRetransmit := seg.Sent

	if isRetransmit {
		seg.RetransCount++
		seg.IsRetransmitted = true // Karn: never sample RTT from this segment again
		if seg.RetransCount > MaxRetransmits {
			log.Printf("[ERROR] Segment %d exceeded max retransmits (%d), connection lost\n", seq, MaxRetransmits)
			s.sendRst()
			s.fatalErr = errors.Errorf("segment %d retransmitted more than %d times", seq, MaxRetransmits)
			return
		}
	} else {
		seg.FirstSendMs = nowMs()
		seg.IsRetransmitted = false
	}

	s.stats.SetStartTime(nowMs())

	s.sendRaw(PacketHeader{
		Seq:   s.isn + seq,
		Wnd:   s.windowSize,
		Flags: DATAFlag,
	}, seg.Payload())
	seg.Sent = true
	seg.LastSendMs = nowMs()

	if isRetransmit {
		s.stats.RecordRetransmit()
	}
}

func (s *ReliableSender) addAckedBytes(seq uint32) {
	s.bytesAcked += int64(s.window.AckedPayloadLen(seq))
}

func (s *ReliableSender) reportProgress(force bool) {
	if s.fileSize == 0 {
		return
	}
	now := nowMs()
	percent := int(s.bytesAcked * 100 / s.fileSize)
	if percent > 100 {
		percent = 100
	}
	if !force && (percent == s.lastProgressPercent || now-s.lastProgressMs < 500) {
		return
	}
	s.lastProgressMs = now
	s.lastProgressPercent = percent
	log.Printf("Progress: %3d%% (%d/%d bytes)\n", percent, s.bytesAcked, s.fileSize)
}

// handleNewAck advances the window for a cumulative ACK at relative seq ack.
func (s *ReliableSender) handleNewAck(ack uint32) {
	// Karn: sample RTT from the first acked segment that was never
	// retransmitted, then stop
	now := nowMs()
	for i := s.window.BaseSeq(); i < ack && i <= s.window.TotalSegments(); i++ {
		seg := s.window.peek(i)
		if seg != nil && seg.Sent && !seg.Acked && !seg.IsRetransmitted && seg.FirstSendMs > 0 {
			s.rto.AddSample(now - seg.FirstSendMs)
			break
		}
	}

	for i := s.window.BaseSeq(); i < ack && i <= s.window.TotalSegments(); i++ {
		s.addAckedBytes(i)
		s.window.MarkAcked(i)
	}
	s.window.SetBase(ack)

	if s.congestion.OnNewAck(ack, s.window.NextSeq()) {
		// partial ACK: the hole at ack is the next loss, retransmit it now
		if ack <= s.window.TotalSegments() {
			if seg := s.window.peek(ack); seg == nil || !seg.Acked {
				log.Printf("[NewReno] Retransmitting next unacked segment: %d\n", ack)
				s.transmitSegment(ack)
			}
		}
	}
}

func (s *ReliableSender) handleDuplicateAck() {
	s.congestion.OnDuplicateAck()
	if s.congestion.ShouldFastRetransmit() {
		s.congestion.OnFastRetransmit(s.window.NextSeq())
		s.fastRetransmit()
	}
}

func (s *ReliableSender) fastRetransmit() {
	if s.window.BaseSeq() <= s.window.TotalSegments() {
		s.stats.RecordFastRetransmit()
		log.Printf("[RETRANSMIT] Fast retransmit seq=%d\n", s.window.BaseSeq())
		s.transmitSegment(s.window.BaseSeq())
	}
}

// handleSack marks segments acknowledged from the SACK bitmap and
// retransmits up to MaxSackRetxPerAck gap segments, each no more often than
// every dataTimeout/2.
func (s *ReliableSender) handleSack(ack uint32, mask uint32) {
	s.stats.RecordSackMask(mask)

	for i := uint32(0); i < SackBits; i++ {
		if mask&(1<<i) != 0 {
			seq := ack + 1 + i
			s.addAckedBytes(seq)
			s.window.MarkAcked(seq)
		}
	}

	gapRetxCount := 0
	minGapIntervalMs := s.dataTimeoutMs / 2
	now := nowMs()
	for i := uint32(0); i < SackBits; i++ {
		seq := ack + 1 + i
		if seq > s.window.TotalSegments() {
			break
		}
		seg := s.window.peek(seq)
		if seg == nil || !seg.Sent || seg.Acked || mask&(1<<i) != 0 {
			continue
		}
		// sent but neither cumulatively nor selectively acked: a gap
		lastGap := seg.LastSendMs
		if seg.LastSackRetxMs > lastGap {
			lastGap = seg.LastSackRetxMs
		}
		if gapRetxCount < MaxSackRetxPerAck && now >= lastGap+minGapIntervalMs {
			seg.LastSackRetxMs = now
			gapRetxCount++
			log.Printf("[RETRANSMIT] SACK gap seq=%d\n", seq)
			s.transmitSegment(seq)
		}
	}
}

func (s *ReliableSender) handleAck(pkt *Packet) {
	s.lastAckMs = nowMs()

	newPeerWnd := pkt.Header.Wnd
	if newPeerWnd > SackBits {
		newPeerWnd = SackBits
	}
	if newPeerWnd == 0 && !s.zeroWindow {
		s.zeroWindow = true
		s.persistBackoff = 0
		s.persistDeadlineMs = nowMs() + PersistBaseMs
		log.Println("[WINDOW] Peer advertised zero window, starting persist timer")
	} else if newPeerWnd > 0 && s.zeroWindow {
		s.zeroWindow = false
		s.persistBackoff = 0
		log.Printf("[WINDOW] Peer window reopened to %d\n", newPeerWnd)
	}
	s.peerWnd = newPeerWnd

	ackAbs := pkt.Header.Ack
	if isLessOrEqual(ackAbs, s.isn) {
		return
	}
	ack := ackAbs - s.isn
	if ack > s.window.BaseSeq() {
		s.handleNewAck(ack)
	} else if ack == s.window.BaseSeq() && s.window.BaseSeq() <= s.window.TotalSegments() {
		s.handleDuplicateAck()
	}
	// a < base: stale cumulative part, but the SACK mask may still be fresh

	s.handleSack(ack, pkt.Header.SackMask)
	// SACK may have filled the hole at base even when the cumulative part
	// did not move
	s.window.AdvanceBase()
	s.reportProgress(false)
}

// handleTimeouts retransmits every in-flight segment whose RTO expired.
func (s *ReliableSender) handleTimeouts() {
	now := nowMs()
	for i := s.window.BaseSeq(); i <= s.window.TotalSegments(); i++ {
		seg := s.window.peek(i)
		if seg == nil || !seg.Sent || seg.Acked {
			continue
		}
		if now-seg.LastSendMs > s.rto.Rto() {
			s.stats.RecordTimeout()
			log.Printf("[TIMEOUT] Packet seq=%d timed out after %dms (RTO=%dms), retransmitting\n",
				i, now-seg.LastSendMs, s.rto.Rto())
			s.congestion.OnTimeout()
			s.rto.OnTimeout() // Karn: double the RTO
			s.transmitSegment(i)
			if s.fatalErr != nil {
				return
			}
		}
	}
}

// sendWindowProbe sends an empty probe at next so a zero-window peer has
// something to ACK with its current window.
func (s *ReliableSender) sendWindowProbe() {
	s.sendRaw(PacketHeader{
		Seq:   s.isn + s.window.NextSeq(),
		Wnd:   s.windowSize,
		Flags: ACKFlag,
	}, nil)
	log.Printf("[PROBE] Sent window probe seq=%d backoff=%d\n", s.window.NextSeq(), s.persistBackoff)
}

// handleWindowProbe runs the persist timer with exponential backoff
// (5s, 10s, 20s, ... capped at 60s).
func (s *ReliableSender) handleWindowProbe() {
	if !s.zeroWindow {
		return
	}
	now := nowMs()
	if now >= s.persistDeadlineMs {
		s.sendWindowProbe()
		if s.persistBackoff < PersistMaxBackoff {
			s.persistBackoff++
		}
		interval := int64(PersistBaseMs) << s.persistBackoff
		if interval > MaxRtoMs {
			interval = MaxRtoMs
		}
		s.persistDeadlineMs = now + interval
	}
}

// trySendData transmits new segments while the effective window allows.
func (s *ReliableSender) trySendData() {
	if s.peerWnd == 0 {
		return // the persist timer owns a zero window
	}
	windowCap := EffectiveWindow(s.windowSize, s.peerWnd, s.congestion.Cwnd(), SackBits)
	for s.window.NextSeq() <= s.window.TotalSegments() &&
		s.window.NextSeq() < s.window.BaseSeq()+windowCap {
		seg, err := s.window.Segment(s.window.NextSeq())
		if err != nil {
			s.fatalErr = err
			return
		}
		if seg.Sent {
			break
		}
		s.transmitSegment(s.window.NextSeq())
		if s.fatalErr != nil {
			return
		}
		s.window.AdvanceNext()
	}
}

func (s *ReliableSender) finHeader() PacketHeader {
	return PacketHeader{
		Seq:   s.isn + s.window.TotalSegments() + 1,
		Wnd:   s.windowSize,
		Flags: FINFlag,
	}
}

// trySendFin sends FIN once all data is acknowledged and retries it on the
// handshake timeout.
func (s *ReliableSender) trySendFin() {
	if s.finComplete {
		return
	}
	now := nowMs()
	if !s.finSent {
		if !s.window.AllAcked() {
			return
		}
		s.sendRaw(s.finHeader(), nil)
		s.finSent = true
		s.finLastSendMs = now
		s.finRetryCount = 0
		log.Println("[DEBUG] Sent FIN")
		return
	}
	if now-s.finLastSendMs > s.handshakeTimeoutMs && s.finRetryCount < MaxFinRetries {
		s.sendRaw(s.finHeader(), nil)
		s.finLastSendMs = now
		s.finRetryCount++
		log.Printf("[DEBUG] Retrying FIN (attempt %d/%d)\n", s.finRetryCount, MaxFinRetries)
	}
}

func (s *ReliableSender) handleFinAck() {
	s.sendRaw(PacketHeader{
		Seq:   s.peerIsn + 1,
		Ack:   s.isn + s.window.TotalSegments() + 2,
		Wnd:   s.windowSize,
		Flags: ACKFlag,
	}, nil)
	s.finComplete = true
	log.Println("[DEBUG] Received FIN+ACK, sent final ACK, connection closed")
}

// processNetwork drains at most one packet within the 50 ms slice.
func (s *ReliableSender) processNetwork() {
	var pkt Packet
	from, ok := s.waitForPacket(&pkt, RecvSliceMs)
	if !ok {
		return
	}
	if !sameEndpoint(from, s.remote) {
		return
	}
	if pkt.Header.Flags&RSTFlag != 0 {
		log.Println("[RST] Connection reset by peer")
		s.fatalErr = errors.New("connection reset by peer")
		return
	}
	if pkt.Header.Flags&FINFlag != 0 && pkt.Header.Flags&ACKFlag != 0 {
		s.handleFinAck()
		return
	}
	if pkt.Header.Flags&ACKFlag != 0 {
		s.handleAck(&pkt)
	}
}

// Run executes the transfer and blocks until it completes or fails.
// The exit status is 0 on success (including a close handshake that did not
// complete cleanly after the data was delivered) and 1 on failure.
func (s *ReliableSender) Run() int {
	remote, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(s.destIP, strconv.Itoa(s.destPort)))
	if err != nil {
		log.Println("[ERROR] Invalid receiver address:", err)
		return 1
	}
	s.remote = remote

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.localPort})
	if err != nil {
		log.Println("[ERROR] Failed to bind local port:", errors.Wrap(err, "listen udp"))
		return 1
	}
	s.conn = conn
	defer s.conn.Close()
	local := s.conn.LocalAddr().(*net.UDPAddr)
	log.Printf("[DEBUG] Bound to local port %d\n", local.Port)

	localIP := local.IP
	if localIP == nil || localIP.To4() == nil {
		localIP = net.IPv4zero
	}
	s.isn = GenerateISN(localIP, local.Port, s.remote.IP, s.remote.Port)

	if !s.handshake() {
		log.Println("[ERROR] Handshake failed")
		return 1
	}

	file, err := os.Open(s.filePath)
	if err != nil {
		log.Println("[ERROR] Cannot open input file:", errors.Wrap(err, "open input"))
		return 1
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		log.Println("[ERROR] Cannot stat input file:", err)
		return 1
	}
	s.fileSize = info.Size()
	s.lastProgressMs = nowMs()

	log.Printf("[DEBUG] File size: %d bytes\n", s.fileSize)
	s.window = NewSendWindow(file, s.fileSize)
	log.Printf("[DEBUG] Total segments: %d\n", s.window.TotalSegments())

	if s.peerWnd == 0 {
		s.peerWnd = s.windowSize
	}
	s.congestion = NewCongestionControl(math.Max(2.0, float64(s.peerWnd)))
	log.Printf("[DEBUG] Starting transmission - Window: %d, Initial cwnd: %.2f, ssthresh: %.2f\n",
		s.windowSize, s.congestion.Cwnd(), s.congestion.Ssthresh())

	s.lastAckMs = nowMs()

	for !s.finComplete {
		if nowMs()-s.lastAckMs > GlobalTimeoutMs {
			log.Printf("[TIMEOUT] No ACK received for %ds, connection lost\n", GlobalTimeoutMs/1000)
			s.sendRst()
			return 1
		}

		s.trySendData()
		s.processNetwork()
		s.handleTimeouts()
		s.handleWindowProbe()

		if s.fatalErr != nil {
			log.Println("[ERROR]", s.fatalErr)
			return 1
		}

		if !s.dataTimingRecorded && s.window.AllAcked() {
			s.stats.SetEndTime(nowMs())
			s.dataTimingRecorded = true
		}

		s.trySendFin()

		if s.finSent && !s.finComplete && s.finRetryCount >= MaxFinRetries {
			log.Println("[WARN] FIN handshake failed after retries")
			break
		}
	}

	if !s.dataTimingRecorded {
		s.stats.SetStartTime(nowMs())
		s.stats.SetEndTime(nowMs())
	}

	s.reportProgress(true)
	s.stats.LogSenderSummary(s.fileSize, s.window.TotalSegments(), s.congestion.Cwnd(), s.congestion.Ssthresh())

	if !s.finComplete {
		// data was delivered and acknowledged; an unconfirmed close is not
		// a transfer failure
		log.Println("[WARN] FIN handshake did not complete cleanly")
	}
	return 0
}
