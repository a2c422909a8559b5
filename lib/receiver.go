package lib

import (
	"bufio"
	"log"
	"net"
	"os"

	"github.com/Clouded-Sabre/RTP-Go/config"
	"github.com/pkg/errors"
)

// ReliableReceiver accepts one simplex transfer: passive handshake, data
// admission with out-of-order buffering, cumulative-ACK+SACK emission on
// every data segment, and the FIN close. Like the sender it is a
// single-threaded event loop over one UDP socket.
type ReliableReceiver struct {
	outputPath string
	windowSize uint16

	handshakeTimeoutMs int64
	dataTimeoutMs      int64

	conn   *net.UDPConn
	client *net.UDPAddr

	buffer *ReceiveBuffer
	stats  *TransferStats

	isn     uint32
	peerIsn uint32

	// a DATA segment that completed the handshake implicitly; processed
	// first in the main loop
	pending *Packet

	bytesWritten int64

	rxBuf []byte
	txBuf []byte
}

// NewReliableReceiver binds the listening socket immediately so callers can
// discover the port (listenPort 0 picks an ephemeral one).
func NewReliableReceiver(listenPort int, outputPath string, windowSize uint16, cfg *config.Config) (*ReliableReceiver, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if windowSize > SackBits {
		windowSize = SackBits
	}
	if windowSize == 0 {
		windowSize = 1
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: listenPort})
	if err != nil {
		return nil, errors.Wrapf(err, "binding listen port %d", listenPort)
	}

	return &ReliableReceiver{
		outputPath:         outputPath,
		windowSize:         windowSize,
		handshakeTimeoutMs: int64(cfg.HandshakeTimeoutMs),
		dataTimeoutMs:      int64(cfg.DataTimeoutMs),
		conn:               conn,
		stats:              NewTransferStats(),
		rxBuf:              make([]byte, HeaderLength+MaxPayload+64),
		txBuf:              make([]byte, HeaderLength+MaxPayload),
	}, nil
}

// LocalPort reports the bound UDP port.
func (r *ReliableReceiver) LocalPort() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

func (r *ReliableReceiver) waitForPacket(pkt *Packet, timeoutMs int64) (*net.UDPAddr, bool) {
	if timeoutMs < 0 {
		// wait "indefinitely" in bounded slices so the loop stays pollable
		timeoutMs = int64(1000)
	}
	if err := r.conn.SetReadDeadline(deadlineFromMs(timeoutMs)); err != nil {
		return nil, false
	}
	n, from, err := r.conn.ReadFromUDP(r.rxBuf)
	if err != nil {
		return nil, false
	}
	if err := pkt.Unmarshal(r.rxBuf[:n]); err != nil {
		return nil, false
	}
	return from, true
}

func (r *ReliableReceiver) sendRaw(hdr PacketHeader, payload []byte) {
	pkt := Packet{Header: hdr, Payload: payload}
	n, err := pkt.Marshal(r.txBuf)
	if err != nil {
		log.Println("sendRaw marshal error:", err)
		return
	}
	if _, err := r.conn.WriteToUDP(r.txBuf[:n], r.client); err != nil {
		log.Println("sendRaw write error:", err)
	}
}

// sendAck emits the data-phase cumulative ACK with the SACK mask, or the
// FIN+ACK during close.
func (r *ReliableReceiver) sendAck(fin bool, finAck uint32) {
	hdr := PacketHeader{
		Seq:   r.isn + 1,
		Wnd:   r.windowSize,
		Flags: ACKFlag,
	}
	if fin {
		hdr.Ack = finAck
		hdr.Flags |= FINFlag
	} else {
		hdr.Ack = r.peerIsn + r.buffer.ExpectedSeq()
		hdr.SackMask = r.buffer.SackMask()
	}
	r.sendRaw(hdr, nil)
}

// doHandshake waits for a SYN and completes the passive side of the
// three-way handshake. A DATA segment from the new peer counts as an
// implicit ACK. Returns false only on RST.
func (r *ReliableReceiver) doHandshake() bool {
	log.Printf("Waiting for SYN on port %d...\n", r.LocalPort())
	for {
		var pkt Packet
		from, ok := r.waitForPacket(&pkt, -1)
		if !ok {
			continue
		}
		if pkt.Header.Flags&SYNFlag == 0 {
			continue
		}

		r.client = from
		r.peerIsn = pkt.Header.Seq
		local := r.conn.LocalAddr().(*net.UDPAddr)
		localIP := local.IP
		if localIP == nil || localIP.To4() == nil {
			localIP = net.IPv4zero
		}
		r.isn = GenerateISN(localIP, local.Port, from.IP, from.Port)
		log.Printf("[DEBUG] Received SYN from %s\n", from)

		synAck := PacketHeader{
			Seq:   r.isn,
			Ack:   r.peerIsn + 1,
			Wnd:   r.windowSize,
			Flags: SYNFlag | ACKFlag,
		}

		for attempt := 0; attempt < MaxHandshakeRetries; attempt++ {
			r.sendRaw(synAck, nil)
			log.Printf("[DEBUG] Sent SYN+ACK (attempt %d/%d)\n", attempt+1, MaxHandshakeRetries)

			var confirm Packet
			confirmFrom, ok := r.waitForPacket(&confirm, r.handshakeTimeoutMs)
			if !ok || !sameEndpoint(confirmFrom, r.client) {
				continue
			}
			if confirm.Header.Flags&RSTFlag != 0 {
				log.Println("[RST] Received RST during handshake")
				return false
			}
			if confirm.Header.Flags&(DATAFlag|FINFlag) != 0 {
				// the transfer is already under way: the handshake ACK was
				// implicit (a FIN right away means an empty input file)
				copied := confirm
				copied.Payload = append([]byte(nil), confirm.Payload...)
				r.pending = &copied
				log.Println("[DEBUG] Received in-flight segment, handshake completed implicitly")
				return true
			}
			if confirm.Header.Flags&ACKFlag != 0 && confirm.Header.Ack == r.isn+1 {
				log.Println("[DEBUG] Received ACK, handshake completed")
				return true
			}
		}

		log.Println("[WARN] Handshake ACK not received, waiting for new SYN")
	}
}

// handleData admits one DATA segment, drains the in-order prefix to the
// output file, and always answers with a cumulative ACK + SACK mask.
func (r *ReliableReceiver) handleData(pkt *Packet, out *bufio.Writer) error {
	r.stats.RecordReceived()

	if isLessOrEqual(pkt.Header.Seq, r.peerIsn) {
		// below the ISN: not a valid data index, but still answer
		r.sendAck(false, 0)
		return nil
	}
	seq := pkt.Header.Seq - r.peerIsn

	switch r.buffer.Admit(seq, pkt.Payload) {
	case AdmitDuplicate:
		r.stats.RecordDuplicate()
		log.Printf("[DUP] Duplicate packet seq=%d (expected: %d)\n", seq, r.buffer.ExpectedSeq())
	case AdmitOutOfWindow:
		log.Printf("[OVERFLOW] Packet seq=%d out of window (expected: %d, window: %d)\n",
			seq, r.buffer.ExpectedSeq(), r.windowSize)
	case AdmitAcceptedNew:
		if seq > r.buffer.ExpectedSeq() {
			r.stats.RecordOutOfOrder()
			log.Printf("[OOO] Out-of-order packet seq=%d (expected: %d)\n", seq, r.buffer.ExpectedSeq())
		}
	}

	written, err := r.buffer.DrainPrefix(out)
	r.bytesWritten += written
	if err != nil {
		return errors.Wrap(err, "writing output file")
	}
	r.sendAck(false, 0)
	return nil
}

// Run accepts one connection and blocks until the transfer closes or the
// peer goes silent. The exit status is 0 on a completed transfer.
func (r *ReliableReceiver) Run() int {
	defer r.conn.Close()

	if !r.doHandshake() {
		log.Println("[ERROR] Handshake failed")
		return 1
	}
	log.Printf("Connection established with %s\n", r.client)

	outFile, err := os.Create(r.outputPath)
	if err != nil {
		log.Println("[ERROR] Cannot open output file:", errors.Wrap(err, "create output"))
		return 1
	}
	defer outFile.Close()
	out := bufio.NewWriter(outFile)

	r.buffer = NewReceiveBuffer(r.windowSize)
	log.Printf("[DEBUG] Starting data reception - Window size: %d\n", r.windowSize)
	r.stats.SetStartTime(nowMs())

	finSeen := false
	var finAckSeq uint32
	consecutiveTimeouts := 0

	if r.pending != nil {
		pkt := r.pending
		r.pending = nil
		if pkt.Header.Flags&FINFlag != 0 {
			log.Println("[DEBUG] Received FIN")
			finSeen = true
			finAckSeq = pkt.Header.Seq + 1
			r.stats.SetEndTime(nowMs())
			r.sendAck(true, finAckSeq)
			log.Println("[DEBUG] Sent FIN+ACK")
		} else if err := r.handleData(pkt, out); err != nil {
			log.Println("[ERROR]", err)
			return 1
		}
	}

	for !finSeen {
		var pkt Packet
		from, ok := r.waitForPacket(&pkt, r.dataTimeoutMs)
		if !ok {
			consecutiveTimeouts++
			if consecutiveTimeouts >= MaxConsecutiveTimeouts {
				log.Printf("[TIMEOUT] No traffic for %d consecutive intervals, assuming peer is gone\n",
					MaxConsecutiveTimeouts)
				out.Flush()
				return 1
			}
			continue
		}
		if !sameEndpoint(from, r.client) {
			continue
		}
		consecutiveTimeouts = 0

		if pkt.Header.Flags&RSTFlag != 0 {
			log.Println("[RST] Connection reset by peer")
			out.Flush()
			return 1
		}
		if pkt.Header.Flags&FINFlag != 0 {
			log.Println("[DEBUG] Received FIN")
			finSeen = true
			finAckSeq = pkt.Header.Seq + 1
			r.stats.SetEndTime(nowMs())
			r.sendAck(true, finAckSeq)
			log.Println("[DEBUG] Sent FIN+ACK")
			break
		}
		if pkt.Header.Flags&DATAFlag == 0 {
			continue
		}
		if err := r.handleData(&pkt, out); err != nil {
			log.Println("[ERROR]", err)
			return 1
		}
	}

	if err := out.Flush(); err != nil {
		log.Println("[ERROR] Flushing output file:", err)
		return 1
	}

	if r.stats.endTimeMs == 0 {
		r.stats.SetEndTime(nowMs())
	}
	r.stats.LogReceiverSummary(r.bytesWritten)

	if finSeen {
		r.awaitFinalAck(finAckSeq)
	}
	return 0
}

// awaitFinalAck retries the FIN+ACK until the sender's final ACK arrives or
// the retry budget runs out. The sender treats the first FIN+ACK it sees as
// sufficient, so an incomplete close here is only a warning.
func (r *ReliableReceiver) awaitFinalAck(finAckSeq uint32) {
	attempts := 0
	for attempts < MaxFinRetries {
		var pkt Packet
		from, ok := r.waitForPacket(&pkt, r.handshakeTimeoutMs)
		if ok {
			if !sameEndpoint(from, r.client) {
				continue
			}
			if pkt.Header.Flags&FINFlag != 0 {
				// duplicate FIN: our FIN+ACK was lost
				r.sendAck(true, finAckSeq)
				log.Println("[DEBUG] Re-sent FIN+ACK on duplicate FIN")
				continue
			}
			if pkt.Header.Flags&ACKFlag != 0 {
				log.Println("[DEBUG] Final ACK received, close handshake completed")
				return
			}
			continue
		}
		attempts++
		log.Printf("[DEBUG] Retrying FIN+ACK (attempt %d/%d)\n", attempts, MaxFinRetries)
		r.sendAck(true, finAckSeq)
	}
	log.Println("[WARN] FIN handshake incomplete after retries")
}
