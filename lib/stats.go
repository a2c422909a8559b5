package lib

import (
	"encoding/binary"
	"log"

	popcount "github.com/tmthrgd/go-popcount"
)

// TransferStats aggregates the per-connection counters reported in the
// terminal summary at the end of a run.
type TransferStats struct {
	retransmitCount     uint32
	timeoutCount        uint32
	fastRetransmitCount uint32
	sackReportedTotal   uint64 // sum of SACK bits seen across all ACKs

	totalPacketsReceived uint32
	outOfOrderPackets    uint32
	duplicatePackets     uint32

	startTimeMs int64
	endTimeMs   int64
}

func NewTransferStats() *TransferStats {
	return &TransferStats{}
}

func (t *TransferStats) RecordRetransmit()     { t.retransmitCount++ }
func (t *TransferStats) RecordTimeout()        { t.timeoutCount++ }
func (t *TransferStats) RecordFastRetransmit() { t.fastRetransmitCount++ }
func (t *TransferStats) RecordReceived()       { t.totalPacketsReceived++ }
func (t *TransferStats) RecordOutOfOrder()     { t.outOfOrderPackets++ }
func (t *TransferStats) RecordDuplicate()      { t.duplicatePackets++ }

// RecordSackMask accumulates the population count of one incoming SACK mask.
func (t *TransferStats) RecordSackMask(mask uint32) {
	if mask == 0 {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], mask)
	t.sackReportedTotal += popcount.CountBytes(buf[:])
}

func (t *TransferStats) RetransmitCount() uint32 { return t.retransmitCount }
func (t *TransferStats) TimeoutCount() uint32    { return t.timeoutCount }

func (t *TransferStats) SetStartTime(ms int64) {
	if t.startTimeMs == 0 {
		t.startTimeMs = ms
	}
}

func (t *TransferStats) SetEndTime(ms int64) { t.endTimeMs = ms }
func (t *TransferStats) StartTime() int64    { return t.startTimeMs }

func (t *TransferStats) ElapsedSeconds() float64 {
	if t.startTimeMs > 0 && t.endTimeMs > t.startTimeMs {
		return float64(t.endTimeMs-t.startTimeMs) / 1000.0
	}
	return 0.0
}

// Throughput reports MiB/s over the recorded interval.
func (t *TransferStats) Throughput(bytes int64) float64 {
	elapsed := t.ElapsedSeconds()
	if elapsed > 0 {
		return float64(bytes) / elapsed / 1024.0 / 1024.0
	}
	return 0.0
}

// LossRate estimates the loss percentage as retransmits per total segments.
func (t *TransferStats) LossRate(totalSegments uint32) float64 {
	if totalSegments > 0 {
		return float64(t.retransmitCount) * 100.0 / float64(totalSegments)
	}
	return 0.0
}

func (t *TransferStats) LogSenderSummary(fileSize int64, totalSegments uint32, cwnd, ssthresh float64) {
	log.Println("[INFO] Transfer completed")
	log.Printf("[INFO] Final cwnd: %.2f, Final ssthresh: %.2f\n", cwnd, ssthresh)
	log.Printf("[STATS] Total retransmits: %d (Timeout: %d, Fast retransmit: %d)\n",
		t.retransmitCount, t.timeoutCount, t.fastRetransmitCount)
	log.Printf("[STATS] SACK-reported segments: %d\n", t.sackReportedTotal)
	log.Printf("[STATS] Packet loss rate: %.2f%%\n", t.LossRate(totalSegments))
	log.Printf("Sent %d bytes in %.3f s, avg throughput %.3f MiB/s\n",
		fileSize, t.ElapsedSeconds(), t.Throughput(fileSize))
}

func (t *TransferStats) LogReceiverSummary(bytesReceived int64) {
	log.Println("[INFO] Transfer completed")
	log.Printf("[STATS] Total packets received: %d\n", t.totalPacketsReceived)
	log.Printf("[STATS] Out-of-order packets: %d\n", t.outOfOrderPackets)
	log.Printf("[STATS] Duplicate packets: %d\n", t.duplicatePackets)
	log.Printf("Received %d bytes in %.3f s, avg throughput %.3f MiB/s\n",
		bytesReceived, t.ElapsedSeconds(), t.Throughput(bytesReceived))
}
