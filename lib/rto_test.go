package lib

import (
	"math"
	"testing"
)

func TestRtoFirstSample(t *testing.T) {
	r := NewRtoEstimator(20)
	if r.Rto() != DataTimeoutMs {
		t.Errorf("pre-sample RTO = %d, want %d", r.Rto(), DataTimeoutMs)
	}

	r.AddSample(100)
	// srtt = R, rttvar = R/2, rto = srtt + 4*rttvar = 3R
	if r.Srtt() != 100.0 {
		t.Errorf("srtt = %.2f, want 100", r.Srtt())
	}
	if r.Rto() != 300 {
		t.Errorf("rto = %d, want 300", r.Rto())
	}
}

func TestRtoSubsequentSamples(t *testing.T) {
	r := NewRtoEstimator(20)
	r.AddSample(100)
	r.AddSample(200)

	// rttvar = 0.75*50 + 0.25*|100-200| = 62.5; srtt = 0.875*100 + 0.125*200 = 112.5
	wantSrtt := 112.5
	if math.Abs(r.Srtt()-wantSrtt) > 1e-9 {
		t.Errorf("srtt = %.4f, want %.4f", r.Srtt(), wantSrtt)
	}
	srttForRto, rttvarForRto := 112.5, 62.5
	wantRto := int64(srttForRto + 4*rttvarForRto)
	if r.Rto() != wantRto {
		t.Errorf("rto = %d, want %d", r.Rto(), wantRto)
	}
}

func TestRtoMinClamp(t *testing.T) {
	r := NewRtoEstimator(20)
	r.AddSample(1)
	if r.Rto() != 20 {
		t.Errorf("rto = %d, want clamped to 20", r.Rto())
	}
}

func TestRtoBackoffAndRecovery(t *testing.T) {
	r := NewRtoEstimator(20)
	r.AddSample(100) // rto 300

	r.OnTimeout()
	if r.Rto() != 600 {
		t.Errorf("rto after backoff = %d, want 600", r.Rto())
	}
	r.OnTimeout()
	if r.Rto() != 1200 {
		t.Errorf("rto after second backoff = %d, want 1200", r.Rto())
	}

	// a fresh sample recomputes the RTO from srtt, undoing the backoff
	r.AddSample(100)
	if r.Rto() >= 1200 {
		t.Errorf("rto should recover after a valid sample, still %d", r.Rto())
	}
}

func TestRtoMaxClamp(t *testing.T) {
	r := NewRtoEstimator(20)
	r.AddSample(100)
	for i := 0; i < 20; i++ {
		r.OnTimeout()
	}
	if r.Rto() != MaxRtoMs {
		t.Errorf("rto = %d, want capped at %d", r.Rto(), MaxRtoMs)
	}
}
