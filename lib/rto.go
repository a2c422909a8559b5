package lib

import "math"

// RtoEstimator tracks SRTT/RTTVAR per Jacobson/Karels and derives the
// retransmission timeout. Samples must only come from segments that were
// never retransmitted (Karn); the caller enforces that.
type RtoEstimator struct {
	srtt        float64
	rttvar      float64
	rto         int64
	initialized bool
	minRto      int64
}

// NewRtoEstimator starts with RTO = DataTimeoutMs until the first sample.
func NewRtoEstimator(minRtoMs int64) *RtoEstimator {
	if minRtoMs <= 0 {
		minRtoMs = MinRtoMs
	}
	return &RtoEstimator{
		rto:    DataTimeoutMs,
		minRto: minRtoMs,
	}
}

// AddSample folds one RTT measurement into the estimator. This also resets
// any timeout backoff, since rto is recomputed from srtt.
func (r *RtoEstimator) AddSample(rttMs int64) {
	const alpha = 0.125 // 1/8
	const beta = 0.25   // 1/4

	sample := float64(rttMs)
	if !r.initialized {
		r.srtt = sample
		r.rttvar = sample / 2.0
		r.initialized = true
	} else {
		delta := sample - r.srtt
		r.srtt = (1.0-alpha)*r.srtt + alpha*sample
		r.rttvar = (1.0-beta)*r.rttvar + beta*math.Abs(delta)
	}

	rto := int64(r.srtt + 4.0*r.rttvar)
	if rto < r.minRto {
		rto = r.minRto
	}
	if rto > MaxRtoMs {
		rto = MaxRtoMs
	}
	r.rto = rto
}

// OnTimeout doubles the RTO (Karn's backoff), capped at 60 s.
func (r *RtoEstimator) OnTimeout() {
	r.rto *= 2
	if r.rto > MaxRtoMs {
		r.rto = MaxRtoMs
	}
}

func (r *RtoEstimator) Rto() int64    { return r.rto }
func (r *RtoEstimator) Srtt() float64 { return r.srtt }
