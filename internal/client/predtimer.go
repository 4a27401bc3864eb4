package client

import "time"

// PredictionTimer schedules the client's predicted tick against the server:
// it tracks ping average and jitter, derives the future-tick offset, and
// smooths corrections so the predicted clock never warps.
type PredictionTimer struct {
	// EWMA ping and jitter, in seconds.
	pingAvg float64
	jitter  float64
	primed  bool

	// Smoothed adjustment applied to last_game_tick, in seconds.
	smoothed float64

	lastFrame     time.Duration
	frameAvg      float64
}

const (
	pingAlpha   = 0.1
	jitterAlpha = 0.1
	adjustAlpha = 0.05

	// predMarginSecs is always added on top of ping/jitter so inputs arrive
	// before their tick even on a calm link.
	predMarginSecs = 0.002
)

// NewPredictionTimer returns a timer with no samples.
func NewPredictionTimer() *PredictionTimer {
	return &PredictionTimer{}
}

// AddPingSample feeds one RTT measurement.
func (pt *PredictionTimer) AddPingSample(rtt time.Duration) {
	s := rtt.Seconds()
	if !pt.primed {
		pt.pingAvg = s
		pt.primed = true
		return
	}
	dev := s - pt.pingAvg
	if dev < 0 {
		dev = -dev
	}
	// Rising jitter grows the target offset (send further ahead).
	pt.jitter += jitterAlpha * (dev - pt.jitter)
	pt.pingAvg += pingAlpha * (s - pt.pingAvg)
}

// AddFrameTime feeds the duration of the last rendered frame.
func (pt *PredictionTimer) AddFrameTime(dt time.Duration) {
	pt.lastFrame = dt
	pt.frameAvg += adjustAlpha * (dt.Seconds() - pt.frameAvg)
}

// Ping returns the smoothed round-trip estimate.
func (pt *PredictionTimer) Ping() time.Duration {
	return time.Duration(pt.pingAvg * float64(time.Second))
}

// PredTickOffset returns how far ahead of the server the predicted tick
// should run.
func (pt *PredictionTimer) PredTickOffset(tickTime time.Duration) time.Duration {
	target := pt.pingAvg/2 + 2*pt.jitter + predMarginSecs
	// Always at least one tick ahead.
	if t := tickTime.Seconds(); target < t {
		target = t
	}
	return time.Duration(target * float64(time.Second))
}

// Adjustment returns the smoothed clock correction toward target, clamped to
// half a frame per application to avoid tick warps.
func (pt *PredictionTimer) Adjustment(current, target time.Duration) time.Duration {
	err := (target - current).Seconds()
	pt.smoothed += adjustAlpha * (err - pt.smoothed)

	adj := pt.smoothed
	halfFrame := pt.lastFrame.Seconds() / 2
	if halfFrame <= 0 {
		halfFrame = 1.0 / 120
	}
	if adj > halfFrame {
		adj = halfFrame
	}
	if adj < -halfFrame {
		adj = -halfFrame
	}
	return time.Duration(adj * float64(time.Second))
}

// TimeUnitsToRespect returns how many ticks of input the client should
// transmit this frame, bounded by cap.
func (pt *PredictionTimer) TimeUnitsToRespect(timePerTick time.Duration, cap int) int {
	offset := pt.PredTickOffset(timePerTick)
	units := int(offset/timePerTick) + 1
	if units < 1 {
		units = 1
	}
	if units > cap {
		units = cap
	}
	return units
}
