package detector

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Metrics captures the stage timings of one Detect call.
type Metrics struct {
	PreprocessDuration  time.Duration `json:"preprocess_duration"`
	InferenceDuration   time.Duration `json:"inference_duration"`
	PostProcessDuration time.Duration `json:"post_process_duration"`
	TotalDuration       time.Duration `json:"total_duration"`
	DetectionCount      int           `json:"detection_count"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m Metrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddDuration("preprocess", m.PreprocessDuration)
	enc.AddDuration("inference", m.InferenceDuration)
	enc.AddDuration("post_process", m.PostProcessDuration)
	enc.AddDuration("total", m.TotalDuration)
	enc.AddInt("detections", m.DetectionCount)
	return nil
}

func (m Metrics) field() zap.Field {
	return zap.Object("metrics", m)
}

// stopwatch measures consecutive stages.
type stopwatch struct {
	start time.Time
	lap   time.Time
}

func newStopwatch() *stopwatch {
	now := time.Now()
	return &stopwatch{start: now, lap: now}
}

// Lap returns the time since the previous lap.
func (s *stopwatch) Lap() time.Duration {
	now := time.Now()
	d := now.Sub(s.lap)
	s.lap = now
	return d
}

// Total returns the time since the stopwatch started.
func (s *stopwatch) Total() time.Duration {
	return time.Since(s.start)
}
