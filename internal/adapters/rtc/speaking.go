package rtc

import "time"

// DetectorConfig tunes voice activity detection on RFC 6464 audio levels.
// Levels are -dBov: 0 is the loudest, 127 silence.
type DetectorConfig struct {
	Threshold uint8         // levels at or below count as loud
	Attack    int           // consecutive loud packets to start speaking
	Release   time.Duration // quiet time to stop speaking
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{Threshold: 50, Attack: 3, Release: 400 * time.Millisecond}
}

// Detector is a hysteresis gate over per-packet audio levels.
// It is not threadsafe; each remote track owns one.
type Detector struct {
	cfg      DetectorConfig
	now      func() time.Time
	loud     int
	lastLoud time.Time
	speaking bool
}

func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.Attack <= 0 {
		cfg.Attack = def.Attack
	}
	if cfg.Release <= 0 {
		cfg.Release = def.Release
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// Observe folds in one packet and reports whether the speaking flag changed.
func (d *Detector) Observe(level uint8, voice bool) (bool, bool) {
	now := d.now()
	if voice && level <= d.cfg.Threshold {
		d.loud++
		d.lastLoud = now
		if !d.speaking && d.loud >= d.cfg.Attack {
			d.speaking = true
			return true, true
		}
		return false, d.speaking
	}
	d.loud = 0
	if d.speaking && now.Sub(d.lastLoud) >= d.cfg.Release {
		d.speaking = false
		return true, false
	}
	return false, d.speaking
}

func (d *Detector) Speaking() bool { return d.speaking }
