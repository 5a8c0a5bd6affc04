package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector(cfg DetectorConfig) (*Detector, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDetector(cfg)
	d.now = c.now
	return d, c
}

func Test_Detector_AttackThenRelease(t *testing.T) {
	req := require.New(t)
	d, c := newTestDetector(DetectorConfig{Threshold: 40, Attack: 3, Release: 100 * time.Millisecond})

	for i := 0; i < 2; i++ {
		changed, speaking := d.Observe(20, true)
		req.False(changed)
		req.False(speaking)
		c.advance(20 * time.Millisecond)
	}
	changed, speaking := d.Observe(20, true)
	req.True(changed)
	req.True(speaking)

	c.advance(50 * time.Millisecond)
	changed, speaking = d.Observe(127, false)
	req.False(changed, "quiet shorter than release keeps speaking")
	req.True(speaking)

	c.advance(60 * time.Millisecond)
	changed, speaking = d.Observe(127, false)
	req.True(changed)
	req.False(speaking)
	req.False(d.Speaking())
}

func Test_Detector_QuietLevelsNeverTrigger(t *testing.T) {
	req := require.New(t)
	d, c := newTestDetector(DetectorConfig{Threshold: 40, Attack: 2, Release: 100 * time.Millisecond})

	for i := 0; i < 10; i++ {
		changed, _ := d.Observe(90, true)
		req.False(changed)
		c.advance(20 * time.Millisecond)
	}
	// Loud levels without the voice flag are noise.
	for i := 0; i < 10; i++ {
		changed, _ := d.Observe(10, false)
		req.False(changed)
	}
	req.False(d.Speaking())
}

func Test_Detector_InterruptedBurstRestartsAttack(t *testing.T) {
	req := require.New(t)
	d, _ := newTestDetector(DetectorConfig{Threshold: 40, Attack: 3, Release: time.Second})

	d.Observe(10, true)
	d.Observe(10, true)
	d.Observe(100, true)
	changed, speaking := d.Observe(10, true)
	req.False(changed)
	req.False(speaking)
}

func Test_NewDetector_FillsDefaults(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	require.Equal(t, DefaultDetectorConfig(), d.cfg)
}
