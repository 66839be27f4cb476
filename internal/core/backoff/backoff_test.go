package backoff

import (
	"testing"
	"time"
)

func TestDelay_MonotonicallyNonDecreasing(t *testing.T) {
	p := Policy{Base: time.Second, Max: 5 * time.Minute}

	prev := time.Duration(0)
	for failures := 1; failures <= 20; failures++ {
		d := p.Delay(failures)
		if d < prev {
			t.Fatalf("delay decreased at %d failures: %v < %v", failures, d, prev)
		}
		prev = d
	}
}

func TestDelay_StartsAtBase(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: time.Minute}

	if d := p.Delay(1); d != 2*time.Second {
		t.Errorf("expected base delay after first failure, got %v", d)
	}
	// A reset counter behaves like the first failure.
	if d := p.Delay(0); d != 2*time.Second {
		t.Errorf("expected base delay for zero failures, got %v", d)
	}
}

func TestDelay_Doubles(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Hour}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if d := p.Delay(i + 1); d != w {
			t.Errorf("failures=%d: expected %v, got %v", i+1, w, d)
		}
	}
}

func TestDelay_CappedAtMax(t *testing.T) {
	p := Policy{Base: time.Second, Max: 10 * time.Second}

	for failures := 5; failures <= 60; failures++ {
		if d := p.Delay(failures); d > 10*time.Second {
			t.Fatalf("delay %v exceeds cap at %d failures", d, failures)
		}
	}
}

func TestDelay_JitterBounds(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Hour, Jitter: 0.5}

	for i := 0; i < 200; i++ {
		d := p.Delay(3)
		if d < 4*time.Second || d > 6*time.Second {
			t.Fatalf("jittered delay %v outside [4s, 6s]", d)
		}
	}
}

func TestDelay_JitterNeverExceedsMaxAtCap(t *testing.T) {
	p := Policy{Base: time.Second, Max: 8 * time.Second, Jitter: 0.5}

	for i := 0; i < 200; i++ {
		if d := p.Delay(30); d > 8*time.Second {
			t.Fatalf("jittered delay %v exceeds cap", d)
		}
	}
}

func TestDelay_JitterClampedWhileBelowCap(t *testing.T) {
	// The base delay is under the cap but full jitter would overshoot it.
	p := Policy{Base: 4 * time.Second, Max: 5 * time.Second, Jitter: 1.0}

	for i := 0; i < 200; i++ {
		if d := p.Delay(1); d > 5*time.Second {
			t.Fatalf("jittered delay %v exceeds cap", d)
		}
	}
}
