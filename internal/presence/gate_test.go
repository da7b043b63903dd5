package presence

import (
	"math/rand"
	"testing"
)

func observeAll(g *Gate, inputs []bool) []Signal {
	signals := make([]Signal, 0, len(inputs))
	for _, in := range inputs {
		signals = append(signals, g.Observe(in))
	}
	return signals
}

func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestGate_InterruptedRunEmitsNothing(t *testing.T) {
	g := NewGate(5, 10)

	inputs := append(repeat(true, 4), false)
	inputs = append(inputs, repeat(true, 4)...)

	for i, s := range observeAll(g, inputs) {
		if s != None {
			t.Errorf("observation %d: expected none, got %s", i, s)
		}
	}
	if g.Active() {
		t.Error("gate must stay inactive")
	}
}

func TestGate_StartThenStop(t *testing.T) {
	g := NewGate(5, 10)

	signals := observeAll(g, repeat(true, 5))
	for i, s := range signals[:4] {
		if s != None {
			t.Errorf("observation %d: expected none, got %s", i, s)
		}
	}
	if signals[4] != Start {
		t.Fatalf("expected start on 5th observation, got %s", signals[4])
	}

	signals = observeAll(g, repeat(false, 10))
	for i, s := range signals[:9] {
		if s != None {
			t.Errorf("absent observation %d: expected none, got %s", i, s)
		}
	}
	if signals[9] != Stop {
		t.Fatalf("expected stop on 10th absent observation, got %s", signals[9])
	}
	if g.Active() {
		t.Error("gate must be inactive after stop")
	}
}

func TestGate_SustainedPresenceDoesNotRepeatStart(t *testing.T) {
	g := NewGate(5, 10)

	starts := 0
	for _, s := range observeAll(g, repeat(true, 100)) {
		if s == Start {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("expected exactly one start, got %d", starts)
	}
}

func TestGate_AbsenceWhileInactiveEmitsNothing(t *testing.T) {
	g := NewGate(5, 10)

	for i, s := range observeAll(g, repeat(false, 30)) {
		if s != None {
			t.Errorf("observation %d: expected none, got %s", i, s)
		}
	}
}

func TestGate_ShortAbsenceKeepsActive(t *testing.T) {
	g := NewGate(5, 10)
	observeAll(g, repeat(true, 5))

	inputs := append(repeat(false, 9), true)
	inputs = append(inputs, repeat(false, 9)...)
	for i, s := range observeAll(g, inputs) {
		if s != None {
			t.Errorf("observation %d: expected none, got %s", i, s)
		}
	}
	if !g.Active() {
		t.Error("gate must remain active")
	}
}

func TestGate_CountersInvariant(t *testing.T) {
	g := NewGate(3, 4)
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		g.Observe(r.Intn(2) == 0)
		st := g.State()
		if st.ConsecutivePresent > 0 && st.ConsecutiveAbsent > 0 {
			t.Fatalf("both counters nonzero at step %d: %+v", i, st)
		}
		if st.ConsecutivePresent == 0 && st.ConsecutiveAbsent == 0 {
			t.Fatalf("both counters zero at step %d: %+v", i, st)
		}
	}
}

// Start は非アクティブになって以降のしきい値回目の連続検出でのみ発生し、
// Start と Stop は必ず交互になる
func TestGate_ModelProperties(t *testing.T) {
	testCases := []struct {
		name    string
		present int
		absent  int
		seed    int64
	}{
		{name: "defaults", present: 5, absent: 10, seed: 1},
		{name: "symmetric", present: 3, absent: 3, seed: 2},
		{name: "single frame", present: 1, absent: 1, seed: 3},
		{name: "biased", present: 2, absent: 7, seed: 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGate(tc.present, tc.absent)
			r := rand.New(rand.NewSource(tc.seed))

			var (
				run     int
				runTrue bool
				active  bool
				last    = Stop
			)
			for i := 0; i < 5000; i++ {
				in := r.Intn(3) != 0
				if i%200 < 50 {
					in = !in
				}
				if in == runTrue {
					run++
				} else {
					runTrue = in
					run = 1
				}

				want := None
				if in && !active && run == tc.present {
					want = Start
				}
				if !in && active && run == tc.absent {
					want = Stop
				}

				got := g.Observe(in)
				if got != want {
					t.Fatalf("step %d: expected %s, got %s", i, want, got)
				}
				if got != None {
					if got == last {
						t.Fatalf("step %d: %s emitted twice in a row", i, got)
					}
					last = got
					active = got == Start
				}
			}
		})
	}
}

func TestNewGate_ClampsThresholds(t *testing.T) {
	g := NewGate(0, -3)
	present, absent := g.Thresholds()
	if present != 1 || absent != 1 {
		t.Errorf("expected thresholds 1/1, got %d/%d", present, absent)
	}
	if s := g.Observe(true); s != Start {
		t.Errorf("expected immediate start, got %s", s)
	}
}

func TestSignal_String(t *testing.T) {
	if Start.String() != "start" || Stop.String() != "stop" || None.String() != "none" {
		t.Error("unexpected signal names")
	}
	if Signal(9).String() != "signal(9)" {
		t.Errorf("unexpected name for unknown signal: %s", Signal(9).String())
	}
}
