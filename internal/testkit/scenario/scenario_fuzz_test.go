package scenario

import (
	"context"
	"testing"
)

func FuzzChaos(f *testing.F) {
	f.Add(int64(1), uint8(50))
	f.Add(int64(-9), uint8(200))
	f.Add(int64(2024), uint8(1))

	f.Fuzz(func(t *testing.T, seed int64, steps uint8) {
		if seed == 0 || steps == 0 {
			t.Skip()
		}
		s, err := New(Config{Hosts: []string{"a", "b", "c"}})
		if err != nil {
			t.Fatal(err)
		}
		r, err := NewChaosRunner(s, ChaosRunnerConfig{Seed: seed})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Run(context.Background(), int(steps)); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
	})
}
