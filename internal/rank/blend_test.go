package rank

import (
	"math"
	"testing"
)

func TestBlendDefaults(t *testing.T) {
	w := DefaultWeights()

	if got := w.CosineSim + w.Popularity + w.Recency; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("default weights should sum to 1, got %f", got)
	}

	// 手工核对一组数值
	got := w.Blend(0.8, 0.5, 0.2)
	want := 0.85*0.8 + 0.14*0.5 + 0.01*0.2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Blend(0.8, 0.5, 0.2) = %f, want %f", got, want)
	}
}

func TestBlendDeterministic(t *testing.T) {
	w := DefaultWeights()
	first := w.Blend(0.731, 0.402, 0.95)
	for i := 0; i < 100; i++ {
		if got := w.Blend(0.731, 0.402, 0.95); got != first {
			t.Fatalf("Blend is not deterministic: %f != %f", got, first)
		}
	}
}

func TestBlendNegativeCosine(t *testing.T) {
	// 余弦为负时不做 clamp，结果可以小于 0
	w := DefaultWeights()
	if got := w.Blend(-1, 0, 0); got >= 0 {
		t.Errorf("expected negative blend for negative cosine, got %f", got)
	}
}
