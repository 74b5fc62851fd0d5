package logic

import "testing"

func TestSummarize(t *testing.T) {
	s := Summarize([]uint16{10, 30, 20})
	if s.N != 3 {
		t.Errorf("N: expected 3, got %d", s.N)
	}
	if s.Min != 10 || s.Max != 30 {
		t.Errorf("expected min 10 max 30, got min %v max %v", s.Min, s.Max)
	}
	if s.Mean != 20 {
		t.Errorf("expected mean 20, got %v", s.Mean)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if s := Summarize([]uint16(nil)); s != (Summary{}) {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestSummarizeFullScale(t *testing.T) {
	// Sum must not overflow the sample type
	s := Summarize([]uint16{65535, 65535, 65535, 65535})
	if s.Mean != 65535 {
		t.Errorf("expected mean 65535, got %v", s.Mean)
	}
}
