package record

import (
	"testing"
	"time"
)

func TestNoSourceFlag(t *testing.T) {
	ts := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(*Record)
		want   bool
	}{
		{"no evidence, live order", func(r *Record) {}, true},
		{"audio evidence present", func(r *Record) { r.AudioMatchType = "MATCHED_IN_WINDOW" }, false},
		{"email match present", func(r *Record) { r.EmailMatchStatus = StatusMatched }, false},
		{"oms match present", func(r *Record) { r.EmailMatchStatus = StatusOMSMatch }, false},
		{"cancelled order needs nothing", func(r *Record) { r.Status = "CANCELLED" }, false},
		{"rejected order needs nothing", func(r *Record) { r.Status = "rejected" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := New("1", "C1", "SYM", "BUY", 10, 5, "COMPLETE", ts)
			tc.mutate(&rec)
			rec.RecomputeFlags()
			if rec.NoSourceFound != tc.want {
				t.Fatalf("NoSourceFound = %v, want %v", rec.NoSourceFound, tc.want)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	rec := New("1", "C1", "SYM", "BUY", 10, 5, "COMPLETE", time.Time{})
	if rec.EmailMatchStatus != StatusNoEmailMatch {
		t.Fatalf("default status = %q", rec.EmailMatchStatus)
	}
	if rec.HasAudioEvidence() || rec.HasWrittenEvidence() {
		t.Fatal("fresh record must carry no evidence")
	}
}
