package evidence

import (
	"reflect"
	"testing"
	"time"
)

func TestCandidateClientCodes(t *testing.T) {
	v := DefaultPrefixVariants()
	cases := []struct {
		in   string
		want []string
	}{
		{"NEOWM00542", []string{"NEOWM00542"}},
		{"EOWM00542", []string{"EOWM00542", "NEOWM00542"}},
		{"WM00542", []string{"WM00542", "NEOWM00542"}},
		{"130", []string{"130", "NEO130"}},
		{"", nil},
	}
	for _, c := range cases {
		got := CandidateClientCodes(c.in, v)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("CandidateClientCodes(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMergeGroupsDedupsAcrossSources(t *testing.T) {
	ins := Instruction{Symbol: "BLUEJET", Quantity: 300, Price: "667", Side: "BUY", Time: "10:15"}
	groups := []InstructionGroup{
		{ClientID: "C1", SourceRef: "email-1", Instructions: []Instruction{ins}},
		{ClientID: "C1", SourceRef: "email-2", Instructions: []Instruction{ins}}, // forwarded copy
		{ClientID: "C1", SourceRef: "email-1", Instructions: []Instruction{
			{Symbol: "MANAPPURAM", Quantity: 50, Price: "CMP", Side: "SELL"},
		}},
	}

	merged := MergeGroups(groups)
	if len(merged) != 2 {
		t.Fatalf("merged into %d groups, want 2", len(merged))
	}
	if merged[0].GroupKey() != "C1_BLUEJET" || len(merged[0].Instructions) != 1 {
		t.Errorf("group 0 = %+v", merged[0])
	}
	if merged[1].GroupKey() != "C1_MANAPPURAM" {
		t.Errorf("group 1 key = %s", merged[1].GroupKey())
	}
}

func TestMergeGroupsKeepsDistinctInstructions(t *testing.T) {
	groups := []InstructionGroup{
		{ClientID: "C1", Instructions: []Instruction{
			{Symbol: "X", Quantity: 100, Side: "BUY"},
			{Symbol: "X", Quantity: 200, Side: "BUY"},
		}},
	}
	merged := MergeGroups(groups)
	if len(merged) != 1 || len(merged[0].Instructions) != 2 {
		t.Fatalf("got %+v", merged)
	}
}

func TestConsolidateCalls(t *testing.T) {
	base := time.Date(2025, 8, 13, 10, 0, 0, 0, time.UTC)
	calls := []Call{
		{ClientID: "C1", WindowStart: base, WindowEnd: base.Add(2 * time.Minute), FileRef: "a.wav"},
		{ClientID: "C1", WindowStart: base.Add(2 * time.Minute), WindowEnd: base.Add(4 * time.Minute), FileRef: "b.wav"},
		{ClientID: "C1", WindowStart: base.Add(30 * time.Minute), WindowEnd: base.Add(31 * time.Minute), FileRef: "c.wav"},
		{ClientID: "C2", WindowStart: base, WindowEnd: base.Add(time.Minute), FileRef: "d.wav"},
	}

	out := ConsolidateCalls(calls, 3*time.Minute)
	if len(out) != 3 {
		t.Fatalf("got %d clusters, want 3", len(out))
	}
	if out[0].FileRef != "a.wav,b.wav" {
		t.Errorf("cluster files = %q", out[0].FileRef)
	}
	if !out[0].WindowEnd.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("cluster window end = %v", out[0].WindowEnd)
	}
}
