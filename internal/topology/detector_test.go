package topology

import "testing"

func TestLagSecondsUnknownSlotReturnsNegativeOne(t *testing.T) {
	info := &Info{}
	if got := info.LagSeconds("replica-1"); got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
}

func TestLagSecondsKnownSlot(t *testing.T) {
	info := &Info{ReplicationLagBySlot: map[string]int64{"replica-1": 4}}
	if got := info.LagSeconds("replica-1"); got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
	if got := info.LagSeconds("replica-2"); got != -1 {
		t.Fatalf("got %d, want -1 for unknown slot", got)
	}
}

func TestAtoiOrZero(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"3", 3},
		{"", 0},
		{"not-a-number", 0},
		{"-7", -7},
	}
	for _, c := range cases {
		if got := atoiOrZero(c.in); got != c.want {
			t.Errorf("atoiOrZero(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
