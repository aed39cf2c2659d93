package numparse

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"423", 423},
		{"1,234", 1234},
		{"1.2K", 1200},
		{"1.2k", 1200},
		{"15.3K", 15300},
		{"2.5M", 2500000},
		{"5.7m", 5700000},
		{"1B", 1000000000},
		{"3만", 30000},
		{"1.5만", 15000},
		{"2천", 2000},
		{"1억", 100000000},
		{"1.2K views", 1200},
		{"조회수 3.4만회", 34000},
		{"12 comments", 12},
		{"12 million", 12},
		{"1 234 567", 1234567},
		{"  87  ", 87},
		{"no digits here", 0},
		{"K", 0},
	}

	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAbbreviateRoundTrip(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1200, "1.2K"},
		{15000, "15K"},
		{2500000, "2.5M"},
		{3000000000, "3B"},
	}

	for _, tt := range tests {
		got := Abbreviate(tt.n)
		if got != tt.want {
			t.Errorf("Abbreviate(%d) = %q, want %q", tt.n, got, tt.want)
		}
		if back := Parse(got); back != tt.n {
			t.Errorf("Parse(Abbreviate(%d)) = %d", tt.n, back)
		}
	}
}
