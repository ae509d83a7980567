package util

import "testing"

func TestParseIntDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"", 7, 7},
		{"12", 7, 12},
		{"x", 7, 7},
	}
	for _, c := range cases {
		if got := ParseIntDefault(c.in, c.def); got != c.want {
			t.Fatalf("%q: got %d want %d", c.in, got, c.want)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol(" btcusdt "); got != "BTCUSDT" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitPair(t *testing.T) {
	a, b, ok := SplitPair("BTCUSDT/ETHUSDT")
	if !ok || a != "BTCUSDT" || b != "ETHUSDT" {
		t.Fatalf("got %q %q %v", a, b, ok)
	}
	for _, bad := range []string{"BTCUSDT", "/ETH", "BTC/"} {
		if _, _, ok := SplitPair(bad); ok {
			t.Fatalf("%q: expected failure", bad)
		}
	}
}
