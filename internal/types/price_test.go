package types

import "testing"

func TestParsePriceASCII(t *testing.T) {
	cases := []struct {
		in   string
		want Price
	}{
		{"150.25", 1502500},
		{"150.2500", 1502500},
		{"150", 1500000},
		{"0.02", 200},
		{"-12.5", -125000},
		{"150.123456", 1501234},
	}
	for _, c := range cases {
		got, err := ParsePriceASCII([]byte(c.in))
		if err != nil {
			t.Fatalf("ParsePriceASCII(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParsePriceASCII(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParsePriceASCIIMalformed(t *testing.T) {
	for _, in := range []string{"", "1.2.3", "15a"} {
		if _, err := ParsePriceASCII([]byte(in)); err == nil {
			t.Errorf("ParsePriceASCII(%q) expected error", in)
		}
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	s := SymbolFromString("AAPL")
	if s.String() != "AAPL" {
		t.Errorf("got %q, want AAPL", s.String())
	}
	other := SymbolFromString("AAPL")
	if s != other {
		t.Errorf("equal symbols compared unequal")
	}
}

func TestPriceDisplay(t *testing.T) {
	p := Price(1500100)
	if got := p.Display(); got != 150.01 {
		t.Errorf("Display() = %v, want 150.01", got)
	}
}
