package helpers

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     int64
		wantErr  bool
	}{
		{"1", 8, 100000000, false},
		{"0.1", 8, 10000000, false},
		{"0.00000001", 8, 1, false},
		{"21000000", 8, 2100000000000000, false},
		{"1.5", 0, 1, false},
		{"0", 8, 0, false},
		{"0.00000000", 8, 0, false},
		{"", 8, 0, true},
		{"1a", 8, 0, true},
		{"-1", 8, 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in, tt.decimals)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q, %d) error = %v, wantErr %v", tt.in, tt.decimals, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAmount(%q, %d) = %d, want %d", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in       int64
		decimals uint8
		want     string
	}{
		{100000000, 8, "1"},
		{10000000, 8, "0.1"},
		{1, 8, "0.00000001"},
		{0, 8, "0"},
		{-150000000, 8, "-1.5"},
		{42, 0, "42"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.in, tt.decimals); got != tt.want {
			t.Errorf("FormatAmount(%d, %d) = %q, want %q", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, sat := range []int64{0, 1, 546, 100000000, 2100000000000000} {
		s := SatoshisToBTC(sat)
		back, err := BTCToSatoshis(s)
		if err != nil {
			t.Fatalf("BTCToSatoshis(%q) error = %v", s, err)
		}
		if back != sat {
			t.Errorf("round trip %d -> %q -> %d", sat, s, back)
		}
	}
}

func TestHexToBytes(t *testing.T) {
	b, err := HexToBytes("434e5452")
	if err != nil {
		t.Fatalf("HexToBytes() error = %v", err)
	}
	if string(b) != "CNTR" {
		t.Errorf("HexToBytes(434e5452) = %q, want CNTR", b)
	}

	b, err = HexToBytes("0x00ff")
	if err != nil {
		t.Fatalf("HexToBytes() error = %v", err)
	}
	if len(b) != 2 || b[0] != 0 || b[1] != 0xff {
		t.Errorf("HexToBytes(0x00ff) = %x", b)
	}

	if _, err := HexToBytes("zz"); err == nil {
		t.Error("HexToBytes(zz) should fail")
	}
}

func TestBytesToHex(t *testing.T) {
	if got := BytesToHex([]byte("CNTR")); got != "434e5452" {
		t.Errorf("BytesToHex(CNTR) = %q, want 434e5452", got)
	}
}
