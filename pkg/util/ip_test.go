package util

import (
	"net/netip"
	"testing"
)

func TestParseHostOrPrefix(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"10.1.0.0/16", "10.1.0.0/16", false},
		{"10.1.2.3/16", "10.1.0.0/16", false},
		{"10.1.2.3", "10.1.2.3/32", false},
		{"2001:db8::/64", "2001:db8::/64", false},
		{"2001:db8::1", "2001:db8::1/128", false},
		{"::ffff:10.0.0.1", "10.0.0.1/32", false},
		{"not-an-ip", "", true},
		{"10.0.0.0/33", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHostOrPrefix(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHostOrPrefix(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseHostOrPrefix(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseAddrList(t *testing.T) {
	addrs, err := ParseAddrList("10.0.0.2, 10.0.0.3")
	if err != nil {
		t.Fatalf("ParseAddrList() error = %v", err)
	}
	if len(addrs) != 2 || addrs[1] != netip.MustParseAddr("10.0.0.3") {
		t.Errorf("ParseAddrList() = %v", addrs)
	}
	if _, err := ParseAddrList("10.0.0.2,bogus"); err == nil {
		t.Error("ParseAddrList() should reject bogus entries")
	}
}

func TestIsUnspecifiedNextHop(t *testing.T) {
	tests := []struct {
		addr netip.Addr
		want bool
	}{
		{netip.Addr{}, true},
		{netip.MustParseAddr("0.0.0.0"), true},
		{netip.MustParseAddr("::"), true},
		{netip.MustParseAddr("10.0.0.1"), false},
	}
	for _, tt := range tests {
		if got := IsUnspecifiedNextHop(tt.addr); got != tt.want {
			t.Errorf("IsUnspecifiedNextHop(%v) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
