package bt

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF", false},
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF", false},
		{" 01:23:45:67:89:ab ", "01:23:45:67:89:AB", false},
		{"not-a-mac", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeviceSame(t *testing.T) {
	a := Device{Address: "AA:BB:CC:DD:EE:FF", Name: "One"}
	if !a.Same(Device{Address: "aa:bb:cc:dd:ee:ff", Name: "Two"}) {
		t.Error("devices with equal addresses should be the same")
	}
	if a.Same(Device{Address: "AA:BB:CC:DD:EE:00", Name: "One"}) {
		t.Error("devices with equal names but different addresses should differ")
	}
}

func TestDeviceString(t *testing.T) {
	if got := (Device{Address: "AA:BB:CC:DD:EE:FF"}).String(); got != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("String() = %q", got)
	}
	if got := testDevice.String(); got != "Headphones (AA:BB:CC:DD:EE:FF)" {
		t.Errorf("String() = %q", got)
	}
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", newError(KindPairingTimeout, base))

	if got := KindOf(err); got != KindPairingTimeout {
		t.Errorf("KindOf() = %v, want %v", got, KindPairingTimeout)
	}
	if !errors.Is(err, base) {
		t.Error("Error should unwrap to its cause")
	}
	if got := KindOf(base); got != KindNone {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindNone)
	}
}

func TestFailedDefaultsToPlatformFault(t *testing.T) {
	out := failed("id", testDevice, errors.New("dbus: no reply"))
	if out.Kind != KindPlatformCallFault {
		t.Errorf("Kind = %v, want %v", out.Kind, KindPlatformCallFault)
	}
	if out.OK() {
		t.Error("failed outcome reports OK")
	}
}
