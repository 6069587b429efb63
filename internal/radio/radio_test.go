package radio

import "testing"

func TestModeFor(t *testing.T) {
	tests := []struct {
		ap, sta bool
		want    Mode
	}{
		{false, false, ModeOff},
		{false, true, ModeSTA},
		{true, false, ModeAP},
		{true, true, ModeAPSTA},
	}
	for _, tt := range tests {
		got := ModeFor(tt.ap, tt.sta)
		if got != tt.want {
			t.Errorf("ModeFor(%v, %v) = %v, want %v", tt.ap, tt.sta, got, tt.want)
		}
		if got.AP() != tt.ap || got.STA() != tt.sta {
			t.Errorf("%v flags = ap:%v sta:%v", got, got.AP(), got.STA())
		}
	}
}

func TestMAC_RoundTrip(t *testing.T) {
	m := MAC{0x24, 0x0a, 0xc4, 0x01, 0x02, 0xff}
	if got := m.String(); got != "24:0A:C4:01:02:FF" {
		t.Fatalf("String() = %q", got)
	}
	parsed, err := ParseMAC(m.String())
	if err != nil {
		t.Fatalf("ParseMAC() error = %v", err)
	}
	if parsed != m {
		t.Errorf("ParseMAC() = %v, want %v", parsed, m)
	}
	if _, err := ParseMAC("not-a-mac"); err == nil {
		t.Error("ParseMAC() expected error")
	}
}
