package serialport

import "testing"

func TestValidBaudRateNamedRates(t *testing.T) {
	for _, rate := range AllowedBaudRates {
		if !ValidBaudRate(rate) {
			t.Errorf("expected named rate %d to be valid", rate)
		}
	}
}

func TestValidBaudRateAboveNamedRangeIsAllowed(t *testing.T) {
	if !ValidBaudRate(230400) {
		t.Errorf("expected 230400 to be valid (above highest named rate, below max)")
	}
	if !ValidBaudRate(maxBaudRate) {
		t.Errorf("expected maxBaudRate itself to be valid")
	}
}

func TestValidBaudRateRejectsOutOfRange(t *testing.T) {
	cases := []int{0, -1, maxBaudRate + 1}
	for _, rate := range cases {
		if ValidBaudRate(rate) {
			t.Errorf("expected %d to be rejected", rate)
		}
	}
}

func TestValidBaudRateRejectsUnnamedLowRate(t *testing.T) {
	if ValidBaudRate(1200) {
		t.Errorf("1200 is neither a named rate nor above the named range, should be rejected")
	}
}
