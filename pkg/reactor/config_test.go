package reactor

import "testing"

func TestConfig_ValidateDefaultsOK(t *testing.T) {
	if err := DefaultConfig().Validate(nil); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfig_ValidateRejectsZeroMaxConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 0
	if err := cfg.Validate(nil); err == nil {
		t.Fatalf("expected an error for zero MaxConnections")
	}
}

func TestConfig_ValidateRejectsZeroWheelTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WheelTick = 0
	if err := cfg.Validate(nil); err == nil {
		t.Fatalf("expected an error for zero WheelTick")
	}
}
