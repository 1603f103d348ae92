package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)
}

func TestSecurityConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	sec := cfg.Security
	if sec.SoftLockThreshold != 6 {
		t.Errorf("SoftLockThreshold: got %d, want 6", sec.SoftLockThreshold)
	}
	if sec.HardLockThreshold != 10 {
		t.Errorf("HardLockThreshold: got %d, want 10", sec.HardLockThreshold)
	}
	if sec.HardLockDuration != 30*time.Minute {
		t.Errorf("HardLockDuration: got %v, want 30m", sec.HardLockDuration)
	}
	if sec.DelayBase != 500*time.Millisecond {
		t.Errorf("DelayBase: got %v, want 500ms", sec.DelayBase)
	}
	if sec.DelayMax != 10*time.Second {
		t.Errorf("DelayMax: got %v, want 10s", sec.DelayMax)
	}
	if sec.BlacklistThreshold != 20 {
		t.Errorf("BlacklistThreshold: got %d, want 20", sec.BlacklistThreshold)
	}
	if sec.BlacklistWindow != 30*time.Minute {
		t.Errorf("BlacklistWindow: got %v, want 30m", sec.BlacklistWindow)
	}
	if sec.BanDuration != time.Hour {
		t.Errorf("BanDuration: got %v, want 1h", sec.BanDuration)
	}
	if sec.RateLimitThreshold != 10 {
		t.Errorf("RateLimitThreshold: got %d, want 10", sec.RateLimitThreshold)
	}
	if sec.RateLimitWindow != 15*time.Minute {
		t.Errorf("RateLimitWindow: got %v, want 15m", sec.RateLimitWindow)
	}
	if sec.CodeExpiry != 15*time.Minute {
		t.Errorf("CodeExpiry: got %v, want 15m", sec.CodeExpiry)
	}
	if sec.MaxVerifyAttempts != 5 {
		t.Errorf("MaxVerifyAttempts: got %d, want 5", sec.MaxVerifyAttempts)
	}
	if sec.MaxIssuancesPerWindow != 5 {
		t.Errorf("MaxIssuancesPerWindow: got %d, want 5", sec.MaxIssuancesPerWindow)
	}
}

func TestSecurityConfig_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("SOFT_LOCK_THRESHOLD", "3")
	os.Setenv("HARD_LOCK_THRESHOLD", "5")
	os.Setenv("THROTTLE_DELAY_BASE", "250ms")
	os.Setenv("BAN_DURATION", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.SoftLockThreshold != 3 {
		t.Errorf("SoftLockThreshold: got %d, want 3", cfg.Security.SoftLockThreshold)
	}
	if cfg.Security.HardLockThreshold != 5 {
		t.Errorf("HardLockThreshold: got %d, want 5", cfg.Security.HardLockThreshold)
	}
	if cfg.Security.DelayBase != 250*time.Millisecond {
		t.Errorf("DelayBase: got %v, want 250ms", cfg.Security.DelayBase)
	}
	if cfg.Security.BanDuration != 2*time.Hour {
		t.Errorf("BanDuration: got %v, want 2h", cfg.Security.BanDuration)
	}
}

func TestSecurityConfig_SoftThresholdMustBeBelowHard(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("SOFT_LOCK_THRESHOLD", "10")
	os.Setenv("HARD_LOCK_THRESHOLD", "6")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted soft threshold above hard threshold")
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Unsetenv("JWT_SECRET")
	t.Cleanup(os.Clearenv)

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a missing JWT_SECRET")
	}
}

func TestLoad_RejectsShortJWTSecretInProduction(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("JWT_SECRET", "short-but-over-16ch")
	os.Setenv("ENV", "production")
	t.Cleanup(os.Clearenv)

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a short JWT_SECRET in production")
	}
}

func TestLoad_RequiresDBPassword(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!!")
	os.Unsetenv("DB_PASSWORD")
	t.Cleanup(os.Clearenv)

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a missing DB_PASSWORD")
	}
}
