package support

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("ASNWALL_TEST_ENV", "value")
	if got := GetEnv("ASNWALL_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %s, want value", got)
	}

	if got := GetEnv("ASNWALL_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %s, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("ASNWALL_TEST_INT", "12")
	if got := GetEnvInt("ASNWALL_TEST_INT", 3); got != 12 {
		t.Fatalf("GetEnvInt returned %d, want 12", got)
	}

	t.Setenv("ASNWALL_TEST_INT_BAD", "twelve")
	if got := GetEnvInt("ASNWALL_TEST_INT_BAD", 3); got != 3 {
		t.Fatalf("GetEnvInt with invalid value returned %d, want 3", got)
	}
}
