package config

import (
	"testing"
	"time"

	"warden/internal/platform/testkit"
)

func TestPrefixNamespacing(t *testing.T) {
	t.Setenv("WARDEN_TEST_TICKETS_STAFF_ROLE_ID", "42")

	c := New().Prefix("WARDEN_TEST_").Prefix("TICKETS_")
	if got := c.MustString("STAFF_ROLE_ID"); got != "42" {
		t.Fatalf("MustString = %q, want 42", got)
	}
}

func TestMustStringPanicsWhenMissing(t *testing.T) {
	testkit.MustPanic(t, func() {
		New().Prefix("WARDEN_TEST_").MustString("DEFINITELY_NOT_SET")
	})
}

func TestMayAccessorsFallBack(t *testing.T) {
	c := New().Prefix("WARDEN_TEST_")

	if got := c.MayString("MISSING", "def"); got != "def" {
		t.Fatalf("MayString = %q", got)
	}
	if got := c.MayInt("MISSING", 7); got != 7 {
		t.Fatalf("MayInt = %d", got)
	}
	if got := c.MayDuration("MISSING", 30*time.Second); got != 30*time.Second {
		t.Fatalf("MayDuration = %s", got)
	}
}

func TestMayAccessorsParse(t *testing.T) {
	t.Setenv("WARDEN_TEST_INTERVAL", "45s")
	t.Setenv("WARDEN_TEST_MAX", "9")
	t.Setenv("WARDEN_TEST_REGIONS", "eu, na ,")

	c := New().Prefix("WARDEN_TEST_")
	if got := c.MayDuration("INTERVAL", 0); got != 45*time.Second {
		t.Fatalf("MayDuration = %s", got)
	}
	if got := c.MayInt("MAX", 0); got != 9 {
		t.Fatalf("MayInt = %d", got)
	}
	got := c.MayCSV("REGIONS", nil)
	if len(got) != 2 || got[0] != "eu" || got[1] != "na" {
		t.Fatalf("MayCSV = %v", got)
	}
}

func TestMayIntInvalidFallsBack(t *testing.T) {
	t.Setenv("WARDEN_TEST_MAX", "not-a-number")
	if got := New().Prefix("WARDEN_TEST_").MayInt("MAX", 3); got != 3 {
		t.Fatalf("MayInt = %d, want default 3", got)
	}
}
