package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustClock(t *testing.T, s string) time.Duration {
	t.Helper()
	d, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q) error = %v", s, err)
	}
	return d
}

func TestParseClock(t *testing.T) {
	if got := mustClock(t, "22:00"); got != 22*time.Hour {
		t.Errorf("ParseClock(22:00) = %v", got)
	}
	if got := mustClock(t, "08:30"); got != 8*time.Hour+30*time.Minute {
		t.Errorf("ParseClock(08:30) = %v", got)
	}
	for _, bad := range []string{"25:00", "12:75", "noon", ""} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) expected error", bad)
		}
	}
}

func TestPolicyMessenger_QuietHoursWrapMidnight(t *testing.T) {
	p := NewPolicyMessenger(nil, Policy{
		QuietStart: 22 * time.Hour,
		QuietEnd:   8 * time.Hour,
		DailyQuota: 10,
		Verified:   true,
	})

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		hour int
		want bool
	}{
		{23, false}, // inside quiet hours
		{2, false},
		{7, false},
		{8, true}, // quiet hours end at 08:00 exactly
		{12, true},
		{21, true},
		{22, false}, // quiet hours start at 22:00 exactly
	}
	for _, tc := range cases {
		now := day.Add(time.Duration(tc.hour) * time.Hour)
		if got := p.CanSend(now); got != tc.want {
			t.Errorf("CanSend(%02d:00) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestPolicyMessenger_DailyQuota(t *testing.T) {
	sent := 0
	p := NewPolicyMessenger(SenderFunc(func(_ context.Context, text string) error {
		sent++
		return nil
	}), Policy{DailyQuota: 2, Verified: true})

	ctx := context.Background()
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := p.SendAlert(ctx, "one", noon); err != nil {
		t.Fatalf("SendAlert(one) error = %v", err)
	}
	if err := p.SendAlert(ctx, "two", noon); err != nil {
		t.Fatalf("SendAlert(two) error = %v", err)
	}
	if err := p.SendAlert(ctx, "three", noon); err == nil {
		t.Error("SendAlert over quota should fail")
	}
	if sent != 2 {
		t.Errorf("transport invoked %d times, want 2", sent)
	}
	if p.CanSend(noon) {
		t.Error("CanSend = true with quota exhausted")
	}
}

func TestPolicyMessenger_FailedSendNotCounted(t *testing.T) {
	calls := 0
	p := NewPolicyMessenger(SenderFunc(func(_ context.Context, text string) error {
		calls++
		if calls == 1 {
			return errSendFailed
		}
		return nil
	}), Policy{DailyQuota: 1, Verified: true})

	ctx := context.Background()
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := p.SendAlert(ctx, "flaky", noon); err == nil {
		t.Fatal("first send should propagate the transport error")
	}
	// The failed attempt did not consume the quota.
	if err := p.SendAlert(ctx, "retry", noon); err != nil {
		t.Errorf("retry error = %v, want success", err)
	}
}

var errSendFailed = errors.New("transport down")

func TestPolicyMessenger_SendAlertUsesCallerClock(t *testing.T) {
	sent := 0
	p := NewPolicyMessenger(SenderFunc(func(_ context.Context, text string) error {
		sent++
		return nil
	}), Policy{
		QuietStart: 22 * time.Hour,
		QuietEnd:   8 * time.Hour,
		DailyQuota: 5,
		Verified:   true,
	})

	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := p.SendAlert(ctx, "late", day.Add(23*time.Hour)); err == nil {
		t.Error("SendAlert inside the caller's quiet hours should fail")
	}
	if err := p.SendAlert(ctx, "midday", day.Add(12*time.Hour)); err != nil {
		t.Errorf("SendAlert at noon error = %v", err)
	}
	if sent != 1 {
		t.Errorf("transport invoked %d times, want 1", sent)
	}
}

func TestPolicyMessenger_SetPolicy(t *testing.T) {
	p := NewPolicyMessenger(nil, Policy{DailyQuota: 5})
	if p.PhoneVerified() {
		t.Fatal("PhoneVerified = true before verification")
	}
	p.SetPolicy(Policy{DailyQuota: 5, Verified: true})
	if !p.PhoneVerified() {
		t.Error("PhoneVerified = false after reload set it")
	}
}
