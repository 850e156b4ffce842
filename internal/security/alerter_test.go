package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestAuditAlerterObserveTriggers(t *testing.T) {
	redis := miniredis.RunT(t)
	alerter := NewAuditAlerter(redis.Addr(), "", "test:alerts")
	if alerter == nil {
		t.Fatalf("expected alerter")
	}
	t.Cleanup(func() { _ = alerter.Close() })
	ctx := context.Background()
	var last AlertResult
	for i := 0; i < 15; i++ {
		result, err := alerter.Observe(ctx, "api.file_token.verify", "fail", "203.0.113.9")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if i < 14 && result.Triggered {
			t.Fatalf("triggered early at event %d", i+1)
		}
		last = result
	}
	if !last.Triggered || last.Count != 15 || last.Threshold != 15 {
		t.Fatalf("result = %+v, want trigger at 15", last)
	}
}

func TestAuditAlerterCountsPerIP(t *testing.T) {
	redis := miniredis.RunT(t)
	alerter := NewAuditAlerter(redis.Addr(), "", "test:alerts")
	t.Cleanup(func() { _ = alerter.Close() })
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := alerter.Observe(ctx, "api.token.verify", "fail", "198.51.100.1"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	result, err := alerter.Observe(ctx, "api.token.verify", "fail", "198.51.100.2")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("count for second ip = %d, want 1", result.Count)
	}
}

func TestAuditAlerterWindowRollsOver(t *testing.T) {
	redis := miniredis.RunT(t)
	alerter := NewAuditAlerter(redis.Addr(), "", "test:alerts")
	t.Cleanup(func() { _ = alerter.Close() })
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	alerter.now = func() time.Time { return now }
	ctx := context.Background()
	if _, err := alerter.Observe(ctx, "api.ai.rate_limit", "rate_limited", "10.0.0.1"); err != nil {
		t.Fatalf("observe: %v", err)
	}
	now = now.Add(time.Minute)
	result, err := alerter.Observe(ctx, "api.ai.rate_limit", "rate_limited", "10.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("count after window = %d, want 1", result.Count)
	}
}

func TestAuditAlerterObserveIgnoresUnknownRule(t *testing.T) {
	redis := miniredis.RunT(t)
	alerter := NewAuditAlerter(redis.Addr(), "", "test:alerts")
	t.Cleanup(func() { _ = alerter.Close() })
	result, err := alerter.Observe(context.Background(), "api.custom", "success", "127.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Triggered || result.Count != 0 {
		t.Fatalf("unexpected result for unknown rule: %+v", result)
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var alerter *AuditAlerter
	if NewAuditAlerter(" ", "", "") != nil {
		t.Fatalf("blank addr should yield nil alerter")
	}
	if _, err := alerter.Observe(context.Background(), "api.token.verify", "fail", "x"); err != nil {
		t.Fatalf("nil observe: %v", err)
	}
	if err := alerter.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
