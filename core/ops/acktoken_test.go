package ops_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"huntdesk-ops/core/ops"
)

func TestAckTokenRoundTrip(t *testing.T) {
	svc := ops.NewAckTokenService("test-secret", 15*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := svc.Sign("evt-42", "w1", now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := svc.Verify(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.EventID != "evt-42" || claims.WindowLabel != "w1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAckTokenExpires(t *testing.T) {
	svc := ops.NewAckTokenService("test-secret", 15*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := svc.Sign("evt-42", "", now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(token, now.Add(14*time.Minute)); err != nil {
		t.Fatalf("token should still verify: %v", err)
	}
	if _, err := svc.Verify(token, now.Add(15*time.Minute)); !errors.Is(err, ops.ErrBadAckToken) {
		t.Fatalf("expired token verified: %v", err)
	}
}

func TestAckTokenBindsEventID(t *testing.T) {
	svc := ops.NewAckTokenService("test-secret", 15*time.Minute)
	now := time.Now().UTC()
	tokenA, _ := svc.Sign("evt-a", "", now)
	tokenB, _ := svc.Sign("evt-b", "", now)
	claims, err := svc.Verify(tokenA, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.EventID == "evt-b" {
		t.Fatalf("token for evt-a verified as evt-b")
	}
	// Splicing the payload of one token onto the signature of another must fail.
	partsA := strings.Split(tokenA, ".")
	partsB := strings.Split(tokenB, ".")
	spliced := partsB[0] + "." + partsA[1]
	if _, err := svc.Verify(spliced, now); !errors.Is(err, ops.ErrBadAckToken) {
		t.Fatalf("spliced token verified: %v", err)
	}
}

func TestAckTokenRejectsTampering(t *testing.T) {
	svc := ops.NewAckTokenService("test-secret", 15*time.Minute)
	other := ops.NewAckTokenService("other-secret", 15*time.Minute)
	now := time.Now().UTC()
	token, _ := svc.Sign("evt-1", "", now)
	for _, bad := range []string{
		"",
		"nodots",
		"a.b.c",
		token + "x",
		"!!!." + strings.Split(token, ".")[1],
	} {
		if _, err := svc.Verify(bad, now); !errors.Is(err, ops.ErrBadAckToken) {
			t.Fatalf("malformed token %q verified: %v", bad, err)
		}
	}
	if _, err := other.Verify(token, now); !errors.Is(err, ops.ErrBadAckToken) {
		t.Fatalf("cross-secret token verified: %v", err)
	}
}

func TestAckTokenRejectsEmptyEventID(t *testing.T) {
	svc := ops.NewAckTokenService("test-secret", time.Minute)
	if _, err := svc.Sign("   ", "", time.Now()); err == nil {
		t.Fatalf("empty event id signed")
	}
}
