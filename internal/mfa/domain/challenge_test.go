package domain

import (
	"testing"
	"time"
)

func TestChallenge_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Challenge{ExpiresAt: now.Add(time.Minute)}
	if c.Expired(now) {
		t.Error("challenge should be live before ExpiresAt")
	}
	if !c.Expired(now.Add(time.Minute)) {
		t.Error("challenge should be expired at ExpiresAt")
	}
}
