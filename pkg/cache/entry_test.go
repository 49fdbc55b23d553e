package cache

import (
	"testing"
	"time"
)

func TestEntryExpiration(t *testing.T) {
	fresh := &Entry{Expires: time.Now().Add(time.Minute)}
	if fresh.IsExpired() {
		t.Error("entry expiring in a minute should not be expired")
	}
	if fresh.TTL() <= 0 {
		t.Errorf("TTL = %v, want > 0", fresh.TTL())
	}

	stale := &Entry{Expires: time.Now().Add(-time.Minute)}
	if !stale.IsExpired() {
		t.Error("entry expired a minute ago should be expired")
	}
	if stale.TTL() != 0 {
		t.Errorf("TTL = %v, want 0 for expired entry", stale.TTL())
	}
}
