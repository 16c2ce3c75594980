package mailbox

import (
	"fmt"
	"sync"
	"testing"
)

func TestPublishTakeLatest(t *testing.T) {
	box := New("CARD:")

	if !box.Publish("CARD:A100") {
		t.Fatal("expected frame to be accepted")
	}
	if !box.Publish("CARD:B200") {
		t.Fatal("expected frame to be accepted")
	}

	// Only the most recent unread scan survives.
	token, ok := box.TakeLatest()
	if !ok || token != "B200" {
		t.Fatalf("TakeLatest = %q, %v, want B200, true", token, ok)
	}

	// The slot is cleared by the read.
	token, ok = box.TakeLatest()
	if ok || token != "" {
		t.Fatalf("second TakeLatest = %q, %v, want empty, false", token, ok)
	}
}

func TestPublishNormalizesToken(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "CARD:S1001", "S1001"},
		{"surrounding space", "  CARD:S1001  ", "S1001"},
		{"internal space", "CARD: 12 34 56 ", "123456"},
		{"tabs", "CARD:\tAB\tCD", "ABCD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			box := New("CARD:")
			if !box.Publish(tc.raw) {
				t.Fatalf("Publish(%q) rejected", tc.raw)
			}
			token, ok := box.TakeLatest()
			if !ok || token != tc.want {
				t.Fatalf("TakeLatest = %q, %v, want %q, true", token, ok, tc.want)
			}
		})
	}
}

func TestPublishRejectsMalformedFrames(t *testing.T) {
	box := New("CARD:")
	for _, raw := range []string{"", "noise", "card:lowercase", "CARD:", "CARD:   ", "TAG:S1001"} {
		if box.Publish(raw) {
			t.Errorf("Publish(%q) accepted, want rejected", raw)
		}
	}
	if token, ok := box.TakeLatest(); ok {
		t.Fatalf("malformed frames reached the slot: %q", token)
	}
}

func TestTakeLatestAtMostOnce(t *testing.T) {
	box := New("CARD:")

	for round := 0; round < 100; round++ {
		box.Publish(fmt.Sprintf("CARD:T%d", round))

		const takers = 8
		got := make([]string, takers)
		var wg sync.WaitGroup
		for i := 0; i < takers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if token, ok := box.TakeLatest(); ok {
					got[i] = token
				}
			}(i)
		}
		wg.Wait()

		nonEmpty := 0
		for _, token := range got {
			if token != "" {
				nonEmpty++
			}
		}
		if nonEmpty != 1 {
			t.Fatalf("round %d: %d takers observed the token, want exactly 1", round, nonEmpty)
		}
	}
}
