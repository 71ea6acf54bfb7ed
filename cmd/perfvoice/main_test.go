package main

import (
	"testing"
	"time"
)

func TestWSURLFor(t *testing.T) {
	got, err := wsURLFor("https://kiosk.example.edu/diaa/", "/v1/session/ws?session_id=abc")
	if err != nil {
		t.Fatalf("wsURLFor() error = %v", err)
	}
	want := "wss://kiosk.example.edu/diaa/v1/session/ws?session_id=abc"
	if got != want {
		t.Fatalf("wsURLFor() = %q, want %q", got, want)
	}

	if _, err := wsURLFor("ftp://host", "/v1/session/ws"); err == nil {
		t.Fatalf("wsURLFor(ftp) error = nil, want error")
	}
	if _, err := wsURLFor("http://host", ""); err == nil {
		t.Fatalf("wsURLFor(empty path) error = nil, want error")
	}
}

func TestSplitPCMKeepsSampleAlignment(t *testing.T) {
	pcm := make([]byte, 3201) // odd trailing byte is dropped
	chunks := splitPCM(pcm, 16000, 45)
	total := 0
	for i, c := range chunks {
		if len(c)%2 != 0 {
			t.Fatalf("chunk %d has odd length %d", i, len(c))
		}
		total += len(c)
	}
	if total != 3200 {
		t.Fatalf("total bytes = %d, want 3200", total)
	}
	if len(chunks[0]) != 1440 {
		t.Fatalf("first chunk = %d bytes, want 1440", len(chunks[0]))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		raw  string
		kind string
		ok   bool
	}{
		{raw: `{"type":"stt_committed","text":"hi"}`, kind: eventCommitted, ok: true},
		{raw: `{"type":"assistant_message","role":"assistant","text":"hello"}`, kind: eventReply, ok: true},
		{raw: `{"type":"assistant_message","role":"user","text":"hi"}`},
		{raw: `{"type":"error_event","code":"turn_failed"}`, kind: eventFailed, ok: true},
		{raw: `{"type":"state_event"}`},
		{raw: `not json`},
	}
	for _, tc := range cases {
		ev, ok := classify([]byte(tc.raw))
		if ok != tc.ok || ev.kind != tc.kind {
			t.Fatalf("classify(%s) = (%q, %v), want (%q, %v)", tc.raw, ev.kind, ok, tc.kind, tc.ok)
		}
	}
}

func TestPercentiles(t *testing.T) {
	samples := []time.Duration{5, 1, 4, 2, 3}
	p50, p95 := percentiles(samples)
	if p50 != 3 || p95 != 5 {
		t.Fatalf("percentiles = (%d, %d), want (3, 5)", p50, p95)
	}
	if a, b := percentiles(nil); a != 0 || b != 0 {
		t.Fatalf("percentiles(nil) = (%d, %d), want zeros", a, b)
	}
}

func TestSplitTexts(t *testing.T) {
	got, err := splitTexts(" a | | b ")
	if err != nil || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitTexts() = %v, %v", got, err)
	}
	if _, err := splitTexts(" | "); err == nil {
		t.Fatalf("splitTexts(blank) error = nil, want error")
	}
	if got, _ := splitTexts(""); len(got) != len(defaultUtterances) {
		t.Fatalf("splitTexts(\"\") = %v, want defaults", got)
	}
}
