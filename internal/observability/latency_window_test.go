package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe("chat_completion", 500)
	w.Observe("chat_completion", 700)
	w.Observe("chat_completion", 900)
	w.ObserveIndicator("fallback_reply")
	w.ObserveIndicator("fallback_reply")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 3 || s.LastMS != 900 || s.P50MS != 700 {
		t.Fatalf("unexpected stage stats: %+v", s)
	}
	if s.TargetP95MS != 4000 {
		t.Fatalf("TargetP95MS = %.2f, want 4000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("unexpected indicators: %+v", snap.Indicators)
	}
}

func TestLatencyWindowWrapsAround(t *testing.T) {
	w := newLatencyWindow(2)
	w.Observe("reply_to_speech_start", 10)
	w.Observe("reply_to_speech_start", 20)
	w.Observe("reply_to_speech_start", 30)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 25 {
		t.Fatalf("AvgMS = %.2f, want 25 (oldest sample evicted)", s.AvgMS)
	}
}

func TestMetricsObserveChatFeedsWindow(t *testing.T) {
	m := NewMetrics("test_obs_" + time.Now().Format("150405000000000"))
	m.ObserveChat("api_error", 120*time.Millisecond)

	snap := m.SnapshotStages()
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != "chat_completion" {
		t.Fatalf("unexpected stages: %+v", snap.Stages)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "fallback_reply" {
		t.Fatalf("unexpected indicators: %+v", snap.Indicators)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "json")
	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"component":"test"`) || !strings.Contains(out, `"service":"diaa"`) {
		t.Fatalf("missing structured fields: %s", out)
	}
}
