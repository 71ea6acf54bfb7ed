package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at rahim@diu.edu.bd or 01712-345678 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIBengaliDigitsAndKeys(t *testing.T) {
	out, changed := RedactPII("আমার নম্বর ০১৭১২৩৪৫৬৭৮, key sk-abcdefghijklmnop1234")
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if !strings.Contains(out, "[REDACTED_PHONE]") || !strings.Contains(out, "[REDACTED_KEY]") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	in := "What programs does DIU offer in 2024?"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v", in, out, changed)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"short":                "*****",
		"abcdefghijklmnopWXYZ": "********WXYZ",
		"  abcdefghijWXYZ  ":   "********WXYZ",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogSafeTruncates(t *testing.T) {
	if got := LogSafe("ভর্তি তথ্য দিন", 5); got != "ভর্তি…" {
		t.Fatalf("LogSafe() = %q", got)
	}
	if got := LogSafe("hello", 0); got != "hello" {
		t.Fatalf("LogSafe() = %q", got)
	}
}
