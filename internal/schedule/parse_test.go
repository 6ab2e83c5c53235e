package schedule

import (
	"testing"
	"time"
)

func TestWhenToRangeParsesTomorrow(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Colombo")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	p := NewParser(loc)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)

	start, end, ok := p.WhenToRange("schedule a call tomorrow at 2pm", now, 45*time.Minute)
	if !ok {
		t.Fatalf("WhenToRange() ok = false, want true")
	}
	want := time.Date(2026, 3, 3, 14, 0, 0, 0, loc)
	if !start.Equal(want) {
		t.Fatalf("start = %v, want %v", start, want)
	}
	if !end.Equal(want.Add(45 * time.Minute)) {
		t.Fatalf("end = %v, want %v", end, want.Add(45*time.Minute))
	}
}

func TestWhenToRangeRejectsVagueText(t *testing.T) {
	p := NewParser(time.UTC)
	if _, _, ok := p.WhenToRange("let's catch up sometime", time.Now(), 45*time.Minute); ok {
		t.Fatalf("WhenToRange() ok = true for text with no time expression")
	}
}

func TestExtractEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"meet with jane@example.com tomorrow", "jane@example.com"},
		{"email bob.smith+crm@corp-mail.co.uk please", "bob.smith+crm@corp-mail.co.uk"},
		{"no address here", ""},
	}
	for _, tc := range cases {
		if got := ExtractEmail(tc.in); got != tc.want {
			t.Fatalf("ExtractEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
