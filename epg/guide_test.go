package epg

import (
	"testing"
	"time"
)

func TestGuideSetAndGet(t *testing.T) {
	guide := NewGuide()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	guide.SetProgrammes("News 24", []Programme{
		{Title: "Evening Show", Start: base.Add(6 * time.Hour), Stop: base.Add(7 * time.Hour)},
		{Title: "Midday News", Start: base, Stop: base.Add(time.Hour)},
	})

	t.Run("programmes are sorted by start time", func(t *testing.T) {
		programmes := guide.Programmes("News 24")
		if len(programmes) != 2 {
			t.Fatalf("expected 2 programmes, got %d", len(programmes))
		}
		if programmes[0].Title != "Midday News" {
			t.Errorf("first programme = %q, want %q", programmes[0].Title, "Midday News")
		}
	})

	t.Run("unknown channel returns nil", func(t *testing.T) {
		if programmes := guide.Programmes("nope"); programmes != nil {
			t.Errorf("expected nil, got %v", programmes)
		}
	})

	t.Run("channels lists known names", func(t *testing.T) {
		channels := guide.Channels()
		if len(channels) != 1 || channels[0] != "News 24" {
			t.Errorf("Channels() = %v", channels)
		}
	})
}

func TestGuideCurrent(t *testing.T) {
	guide := NewGuide()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guide.now = func() time.Time { return base.Add(30 * time.Minute) }

	guide.SetProgrammes("News 24", []Programme{
		{Title: "Midday News", Start: base, Stop: base.Add(time.Hour)},
		{Title: "Afternoon Show", Start: base.Add(time.Hour), Stop: base.Add(2 * time.Hour)},
	})

	current, ok := guide.Current("News 24")
	if !ok {
		t.Fatal("expected a current programme")
	}
	if current.Title != "Midday News" {
		t.Errorf("current = %q, want %q", current.Title, "Midday News")
	}

	guide.now = func() time.Time { return base.Add(3 * time.Hour) }
	if _, ok := guide.Current("News 24"); ok {
		t.Error("expected no current programme after schedule end")
	}
}
