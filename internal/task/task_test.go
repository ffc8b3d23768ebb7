package task

import "testing"

func TestAction_IsValid(t *testing.T) {
	if !ActionSlideshow.IsValid() {
		t.Error("expected slideshow action to be valid")
	}
	if Action("render-hologram").IsValid() {
		t.Error("expected unknown action to be invalid")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusDone, true},
		{StatusProcessing, StatusError, true},
		{StatusDone, StatusError, false},
		{StatusDone, StatusProcessing, false},
		{StatusError, StatusDone, false},
		{Status("bogus"), StatusDone, false},
	}

	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTask_IsTerminal(t *testing.T) {
	tk := newTask("t1", ActionSlideshow, "out/video.mp4", nil)
	if tk.IsTerminal() {
		t.Error("processing task should not be terminal")
	}

	if err := tk.complete("etag"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tk.IsTerminal() {
		t.Error("done task should be terminal")
	}
}

func TestTask_Clone(t *testing.T) {
	tk := newTask("t1", ActionSlideshow, "out/video.mp4", map[string]int{"images": 3})
	clone := tk.Clone()

	clone.Progress = 77
	clone.Status = StatusError

	if tk.Progress != 0 || tk.Status != StatusProcessing {
		t.Error("modifying a clone should not affect the original")
	}
}
