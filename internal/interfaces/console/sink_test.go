package console

import (
	"bytes"
	"testing"
	"time"
)

func TestSinkWrites(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkTo(&buf)

	_ = s.WriteLive("\rchain 10")
	_ = s.WriteSnapshot(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), "milestone 10")
	_ = s.NewLine()

	want := "\rchain 10\n2024-05-01 08:30:00 milestone 10\n\n\n"
	if buf.String() != want {
		t.Errorf("unexpected output %q", buf.String())
	}
}
