package gen_test

import (
	"testing"

	"tubegrab/pkg/gen"

	"github.com/google/uuid"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{name: "none", parts: nil, want: ""},
		{name: "single", parts: []string{"https://youtu.be/x"}, want: "https://youtu.be/x"},
		{name: "request fields", parts: []string{"https://youtu.be/x", "video", "mp4", "720", "false"}, want: "https://youtu.be/x|video|mp4|720|false"},
		{name: "empty parts keep their slot", parts: []string{"", "audio", ""}, want: "|audio|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := gen.Key(tt.parts...); got != tt.want {
				t.Errorf("Key(%q) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}
}

func TestUUIDv5(t *testing.T) {
	t.Parallel()

	parts := []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "audio", "mp3", "192", "false"}

	id := gen.UUIDv5(parts...)

	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("UUIDv5() = %q is not a uuid: %v", id, err)
	}

	if parsed.Version() != 5 {
		t.Errorf("UUIDv5() version = %d, want 5", parsed.Version())
	}

	if want := uuid.NewSHA1(uuid.NameSpaceURL, []byte(gen.Key(parts...))).String(); id != want {
		t.Errorf("UUIDv5() = %q, want %q", id, want)
	}

	if again := gen.UUIDv5(parts...); again != id {
		t.Errorf("UUIDv5() is not stable: %q then %q", id, again)
	}
}

func TestUUIDv5Distinct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []string
	}{
		{"container", []string{"u", "video", "mp4", "720"}, []string{"u", "video", "webm", "720"}},
		{"quality", []string{"u", "video", "mp4", "720"}, []string{"u", "video", "mp4", "1080"}},
		{"playlist flag", []string{"u", "audio", "mp3", "192", "false"}, []string{"u", "audio", "mp3", "192", "true"}},
	}

	for _, tt := range tests {
		if gen.UUIDv5(tt.a...) == gen.UUIDv5(tt.b...) {
			t.Errorf("%s: different requests share an id", tt.name)
		}
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	a, b := gen.RequestID(), gen.RequestID()

	parsed, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("RequestID() = %q is not a uuid: %v", a, err)
	}

	if parsed.Version() != 4 {
		t.Errorf("RequestID() version = %d, want 4", parsed.Version())
	}

	if a == b {
		t.Errorf("RequestID() repeated %q", a)
	}
}
