package pathutil

import "testing"

func TestToRelative(t *testing.T) {
	cases := []struct {
		name string
		path string
		root string
		want string
	}{
		{"inside root", "/repo/src/main.go", "/repo", "src/main.go"},
		{"outside root", "/other/file.go", "/repo", "/other/file.go"},
		{"already relative", "src/main.go", "/repo", "src/main.go"},
		{"empty path", "", "/repo", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ToRelative(c.path, c.root)
			if got != c.want {
				t.Errorf("ToRelative(%q, %q) = %q, want %q", c.path, c.root, got, c.want)
			}
		})
	}
}

func TestToCanonical(t *testing.T) {
	got := ToCanonical("/repo/src/main.go", "/repo")
	if got != "src/main.go" {
		t.Errorf("ToCanonical = %q, want %q", got, "src/main.go")
	}
}

func TestToAbsolute(t *testing.T) {
	got := ToAbsolute("src/main.go", "/repo")
	want := "/repo/src/main.go"
	if got != want {
		t.Errorf("ToAbsolute = %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	root := "/repo"
	abs := "/repo/pkg/nested/file.go"
	rel := ToCanonical(abs, root)
	back := ToAbsolute(rel, root)
	if back != abs {
		t.Errorf("round trip: got %q, want %q", back, abs)
	}
}
