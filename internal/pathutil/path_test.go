package pathutil

import "testing"

func TestLastSegment(t *testing.T) {
	cases := map[string]string{
		"/a/b/c":   "c",
		"/a/b/c/":  "c",
		"a":        "a",
		"":         "",
		`a\b\c`:    "c",
	}
	for in, want := range cases {
		if got := LastSegment(in); got != want {
			t.Errorf("LastSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSub(t *testing.T) {
	if !IsSub("/a/b/c", "/a/b") {
		t.Error("expected /a/b/c to be sub of /a/b")
	}
	if IsSub("/a/b", "/a/b") {
		t.Error("exact path must not be sub of itself")
	}
	if IsSub("/a", "/a/b") {
		t.Error("parent must not be sub of child")
	}
}

func TestIsParentOrExact(t *testing.T) {
	if !IsParentOrExact("/a/b", "/a/b") {
		t.Error("exact path should match")
	}
	if !IsParentOrExact("/a", "/a/b/c") {
		t.Error("ancestor should match")
	}
	if IsParentOrExact("/a/b/c", "/a") {
		t.Error("descendant target should not match as parent")
	}
}

func TestIsSubDirLike(t *testing.T) {
	for _, s := range []string{"CD1", "cd2", "Disc 2", "DISC2", "sample", "Part1"} {
		if !IsSubDirLike(s) {
			t.Errorf("expected %q to look like a sub-dir", s)
		}
	}
	for _, s := range []string{"Movie.2020.1080p", "Season 1"} {
		if IsSubDirLike(s) {
			t.Errorf("did not expect %q to look like a sub-dir", s)
		}
	}
}

func TestGetMountPath(t *testing.T) {
	volumes := []string{"/mnt/data", "/mnt/data/fast", "/mnt/other"}
	if got := GetMountPath("/mnt/data/fast/downloads/x", volumes); got != "/mnt/data/fast" {
		t.Errorf("got %q, want longest-prefix match /mnt/data/fast", got)
	}
	if got := GetMountPath("/unrelated", volumes); got != "" {
		t.Errorf("expected no match, got %q", got)
	}
}
