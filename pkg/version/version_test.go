package version

import "testing"

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version == "" || info.GitCommit == "" || info.BuildDate == "" || info.GoVersion == "" {
		t.Fatalf("expected non-empty version info")
	}
}

func TestGetShortCommit(t *testing.T) {
	orig := GitCommit
	defer func() { GitCommit = orig }()

	GitCommit = "abcdef123456"
	if GetShortCommit() != "abcdef1" {
		t.Fatalf("expected short commit")
	}
	GitCommit = "abc"
	if GetShortCommit() != "abc" {
		t.Fatalf("expected short commit to pass through")
	}
}

func TestStringAndUserAgent(t *testing.T) {
	origV, origC, origB := Version, GitCommit, BuildDate
	defer func() { Version, GitCommit, BuildDate = origV, origC, origB }()

	Version, GitCommit, BuildDate = "v1.2.3", "0123456789", "2026-01-01"
	if got := String(); got != "threader v1.2.3 (0123456, built 2026-01-01)" {
		t.Fatalf("unexpected string: %q", got)
	}
	if got := UserAgent(); got != "threader/v1.2.3 (+https://github.com/kiliankoe/threader)" {
		t.Fatalf("unexpected user agent: %q", got)
	}
}
