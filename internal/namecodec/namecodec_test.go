package namecodec

import (
	"strings"
	"testing"
)

func TestSessionNameBasic(t *testing.T) {
	got := SessionName("myrepo", "feature/login")
	want := "ok-myrepo-feature-login"
	if got != want {
		t.Errorf("SessionName() = %q, want %q", got, want)
	}
}

func TestSessionNameSanitizesSpecialChars(t *testing.T) {
	got := SessionName("my.repo", "fix bug #123")
	if strings.ContainsAny(got, ". #") {
		t.Errorf("SessionName() = %q, contains disallowed characters", got)
	}
	if strings.Contains(got, "--") {
		t.Errorf("SessionName() = %q, runs of - were not collapsed", got)
	}
}

func TestSessionNameIdempotent(t *testing.T) {
	got := SessionName("myrepo", "feature/login")
	again := sanitize(constantsPrefix() + "-" + "myrepo" + "-" + "feature/login")
	if got != again {
		t.Fatalf("sanity check failed: %q vs %q", got, again)
	}
	if sanitize(got) != got {
		t.Errorf("sanitize(codec(x)) = %q, want %q (idempotent)", sanitize(got), got)
	}
}

func TestSessionNameTruncatesLongInputsWithHashSuffix(t *testing.T) {
	longBranch := strings.Repeat("a", 400)
	got := SessionName("myrepo", longBranch)
	if len(got) > 200 {
		t.Errorf("SessionName() length = %d, want <= 200", len(got))
	}

	other := SessionName("myrepo", strings.Repeat("a", 401))
	if got == other {
		t.Errorf("two different long inputs collapsed to the same truncated name %q", got)
	}
}

func TestWithSuffixDisambiguates(t *testing.T) {
	base := SessionName("myrepo", "login")
	s2 := WithSuffix(base, 2)
	s3 := WithSuffix(base, 3)
	if s2 == base || s3 == base || s2 == s3 {
		t.Errorf("WithSuffix did not produce distinct names: base=%q s2=%q s3=%q", base, s2, s3)
	}
	if WithSuffix(base, 1) != base {
		t.Errorf("WithSuffix(base, 1) should be a no-op")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"In Progress", "in-progress"},
		{"  Todo  ", "todo"},
		{"feature/login-v2", "feature-login-v2"},
		{"Done!!", "done"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// constantsPrefix avoids importing constants twice in the test for the
// idempotence sanity check; mirrors the package's own prefix.
func constantsPrefix() string { return "ok" }
