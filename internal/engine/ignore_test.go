package engine

import "testing"

func TestIgnoreMatcher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{name: "dotfile matches glob", patterns: []string{".*"}, path: ".DS_Store", want: true},
		{name: "nested dotfile matches on basename", patterns: []string{".*"}, path: "profiles/.hidden", want: true},
		{name: "plain name matches directory", patterns: []string{"cache"}, path: "cache", want: true},
		{name: "plain name does not match substring", patterns: []string{"cache"}, path: "cachette", want: false},
		{name: "slash pattern matches full path", patterns: []string{"logs/*.log"}, path: "logs/latest.log", want: true},
		{name: "slash pattern does not match other dirs", patterns: []string{"logs/*.log"}, path: "other/latest.log", want: false},
		{name: "no patterns", patterns: nil, path: "anything", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns...)
			if got := m.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_nilSafe(t *testing.T) {
	t.Parallel()

	var m *IgnoreMatcher
	if m.Match("anything") {
		t.Error("nil matcher matched a path")
	}
}
