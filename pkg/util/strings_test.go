package util

import (
	"reflect"
	"testing"
)

func TestSplitCommaSeparated(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "single", in: "node1", want: []string{"node1"}},
		{name: "multiple with spaces", in: "node1, node2 ,node3", want: []string{"node1", "node2", "node3"}},
		{name: "trailing comma", in: "a,b,", want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitCommaSeparated(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCommaSeparated(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "my-slice", want: "my-slice"},
		{in: "my slice", want: "my-slice"},
		{in: "exp/2024", want: "exp-2024"},
		{in: "node_1", want: "node_1"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "my-slice", want: true},
		{in: "node_1", want: true},
		{in: "", want: false},
		{in: "has space", want: false},
		{in: "../escape", want: false},
	}

	for _, tt := range tests {
		if got := IsSafeName(tt.in); got != tt.want {
			t.Errorf("IsSafeName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
