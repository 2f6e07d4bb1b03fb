package analytics

import (
	"reflect"
	"testing"
)

func TestWordFrequency(t *testing.T) {
	a := &Analytics{}

	tests := []struct {
		name string
		text string
		want map[string]int
	}{
		{
			name: "latin words drop stopwords and punctuation",
			text: "The Tiger Vanguard, the tiger!",
			want: map[string]int{"tiger": 2, "vanguard": 1},
		},
		{
			name: "cjk bigrams",
			text: "虎先锋",
			want: map[string]int{"虎先": 1, "先锋": 1},
		},
		{
			name: "mixed scripts split runs",
			text: "打败boss 2次",
			want: map[string]int{"打败": 1, "boss": 1, "2": 1, "次": 1},
		},
		{
			name: "stop characters",
			text: "的了 我",
			want: map[string]int{},
		},
		{
			name: "apostrophes trimmed",
			text: "'wukong' don't",
			want: map[string]int{"wukong": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.WordFrequency(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WordFrequency(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsStopword(t *testing.T) {
	if !IsStopword("The") {
		t.Error("IsStopword(The) = false")
	}
	if IsStopword("wukong") {
		t.Error("IsStopword(wukong) = true")
	}
}
