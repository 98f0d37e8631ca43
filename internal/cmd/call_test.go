package cmd

import (
	"reflect"
	"testing"
)

func TestParseToolArgs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]interface{}
		wantErr bool
	}{
		{"empty", "", map[string]interface{}{}, false},
		{"object", `{"text": "hi", "limit": 3}`, map[string]interface{}{"text": "hi", "limit": float64(3)}, false},
		{"not json", "text=hi", nil, true},
		{"json array", `["a"]`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseToolArgs(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseToolArgs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseToolArgs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseToolList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"embed", []string{"emb_embed"}},
		{"embed,similarity", []string{"emb_embed", "emb_similarity"}},
		{"emb_models, search", []string{"emb_models", "emb_search"}},
		{" , ", nil},
	}

	for _, tt := range tests {
		if got := parseToolList(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseToolList(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
