package output

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"yaml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{" json ", FormatJSON, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	if !ValidateFormat(FormatYAML) || !ValidateFormat(FormatJSON) {
		t.Error("built-in formats should validate")
	}
	if ValidateFormat(Format("csv")) {
		t.Error("unknown format should not validate")
	}
}

type sample struct {
	Model string    `json:"model" yaml:"model"`
	Dims  int       `json:"dims" yaml:"dims"`
	Vec   []float32 `json:"vec" yaml:"vec"`
}

func TestYAMLFormatter(t *testing.T) {
	f := NewYAMLFormatter()

	out, err := f.Format(sample{Model: "mini_lm_v2", Dims: 3, Vec: []float32{1, 2, 3}})
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}

	var got sample
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not valid yaml: %v\n%s", err, out)
	}
	if got.Model != "mini_lm_v2" || got.Dims != 3 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestJSONFormatter(t *testing.T) {
	f := NewJSONFormatter()

	out, err := f.Format(sample{Model: "jina", Dims: 768})
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}

	var got sample
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not valid json: %v\n%s", err, out)
	}
	if got.Model != "jina" || got.Dims != 768 {
		t.Errorf("round trip = %+v", got)
	}
	if !strings.Contains(out, "  ") {
		t.Error("json output should be indented")
	}
}

func TestGetFormatter(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSON} {
		f, err := GetFormatter(format)
		if err != nil {
			t.Errorf("GetFormatter(%s) error: %v", format, err)
		}
		if f == nil {
			t.Errorf("GetFormatter(%s) returned nil", format)
		}
	}

	if _, err := GetFormatter(Format("csv")); err == nil {
		t.Error("GetFormatter(csv) should fail")
	}
}
