package session

import "testing"

func TestBlockSignaturesMatch(t *testing.T) {
	sigs := DefaultBlockSignatures()

	tests := []struct {
		name     string
		title    string
		content  string
		expected bool
	}{
		{"Robot check title", "Amazon.de: Robot Check", "", true},
		{"Uppercase captcha", "CAPTCHA required", "", true},
		{"Cyrillic block page", "Доступ ограничен", "", true},
		{"Captcha form in content", "Shop", `<input id="captchacharacters" name="field-keywords">`, true},
		{"Product page", "Blue Kettle 1.7L", "<h1>Blue Kettle</h1>", false},
		{"Empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := sigs.Match(tt.title, tt.content)
			if got != tt.expected {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.title, tt.content, got, tt.expected)
			}
		})
	}
}

func TestBlockSignaturesIgnoreEmptyEntries(t *testing.T) {
	sigs := BlockSignatures{Titles: []string{""}, Content: []string{""}}

	if _, blocked := sigs.Match("anything", "anything"); blocked {
		t.Error("empty signatures must never match")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected Policy
		ok       bool
	}{
		{"", PolicyPersistent, true},
		{"persistent", PolicyPersistent, true},
		{"long-lived", PolicyPersistent, true},
		{"per-operation", PolicyPerOperation, true},
		{"fresh", PolicyPerOperation, true},
		{"sometimes", "", false},
	}

	for _, tt := range tests {
		got, ok := ParsePolicy(tt.input)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("ParsePolicy(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.expected, tt.ok)
		}
	}
}
