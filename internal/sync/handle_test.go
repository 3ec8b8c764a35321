package sync

import (
	"strings"
	"testing"
)

func TestGenerateHandle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		code     string
		expected string
	}{
		{
			name:     "латиница с интервали",
			title:    "Baby Bottle Classic",
			code:     "10042",
			expected: "baby-bottle-classic-10042",
		},
		{
			name:     "кирилица се транслитерира",
			title:    "Бебешко шише",
			code:     "555",
			expected: "bebeshko-shishe-555",
		},
		{
			name:     "специални знаци се изчистват",
			title:    "Шише (240 мл.) / синьо!",
			code:     "77",
			expected: "shishe-240-ml-sinyo-77",
		},
		{
			name:     "празно име пада на product префикс",
			title:    "",
			code:     "123",
			expected: "product-123",
		},
		{
			name:     "буквите щ и ъ",
			title:    "Къща Щъркел",
			code:     "9",
			expected: "kashta-shtarkel-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateHandle(tt.title, tt.code)
			if got != tt.expected {
				t.Errorf("GenerateHandle(%q, %q) = %q, want %q", tt.title, tt.code, got, tt.expected)
			}
		})
	}
}

func TestGenerateHandle_Truncates(t *testing.T) {
	long := strings.Repeat("дълго име на продукт ", 10)
	got := GenerateHandle(long, "42")
	if len(got) > 100 {
		t.Errorf("handle length = %d, want <= 100", len(got))
	}
}

func TestGenerateHandle_CollapsesDashes(t *testing.T) {
	got := GenerateHandle("A  --  B", "1")
	if strings.Contains(got, "--") {
		t.Errorf("handle contains dash run: %q", got)
	}
}
