package contracts

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Date
		wantErr bool
	}{
		{"valid date", "2024-01-15", Date("2024-01-15"), false},
		{"valid leap day", "2024-02-29", Date("2024-02-29"), false},
		{"invalid leap day", "2023-02-29", "", true},
		{"wrong layout", "15/01/2024", "", true},
		{"datetime not date", "2024-01-15T10:00:00Z", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewDateUsesUTC(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	// 2024-01-16 03:00 KST is still 2024-01-15 in UTC.
	local := time.Date(2024, 1, 16, 3, 0, 0, 0, loc)

	if got := NewDate(local); got != Date("2024-01-15") {
		t.Errorf("NewDate() = %q, want 2024-01-15", got)
	}
}

func TestDateOrdering(t *testing.T) {
	a := Date("2024-01-15")
	b := Date("2024-01-16")

	if !a.Before(b) {
		t.Error("expected 2024-01-15 before 2024-01-16")
	}
	if !b.After(a) {
		t.Error("expected 2024-01-16 after 2024-01-15")
	}
	if a.Before(a) || a.After(a) {
		t.Error("date must not order before or after itself")
	}
}

func TestDateAddDays(t *testing.T) {
	tests := []struct {
		name string
		date Date
		n    int
		want Date
	}{
		{"forward", "2024-01-15", 1, "2024-01-16"},
		{"backward", "2024-01-15", -1, "2024-01-14"},
		{"month boundary", "2024-01-31", 1, "2024-02-01"},
		{"year boundary", "2023-12-31", 1, "2024-01-01"},
		{"leap february", "2024-02-28", 1, "2024-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.date.AddDays(tt.n); got != tt.want {
				t.Errorf("%s.AddDays(%d) = %s, want %s", tt.date, tt.n, got, tt.want)
			}
		})
	}
}

func TestSeasonOf(t *testing.T) {
	tests := []struct {
		name string
		date Date
		want Season
	}{
		{"opening night", "2024-10-22", "2024-25"},
		{"new year", "2025-01-01", "2024-25"},
		{"finals", "2025-06-15", "2024-25"},
		{"july offseason", "2025-07-31", "2024-25"},
		{"august cutover", "2025-08-01", "2025-26"},
		{"century wrap", "1999-12-25", "1999-00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeasonOf(tt.date); got != tt.want {
				t.Errorf("SeasonOf(%s) = %s, want %s", tt.date, got, tt.want)
			}
		})
	}
}
