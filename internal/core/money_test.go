package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"-12.75", "-12.75", true},
		{"150000.00", "150000", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,23", "", false},
		{"", "", false},
		{"   ", "", false},
		{"NaN", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q unexpected error: %v", tc.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s", tc.in, tc.out, got)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"3", 3, true},
		{"3.00", 3, true},
		{"0", 0, true},
		{" 12 ", 12, true},
		{"3.5", 0, false},
		{"-1", 0, false},
		{"x", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseQuantity(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("%q expected ErrInvalidQuantity, got %v", tc.in, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"0":          "0.00",
		"1":          "1.00",
		"12.5":       "12.50",
		"999.999":    "1,000.00",
		"1234.5":     "1,234.50",
		"1234567.89": "1,234,567.89",
		"-1234.5":    "-1,234.50",
		"100000":     "100,000.00",
	}
	for in, want := range cases {
		if got := FormatAmount(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatAmount(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatQuantity(t *testing.T) {
	cases := map[int64]string{
		0:       "0",
		7:       "7",
		1000:    "1,000",
		-25000:  "-25,000",
		1234567: "1,234,567",
	}
	for in, want := range cases {
		if got := FormatQuantity(in); got != want {
			t.Errorf("FormatQuantity(%d) = %q, want %q", in, got, want)
		}
	}
}
