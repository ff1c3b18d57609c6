package scanner_test

import (
	"testing"

	"github.com/bitforge/gossamer/pkg/bencode/scanner"
)

func checkValid(t *testing.T, cases map[string]bool) {
	t.Helper()
	for input, want := range cases {
		t.Run(input, func(t *testing.T) {
			if got := scanner.Valid([]byte(input)); got != want {
				t.Errorf("Valid(%q) = %v, want %v", input, got, want)
			}
		})
	}
}

func TestValidRejectsUnterminatedValues(t *testing.T) {
	checkValid(t, map[string]bool{
		"":  false,
		"d": false,
		"l": false,
		"i": false,
		"1": false,
		"ie": false,
		"1:": false,
	})
}

func TestValidRejectsOverclosedContainers(t *testing.T) {
	checkValid(t, map[string]bool{
		"dee": false,
		"lee": false,
		"iee": false,
	})
}

func TestValidAcceptsWellFormedValues(t *testing.T) {
	checkValid(t, map[string]bool{
		"de":   true,
		"le":   true,
		"i1e":  true,
		"i-1e": true,
		"i0e":  true,
		"0:":   true,
		"1:a":  true,
	})
}

func TestValidRejectsMalformedNumbers(t *testing.T) {
	checkValid(t, map[string]bool{
		"i01e": false,
		"i-0e": false,
	})
}

func TestValidRejectsTrailingData(t *testing.T) {
	checkValid(t, map[string]bool{
		"dede": false,
	})
}
