package checksum

import (
	"errors"
	"strings"
	"testing"
)

const (
	// echo -n "hello" | sha256sum
	helloSHA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func TestSumBytes(t *testing.T) {
	if got := SumBytes([]byte("hello")); got != helloSHA {
		t.Errorf("SumBytes(hello) = %q, want %q", got, helloSHA)
	}
	if got := SumBytes(nil); got != emptySHA {
		t.Errorf("SumBytes(nil) = %q, want %q", got, emptySHA)
	}
}

func TestCalculateSHA256_MatchesSumBytes(t *testing.T) {
	input := `{"id":1,"action":"register"}` + "\n"
	got, err := CalculateSHA256(strings.NewReader(input))
	if err != nil {
		t.Fatalf("CalculateSHA256() error: %v", err)
	}
	if want := SumBytes([]byte(input)); got != want {
		t.Errorf("CalculateSHA256 = %q, SumBytes = %q", got, want)
	}
}

func TestVerifySHA256(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		want     bool
	}{
		{"match", "hello", helloSHA, true},
		{"uppercase expected", "hello", strings.ToUpper(helloSHA), true},
		{"mismatch", "hello!", helloSHA, false},
		{"empty", "", emptySHA, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifySHA256(strings.NewReader(tt.input), tt.expected)
			if err != nil {
				t.Fatalf("VerifySHA256() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifySHA256() = %v, want %v", got, tt.want)
			}
		})
	}
}

type errReader struct{}

func (errReader) Read(_ []byte) (int, error) {
	return 0, errors.New("read failure")
}

func TestCalculateSHA256_ReaderError(t *testing.T) {
	if _, err := CalculateSHA256(errReader{}); err == nil {
		t.Error("CalculateSHA256() = nil error, want error from failing reader")
	}
	if _, err := VerifySHA256(errReader{}, helloSHA); err == nil {
		t.Error("VerifySHA256() = nil error, want error from failing reader")
	}
}
