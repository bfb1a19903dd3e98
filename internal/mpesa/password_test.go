package mpesa

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestPassword(t *testing.T) {
	got := Password("174379", "passkey", "20240115143005")
	raw, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw) != "174379passkey20240115143005" {
		t.Fatalf("decoded password = %q", raw)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	in := time.Date(2024, 1, 15, 11, 30, 5, 0, time.UTC)
	ts := Timestamp(in)
	if ts != "20240115143005" {
		t.Fatalf("timestamp = %s", ts)
	}
	back, err := ParseTransactionTime(ts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !back.Equal(in) {
		t.Fatalf("round trip = %v, want %v", back, in)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0712345678", "254712345678", false},
		{"+254712345678", "254712345678", false},
		{"254712345678", "254712345678", false},
		{"712345678", "254712345678", false},
		{"0112 345 678", "254112345678", false},
		{"071234567", "", true},
		{"0812345678", "", true},
		{"07123456ab", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhone) {
					t.Fatalf("expected ErrInvalidPhone, got %q, %v", got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("NormalizePhone(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}
