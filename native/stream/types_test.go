package stream

import (
	"math/big"
	"testing"
)

func TestNormalizeToken(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"pay", "PAY", false},
		{"  usd1  ", "USD1", false},
		{"ABCDEFGHIJKLMNOP", "ABCDEFGHIJKLMNOP", false},
		{"", "", true},
		{"   ", "", true},
		{"ABCDEFGHIJKLMNOPQ", "", true},
		{"PAY-X", "", true},
		{"päy", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeToken(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("normalize %q: expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("normalize %q: want %q, got %q err=%v", tc.in, tc.want, got, err)
		}
	}
}

func TestSanitizeStreamRejectsBadRecords(t *testing.T) {
	base := func() *Stream {
		return &Stream{
			Token:         "PAY",
			RatePerSecond: big.NewInt(1),
			TotalAmount:   big.NewInt(1000),
			Balance:       big.NewInt(1000),
			StartTime:     10,
			AnchorTime:    10,
			Duration:      1000,
			Status:        StreamActive,
		}
	}
	if _, err := SanitizeStream(base()); err != nil {
		t.Fatalf("valid record: %v", err)
	}
	negative := base()
	negative.Balance = big.NewInt(-1)
	if _, err := SanitizeStream(negative); err == nil {
		t.Fatalf("negative balance must be rejected")
	}
	badStatus := base()
	badStatus.Status = StreamStatus(9)
	if _, err := SanitizeStream(badStatus); err == nil {
		t.Fatalf("invalid status must be rejected")
	}
	badAnchor := base()
	badAnchor.AnchorTime = 5
	if _, err := SanitizeStream(badAnchor); err == nil {
		t.Fatalf("anchor before start must be rejected")
	}
}

func TestSanitizeStreamFillsNilAmounts(t *testing.T) {
	clean, err := SanitizeStream(&Stream{Token: "pay", TotalAmount: big.NewInt(1)})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if clean.Token != "PAY" {
		t.Fatalf("token casing: got %q", clean.Token)
	}
	for name, v := range map[string]*big.Int{
		"balance":   clean.Balance,
		"withdrawn": clean.Withdrawn,
		"snapshot":  clean.SnapshotDebt,
		"rate":      clean.RatePerSecond,
	} {
		if v == nil || v.Sign() != 0 {
			t.Fatalf("%s: want zero, got %v", name, v)
		}
	}
}

func TestStreamCloneIsDeep(t *testing.T) {
	s := &Stream{
		ID:            big.NewInt(7),
		Token:         "PAY",
		RatePerSecond: big.NewInt(1),
		TotalAmount:   big.NewInt(1000),
		Balance:       big.NewInt(900),
		Withdrawn:     big.NewInt(100),
		SnapshotDebt:  big.NewInt(50),
	}
	clone := s.Clone()
	clone.Balance.SetInt64(0)
	clone.ID.SetInt64(0)
	if s.Balance.Cmp(big.NewInt(900)) != 0 || s.ID.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("clone mutated the original")
	}
}

func TestStreamEndTime(t *testing.T) {
	s := &Stream{AnchorTime: 100, Duration: 50}
	if got := s.EndTime(); got != 150 {
		t.Fatalf("end time: want 150, got %d", got)
	}
	var nilStream *Stream
	if got := nilStream.EndTime(); got != 0 {
		t.Fatalf("nil end time: want 0, got %d", got)
	}
}
