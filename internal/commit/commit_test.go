package commit

import "testing"

func TestValidAcceptsOrdinaryCommitID(t *testing.T) {
	if err := Valid("abc123def456"); err != nil {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestValidRejectsEmpty(t *testing.T) {
	if err := Valid(""); err == nil {
		t.Errorf("expected error for empty commit id")
	}
}

func TestValidRejectsColon(t *testing.T) {
	if err := Valid("abc:123"); err == nil {
		t.Errorf("expected error for commit id containing a colon")
	}
}

func TestValidRejectsNewline(t *testing.T) {
	if err := Valid("abc\n123"); err == nil {
		t.Errorf("expected error for commit id containing a newline")
	}
}

func TestValidRejectsNonPrintableASCII(t *testing.T) {
	if err := Valid("abc\x01123"); err == nil {
		t.Errorf("expected error for non-printable byte")
	}
}
