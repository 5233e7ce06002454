package address

import (
	"encoding/json"
	"testing"
)

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()
	var a Address
	for i := range a {
		a[i] = byte(i)
	}
	s := a.String()
	back, err := FromString(s)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if back != a {
		t.Fatalf("round trip mismatch: got %x want %x", back, a)
	}
}

func TestFromStringWrongLength(t *testing.T) {
	t.Parallel()
	if _, err := FromString("abc"); err == nil {
		t.Fatal("expected error for undersized address")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	var a Address
	a[0] = 0xFF
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Address
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != a {
		t.Fatalf("json round trip mismatch: got %x want %x", back, a)
	}
}

func TestDerivedIsDeterministic(t *testing.T) {
	t.Parallel()
	var authority, owner Address
	authority[0] = 1
	owner[0] = 2
	a := Derived("position", authority, owner, 7)
	b := Derived("position", authority, owner, 7)
	if a != b {
		t.Fatal("Derived should be deterministic for identical inputs")
	}
	c := Derived("position", authority, owner, 8)
	if a == c {
		t.Fatal("Derived should differ when offset changes")
	}
}

func TestGenerateKeypairRoundTrips(t *testing.T) {
	t.Parallel()
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msg := []byte("burst_position")
	sig := kp.Sign(msg)
	if len(sig) == 0 {
		t.Fatal("expected non-empty signature")
	}
	if kp.Address().IsZero() {
		t.Fatal("generated keypair should not have a zero address")
	}
}
