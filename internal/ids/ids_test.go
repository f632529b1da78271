package ids

import "testing"

func TestRustDebugBytesFormatting(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{nil, "[]"},
		{[]byte{}, "[]"},
		{[]byte{1}, "[1]"},
		{[]byte{1, 2, 3}, "[1, 2, 3]"},
		{[]byte{0, 255}, "[0, 255]"},
	}
	for _, c := range cases {
		if got := rustDebugBytes(c.in); got != c.want {
			t.Errorf("rustDebugBytes(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDeriveVaultIDDeterministic(t *testing.T) {
	path := []byte("my-vault")
	a := DeriveVaultID(path)
	b := DeriveVaultID(path)
	if a != b {
		t.Fatalf("DeriveVaultID not deterministic: %v != %v", a, b)
	}
	if other := DeriveVaultID([]byte("other-vault")); other == a {
		t.Fatalf("DeriveVaultID collided across distinct paths")
	}
}

func TestDeriveRecordIDFromCounterMatchesRustFormat(t *testing.T) {
	vaultPath := []byte{1, 2, 3}

	first := DeriveRecordIDFromCounter(vaultPath, 0)
	wantFirst := RecordID(deriveID([]byte("[1, 2, 3]first_record"), []byte("[1, 2, 3]first_record")))
	if first != wantFirst {
		t.Fatalf("counter 0 id mismatch")
	}

	fifth := DeriveRecordIDFromCounter(vaultPath, 5)
	wantFifth := RecordID(deriveID([]byte("[1, 2, 3]5"), []byte("[1, 2, 3]5")))
	if fifth != wantFifth {
		t.Fatalf("counter 5 id mismatch")
	}

	if first == fifth {
		t.Fatalf("counter 0 and counter 5 ids collided")
	}
}

func TestLocationResolveGenericVsCounterDiffer(t *testing.T) {
	vaultPath := []byte("vault-a")
	generic := Generic(vaultPath, []byte("record-a"))
	counter := Counter(vaultPath, 0)

	gv, gr := generic.Resolve()
	cv, cr := counter.Resolve()

	if gv != cv {
		t.Fatalf("vault id should match for same vault path: %v != %v", gv, cv)
	}
	if gr == cr {
		t.Fatalf("generic and counter record ids should not collide")
	}
}

func TestLocationResolveDeterministic(t *testing.T) {
	loc := Counter([]byte("vault-b"), 42)
	v1, r1 := loc.Resolve()
	v2, r2 := loc.Resolve()
	if v1 != v2 || r1 != r2 {
		t.Fatalf("Location.Resolve not deterministic")
	}
}

func TestRandomIDsDiffer(t *testing.T) {
	a, err := RandomVaultID()
	if err != nil {
		t.Fatalf("RandomVaultID: %v", err)
	}
	b, err := RandomVaultID()
	if err != nil {
		t.Fatalf("RandomVaultID: %v", err)
	}
	if a == b {
		t.Fatalf("two random vault ids collided")
	}
}
