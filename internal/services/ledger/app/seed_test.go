package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
)

func TestApplySeedIsRepeatable(t *testing.T) {
	f := newFixture(t)
	before, err := f.store.GetParticipant(t.Context(), "dfsp1")
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}

	seed := SeedFile{Participants: []SeedParticipant{{Name: "dfsp1", Currency: "usd"}}}
	summary, err := ApplySeed(t.Context(), f.store, seed)
	if err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	if summary.Participants != 1 {
		t.Fatalf("participants = %d, want 1", summary.Participants)
	}
	after, err := f.store.GetParticipant(t.Context(), "dfsp1")
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if after.ID != before.ID {
		t.Fatalf("participant id = %s, want %s", after.ID, before.ID)
	}
	if after.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", after.Currency)
	}
}

func TestApplySeedCharges(t *testing.T) {
	f := newFixture(t)
	f.seedCharges(t)
	f.seedCharges(t)

	charges, err := f.store.ListActiveCharges(t.Context())
	if err != nil {
		t.Fatalf("list charges: %v", err)
	}
	if len(charges) != 4 {
		t.Fatalf("charges = %d, want 4", len(charges))
	}
	bounded := charges[2]
	if bounded.Name != "c-bounded" || !bounded.Minimum.Valid || bounded.Maximum.Valid {
		t.Fatalf("bounded charge = %+v, want minimum only", bounded)
	}
	if charges[1].RateType != fee.RatePercent || charges[1].PayeeRole != fee.RoleReceiver {
		t.Fatalf("percent charge = %+v", charges[1])
	}
}

func TestApplySeedRejectsInvalidEntries(t *testing.T) {
	f := newFixture(t)

	if _, err := ApplySeed(t.Context(), f.store, SeedFile{Participants: []SeedParticipant{{Name: " "}}}); err == nil {
		t.Fatal("expected error for unnamed participant")
	}
	if _, err := ApplySeed(t.Context(), f.store, SeedFile{Participants: []SeedParticipant{{Name: "x", Currency: "nope"}}}); err == nil {
		t.Fatal("expected error for bad currency")
	}
	if _, err := ApplySeed(t.Context(), f.store, SeedFile{Charges: []SeedCharge{{Name: "bad", RateType: "flat", PayerRole: "someone", PayeeRole: "ledger"}}}); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := ApplySeed(t.Context(), nil, SeedFile{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestDecodeSeedRejectsUnknownFields(t *testing.T) {
	if _, err := DecodeSeed(strings.NewReader(`{"accounts": []}`)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestReadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(`{"participants": [{"name": "dfsp9", "currency": "EUR", "active": false}]}`), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	seed, err := ReadSeedFile(path)
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}
	if len(seed.Participants) != 1 || seed.Participants[0].Active == nil || *seed.Participants[0].Active {
		t.Fatalf("seed = %+v, want one inactive participant", seed)
	}

	if _, err := ReadSeedFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
