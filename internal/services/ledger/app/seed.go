package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mojaloop/central-ledger-sub000/internal/platform/id"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

// SeedFile is the JSON document that populates the participant and charge
// directories.
type SeedFile struct {
	Participants []SeedParticipant `json:"participants"`
	Charges      []SeedCharge      `json:"charges"`
}

// SeedParticipant is one participant entry. Active defaults to true.
type SeedParticipant struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Active   *bool  `json:"active,omitempty"`
}

// SeedCharge is one charge entry. Active defaults to true.
type SeedCharge struct {
	Name       string              `json:"name"`
	Code       string              `json:"code"`
	ChargeType string              `json:"charge_type"`
	RateType   string              `json:"rate_type"`
	Rate       decimal.Decimal     `json:"rate"`
	Minimum    decimal.NullDecimal `json:"minimum"`
	Maximum    decimal.NullDecimal `json:"maximum"`
	PayerRole  string              `json:"payer"`
	PayeeRole  string              `json:"payee"`
	Active     *bool               `json:"active,omitempty"`
}

// SeedSummary counts the directory entries a seed wrote.
type SeedSummary struct {
	Participants int
	Charges      int
}

// SeedStore is the directory storage a seed writes through.
type SeedStore interface {
	storage.ParticipantStore
	storage.ChargeStore
}

// ReadSeedFile decodes a seed document from path.
func ReadSeedFile(path string) (SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

// DecodeSeed decodes a seed document, rejecting unknown fields.
func DecodeSeed(r io.Reader) (SeedFile, error) {
	var seed SeedFile
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&seed); err != nil {
		return SeedFile{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// ApplySeed upserts every participant and charge of seed. Entries are keyed
// by name, so applying the same seed twice leaves the directories as they
// were.
func ApplySeed(ctx context.Context, store SeedStore, seed SeedFile) (SeedSummary, error) {
	if store == nil {
		return SeedSummary{}, fmt.Errorf("seed store is required")
	}
	var summary SeedSummary
	for _, entry := range seed.Participants {
		participant, err := entry.participant()
		if err != nil {
			return summary, err
		}
		if existing, err := store.GetParticipant(ctx, participant.Name); err == nil {
			participant.ID = existing.ID
			participant.CreatedAt = existing.CreatedAt
		}
		if err := store.PutParticipant(ctx, participant); err != nil {
			return summary, err
		}
		summary.Participants++
	}
	for _, entry := range seed.Charges {
		charge := entry.charge()
		if _, err := store.PutCharge(ctx, charge); err != nil {
			return summary, fmt.Errorf("seed charge %s: %w", charge.Name, err)
		}
		summary.Charges++
	}
	return summary, nil
}

func (p SeedParticipant) participant() (storage.Participant, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return storage.Participant{}, fmt.Errorf("seed participant name is required")
	}
	var currency string
	if strings.TrimSpace(p.Currency) != "" {
		parsed, err := money.ParseCurrency(p.Currency)
		if err != nil {
			return storage.Participant{}, fmt.Errorf("seed participant %s: %w", name, err)
		}
		currency = parsed
	}
	participantID, err := id.NewID()
	if err != nil {
		return storage.Participant{}, err
	}
	return storage.Participant{
		ID:       participantID,
		Name:     name,
		Currency: currency,
		Active:   p.Active == nil || *p.Active,
	}, nil
}

func (c SeedCharge) charge() fee.Charge {
	return fee.Charge{
		Name:       strings.TrimSpace(c.Name),
		Code:       strings.TrimSpace(c.Code),
		ChargeType: strings.TrimSpace(c.ChargeType),
		RateType:   fee.RateType(strings.ToLower(strings.TrimSpace(c.RateType))),
		Rate:       c.Rate,
		Minimum:    c.Minimum,
		Maximum:    c.Maximum,
		PayerRole:  fee.Role(strings.ToLower(strings.TrimSpace(c.PayerRole))),
		PayeeRole:  fee.Role(strings.ToLower(strings.TrimSpace(c.PayeeRole))),
		Active:     c.Active == nil || *c.Active,
	}
}
