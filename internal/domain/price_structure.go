package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceEntry is one override inside a catalog item's price structure.
// A nil State applies to every state.
type PriceEntry struct {
	State         *string
	EffectiveFrom time.Time
	Price         decimal.Decimal
}

// priceEntryDoc is the persisted shape of a PriceEntry.
type priceEntryDoc struct {
	State         *string         `json:"state,omitempty"`
	EffectiveFrom string          `json:"effectiveFrom"`
	Price         decimal.Decimal `json:"price"`
}

// PriceSource tells which tier of the price structure produced a price.
type PriceSource string

const (
	PriceSourceState   PriceSource = "state"
	PriceSourceGeneral PriceSource = "general"
	PriceSourceBase    PriceSource = "base"
)

// PriceResolution is the outcome of resolving a price table.
type PriceResolution struct {
	Price    decimal.Decimal `json:"price"`
	Source   PriceSource     `json:"source"`
	Degraded bool            `json:"degraded,omitempty"`
	// Inactive marks a price read from an item that is switched off.
	Inactive bool `json:"inactive,omitempty"`
}

// ParsePriceStructure decodes a persisted price structure. An empty or
// null document is an empty list.
func ParsePriceStructure(blob []byte) ([]PriceEntry, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var docs []priceEntryDoc
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("decode price structure: %w", err)
	}
	entries := make([]PriceEntry, 0, len(docs))
	for i, d := range docs {
		from, err := ParseDate(d.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("price structure entry %d: effectiveFrom %q: %w", i, d.EffectiveFrom, err)
		}
		var state *string
		if d.State != nil && strings.TrimSpace(*d.State) != "" {
			s := normalizeState(*d.State)
			state = &s
		}
		entries = append(entries, PriceEntry{State: state, EffectiveFrom: from, Price: d.Price})
	}
	return entries, nil
}

// EncodePriceStructure renders entries in their persisted shape.
func EncodePriceStructure(entries []PriceEntry) (json.RawMessage, error) {
	docs := make([]priceEntryDoc, 0, len(entries))
	for _, e := range entries {
		var state *string
		if e.State != nil && strings.TrimSpace(*e.State) != "" {
			s := normalizeState(*e.State)
			state = &s
		}
		docs = append(docs, priceEntryDoc{
			State:         state,
			EffectiveFrom: DateOf(e.EffectiveFrom).Format(DateLayout),
			Price:         e.Price,
		})
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode price structure: %w", err)
	}
	return b, nil
}

// ResolvePrice picks the price for (state, date):
//  1. the latest entry with EffectiveFrom <= date whose state matches,
//  2. otherwise the latest date-eligible entry with no state,
//  3. otherwise basePrice.
//
// A state-specific entry wins over a more recent unrestricted one. Among
// entries of the same tier and date the later one in the list wins.
func ResolvePrice(entries []PriceEntry, basePrice decimal.Decimal, state string, date time.Time) PriceResolution {
	day := DateOf(date)
	state = normalizeState(state)

	var bestState, bestGeneral *PriceEntry
	for i := range entries {
		e := &entries[i]
		if DateOf(e.EffectiveFrom).After(day) {
			continue
		}
		switch {
		case e.State == nil:
			if bestGeneral == nil || !e.EffectiveFrom.Before(bestGeneral.EffectiveFrom) {
				bestGeneral = e
			}
		case state != "" && normalizeState(*e.State) == state:
			if bestState == nil || !e.EffectiveFrom.Before(bestState.EffectiveFrom) {
				bestState = e
			}
		}
	}

	switch {
	case bestState != nil:
		return PriceResolution{Price: bestState.Price, Source: PriceSourceState}
	case bestGeneral != nil:
		return PriceResolution{Price: bestGeneral.Price, Source: PriceSourceGeneral}
	default:
		return PriceResolution{Price: basePrice, Source: PriceSourceBase}
	}
}

func normalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
