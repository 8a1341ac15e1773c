package silver

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
)

// scdSwapAttempts bounds the reread-and-retry loop when the current
// version pointer moves under a concurrent run.
const scdSwapAttempts = 3

// applySCD folds one deduped roster observation into the member's
// version history. First observation opens the history; a changed
// attribute closes the prior interval and swaps the current pointer by
// compare-and-swap; an unchanged observation is a no-op. A lost swap
// rereads and re-evaluates, so two runs carrying the same input agree
// on the outcome instead of double-closing.
func (t *Transformer) applySCD(ctx context.Context, entry contracts.RosterEntry) (bool, error) {
	naturalKey := entry.NaturalKey()
	currentKey := contracts.SCDCurrentKey(contracts.EntityRosterEntry, naturalKey)

	entityBody, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal roster entry: %w", err)
	}
	next := contracts.SCDVersion{
		EntityType:    contracts.EntityRosterEntry,
		NaturalKey:    naturalKey,
		EffectiveFrom: entry.BusinessDate,
		Entity:        entityBody,
	}
	nextBody, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to marshal version: %w", err)
	}

	for attempt := 0; attempt < scdSwapAttempts; attempt++ {
		obj, err := t.store.Get(ctx, currentKey)
		if errors.Is(err, blob.ErrNotFound) {
			_, err := t.store.PutIfAbsent(ctx, currentKey, nextBody)
			if errors.Is(err, blob.ErrPreconditionFailed) {
				// Another run opened the history first; reread and compare.
				continue
			}
			if err != nil {
				return false, fmt.Errorf("failed to open version history for %s: %w", naturalKey, err)
			}
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read current version for %s: %w", naturalKey, err)
		}

		var current contracts.SCDVersion
		if err := json.Unmarshal(obj.Body, &current); err != nil {
			return false, fmt.Errorf("current version for %s is corrupt: %w", naturalKey, err)
		}
		var currentEntry contracts.RosterEntry
		if err := json.Unmarshal(current.Entity, &currentEntry); err != nil {
			return false, fmt.Errorf("current version for %s is corrupt: %w", naturalKey, err)
		}

		if rosterAttributesEqual(currentEntry, entry) {
			return false, nil
		}

		// An observation older than the open interval must not rewind
		// history; the newer fact already superseded it.
		if entry.BusinessDate.Before(current.EffectiveFrom) {
			t.logger.WithFields(map[string]interface{}{
				"natural_key":    naturalKey,
				"observed":       string(entry.BusinessDate),
				"effective_from": string(current.EffectiveFrom),
			}).Debug("Stale roster observation ignored")
			return false, nil
		}

		// Same-day correction replaces the open version in place; there
		// is no prior interval to close.
		if entry.BusinessDate == current.EffectiveFrom {
			_, err := t.store.PutIfMatch(ctx, currentKey, nextBody, obj.ETag)
			if errors.Is(err, blob.ErrPreconditionFailed) || errors.Is(err, blob.ErrNotFound) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("failed to replace current version for %s: %w", naturalKey, err)
			}
			return true, nil
		}

		// Close the prior interval first. The key is deterministic and the
		// body derives from (current, businessDate), so a crashed or
		// concurrent run rewrites the same bytes.
		closed := current
		closed.EffectiveTo = entry.BusinessDate.AddDays(-1)
		closedBody, err := json.Marshal(closed)
		if err != nil {
			return false, fmt.Errorf("failed to marshal closed version: %w", err)
		}
		closedKey := contracts.SCDVersionKey(contracts.EntityRosterEntry, naturalKey, current.EffectiveFrom)
		if _, err := t.store.Put(ctx, closedKey, closedBody); err != nil {
			return false, fmt.Errorf("failed to write closed version for %s: %w", naturalKey, err)
		}

		_, err = t.store.PutIfMatch(ctx, currentKey, nextBody, obj.ETag)
		if errors.Is(err, blob.ErrPreconditionFailed) || errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to swap current version for %s: %w", naturalKey, err)
		}
		return true, nil
	}

	return false, fmt.Errorf("current version for %s kept moving after %d attempts", naturalKey, scdSwapAttempts)
}

// rosterAttributesEqual compares the fields that constitute a roster
// change. Dates and season labels move every observation and do not
// open new versions on their own.
func rosterAttributesEqual(a, b contracts.RosterEntry) bool {
	return a.TeamID == b.TeamID &&
		a.PlayerName == b.PlayerName &&
		a.Position == b.Position &&
		a.JerseyNumber == b.JerseyNumber
}
