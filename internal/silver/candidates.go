package silver

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/internal/external/nbastats"
)

// candidate is one typed entity on its way through conformance,
// together with the bronze provenance dedup and lineage need.
type candidate struct {
	entity       contracts.Entity
	businessDate contracts.Date
	recordID     string
	fetchedAt    time.Time
	sourceKey    string
}

func (c candidate) identity() string {
	return string(c.entity.EntityType()) + "/" + c.entity.NaturalKey()
}

// candidatesFrom expands one raw record into typed entities. Scoreboard
// payloads produce none: they orchestrate ingest, and the box score is
// the authoritative game record. A payload that cannot expand returns a
// QuarantineError for the caller to divert.
func candidatesFrom(key string, record contracts.RawRecord) ([]candidate, error) {
	base := candidate{
		recordID:  record.RecordID,
		fetchedAt: record.FetchedAt,
		sourceKey: key,
	}

	switch record.Resource {
	case contracts.ResourceScoreboard:
		return nil, nil

	case contracts.ResourceBoxScore:
		data, err := nbastats.ParseBoxScore(record.Payload)
		if err != nil {
			return nil, quarantineErr(record, err.Error())
		}
		cands := make([]candidate, 0, 1+len(data.Teams)+len(data.Players))
		cands = append(cands, base.with(data.Game, data.Game.BusinessDate))
		for _, team := range data.Teams {
			cands = append(cands, base.with(team, team.BusinessDate))
		}
		for _, player := range data.Players {
			cands = append(cands, base.with(player, player.BusinessDate))
		}
		return cands, nil

	case contracts.ResourceRoster:
		entries, err := nbastats.ParseRoster(record.Payload, record.PartitionDate)
		if err != nil {
			return nil, quarantineErr(record, err.Error())
		}
		cands := make([]candidate, 0, len(entries))
		for _, entry := range entries {
			cands = append(cands, base.with(entry, entry.BusinessDate))
		}
		return cands, nil
	}

	return nil, quarantineErr(record, fmt.Sprintf("no conformance rule for resource %q", record.Resource))
}

func quarantineErr(record contracts.RawRecord, reason string) *contracts.QuarantineError {
	return &contracts.QuarantineError{
		Unit:   string(record.Resource) + " " + record.SourceID,
		Reason: reason,
	}
}

func (c candidate) with(e contracts.Entity, businessDate contracts.Date) candidate {
	c.entity = e
	c.businessDate = businessDate
	return c
}

// dedupe resolves candidates sharing a natural key: the latest fetch
// wins, and equal fetch timestamps fall back to the higher raw object
// key. The result is deterministic for any input order.
func dedupe(cands []candidate) []candidate {
	byIdentity := make(map[string]candidate, len(cands))
	for _, c := range cands {
		id := c.identity()
		cur, ok := byIdentity[id]
		if !ok || wins(c, cur) {
			byIdentity[id] = c
		}
	}

	out := make([]candidate, 0, len(byIdentity))
	for _, c := range byIdentity {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].identity() < out[j].identity()
	})
	return out
}

// wins reports whether a beats b for the same natural key.
func wins(a, b candidate) bool {
	if !a.fetchedAt.Equal(b.fetchedAt) {
		return a.fetchedAt.After(b.fetchedAt)
	}
	return a.sourceKey > b.sourceKey
}

// validationReason flattens validator errors into a compact annotation.
func validationReason(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
