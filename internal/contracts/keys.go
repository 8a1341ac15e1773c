package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Object key layout. Every layer writes under its own top-level prefix and
// keys are deterministic functions of record identity, so re-runs land on
// the same objects instead of accumulating new ones.

// BronzeKey locates one raw fetch. The nano timestamp keeps distinct
// fetches of the same source apart and makes keys for one source sort in
// fetch order.
func BronzeKey(partitionDate Date, resource RawResource, sourceID string, fetchedAt time.Time) string {
	return fmt.Sprintf("bronze/%s/%s/%s-%d.json", partitionDate, resource, sourceID, fetchedAt.UTC().UnixNano())
}

// BronzePrefix lists every raw object for one partition date.
func BronzePrefix(partitionDate Date) string {
	return fmt.Sprintf("bronze/%s/", partitionDate)
}

// BronzeResourcePrefix narrows a partition date to one feed resource.
func BronzeResourcePrefix(partitionDate Date, resource RawResource) string {
	return fmt.Sprintf("bronze/%s/%s/", partitionDate, resource)
}

// ParseBronzeKey extracts the partition date and resource from a bronze
// object key.
func ParseBronzeKey(key string) (Date, RawResource, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "bronze" {
		return "", "", false
	}
	date, err := ParseDate(parts[1])
	if err != nil {
		return "", "", false
	}
	resource := RawResource(parts[2])
	if !IsValidRawResource(resource) {
		return "", "", false
	}
	return date, resource, true
}

// BronzeQuarantineKey parks a payload that failed the envelope check.
func BronzeQuarantineKey(partitionDate Date, sourceID string, fetchedAt time.Time) string {
	return fmt.Sprintf("quarantine/bronze/%s/%s-%d.json", partitionDate, sourceID, fetchedAt.UTC().UnixNano())
}

// SilverQuarantineKey parks a record that failed conformance validation.
func SilverQuarantineKey(businessDate Date, entityType EntityType, naturalKey string) string {
	return fmt.Sprintf("quarantine/silver/%s/%s/%s.json", businessDate, entityType, naturalKey)
}

// SilverParseQuarantineKey parks a bronze payload that failed to parse
// during conformance, before any entity identity exists.
func SilverParseQuarantineKey(partitionDate Date, resource RawResource, recordID string) string {
	return fmt.Sprintf("quarantine/silver/%s/%s/%s.json", partitionDate, resource, recordID)
}

// SilverKey locates one conformed record.
func SilverKey(businessDate Date, entityType EntityType, naturalKey string) string {
	return fmt.Sprintf("silver/%s/%s/%s.json", businessDate, entityType, naturalKey)
}

// SilverPrefix lists every conformed record for one business date.
func SilverPrefix(businessDate Date) string {
	return fmt.Sprintf("silver/%s/", businessDate)
}

// SilverEntityPrefix narrows a business date to one entity type.
func SilverEntityPrefix(businessDate Date, entityType EntityType) string {
	return fmt.Sprintf("silver/%s/%s/", businessDate, entityType)
}

// SCDCurrentKey locates the open version pointer of one dimension member.
// The pointer is swapped with a conditional write, never rewritten blind.
func SCDCurrentKey(entityType EntityType, naturalKey string) string {
	return fmt.Sprintf("silver/scd/%s/%s/current.json", entityType, naturalKey)
}

// SCDVersionKey locates one closed history interval.
func SCDVersionKey(entityType EntityType, naturalKey string, effectiveFrom Date) string {
	return fmt.Sprintf("silver/scd/%s/%s/%s.json", entityType, naturalKey, effectiveFrom)
}

// SCDPrefix lists the full history of one dimension member.
func SCDPrefix(entityType EntityType, naturalKey string) string {
	return fmt.Sprintf("silver/scd/%s/%s/", entityType, naturalKey)
}

// MarkerKey locates the ready marker for one business date.
func MarkerKey(businessDate Date) string {
	return fmt.Sprintf("silver/markers/%s.json", businessDate)
}

// MarkerPrefix matches every ready marker.
const MarkerPrefix = "silver/markers/"

// ParseMarkerKey extracts the business date from a marker key.
func ParseMarkerKey(key string) (Date, bool) {
	rest, ok := strings.CutPrefix(key, MarkerPrefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, ".json")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	date, err := ParseDate(rest)
	if err != nil {
		return "", false
	}
	return date, true
}

// SeasonSnapshotKey locates one season-to-date aggregate snapshot.
func SeasonSnapshotKey(season Season, entity AggregateEntity, entityID string, asOf Date) string {
	return fmt.Sprintf("gold/season/%s/%s/%s/%s.json", season, entity, entityID, asOf)
}

// SeasonSnapshotPrefix lists every snapshot for one player or team.
func SeasonSnapshotPrefix(season Season, entity AggregateEntity, entityID string) string {
	return fmt.Sprintf("gold/season/%s/%s/%s/", season, entity, entityID)
}
