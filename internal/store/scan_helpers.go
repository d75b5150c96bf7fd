package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nateschmiedehaus/librarian-sub018/internal/pack"
)

func scanPackFields(scan func(dest ...any) error) (pack.ContextPack, error) {
	var p pack.ContextPack
	var packType string
	var keyFactsJSON sql.NullString
	var snippetsJSON sql.NullString
	var relatedJSON sql.NullString
	var invalidatorsJSON sql.NullString
	var lastOutcome sql.NullString
	var createdAt string
	if err := scan(
		&p.ID,
		&packType,
		&p.TargetID,
		&p.Summary,
		&keyFactsJSON,
		&snippetsJSON,
		&relatedJSON,
		&invalidatorsJSON,
		&p.Confidence,
		&p.SuccessCount,
		&p.FailureCount,
		&lastOutcome,
		&p.Version,
		&createdAt,
	); err != nil {
		return pack.ContextPack{}, err
	}
	p.Type = pack.Type(packType)
	p.LastOutcome = lastOutcome.String
	p.CreatedAt = parseTime(createdAt)
	p.KeyFacts = unmarshalStrings(keyFactsJSON.String)
	p.RelatedFiles = unmarshalStrings(relatedJSON.String)
	p.Invalidators = unmarshalStrings(invalidatorsJSON.String)
	if snippetsJSON.String != "" {
		if err := json.Unmarshal([]byte(snippetsJSON.String), &p.Snippets); err != nil {
			return pack.ContextPack{}, err
		}
	}
	return p, nil
}

func unmarshalStrings(encoded string) []string {
	if encoded == "" || encoded == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return nil
	}
	return values
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
