package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item is a schemaless document kept by the item store. ID and CreatedAt are
// assigned by the store; every other client-supplied field is kept in Fields.
type Item struct {
	ID        string
	CreatedAt time.Time
	Fields    map[string]any
}

// MarshalJSON flattens Fields next to the _id and createdAt keys.
func (i Item) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(i.Fields)+2)
	for k, v := range i.Fields {
		doc[k] = v
	}
	doc["_id"] = i.ID
	doc["createdAt"] = i.CreatedAt.UTC().Format(time.RFC3339Nano)
	return json.Marshal(doc)
}

// UnmarshalJSON splits a stored document back into ID, CreatedAt and Fields.
func (i *Item) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	if id, ok := doc["_id"].(string); ok {
		i.ID = id
	}
	if ts, ok := doc["createdAt"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("item createdAt: %w", err)
		}
		i.CreatedAt = t
	}
	delete(doc, "_id")
	delete(doc, "createdAt")
	i.Fields = doc
	return nil
}
