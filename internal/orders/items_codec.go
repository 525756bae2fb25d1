package orders

import (
	"encoding/json"
	"fmt"
)

// ItemsSchemaVersion tags persisted item documents.
const ItemsSchemaVersion = 1

type itemsDocument struct {
	SchemaVersion int         `json:"schema_version"`
	Items         []OrderItem `json:"items"`
}

func EncodeItems(items []OrderItem) ([]byte, error) {
	return json.Marshal(itemsDocument{SchemaVersion: ItemsSchemaVersion, Items: items})
}

func DecodeItems(b []byte) ([]OrderItem, error) {
	var doc itemsDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if doc.SchemaVersion != ItemsSchemaVersion {
		return nil, fmt.Errorf("decode items: unsupported schema version %d", doc.SchemaVersion)
	}
	return doc.Items, nil
}
