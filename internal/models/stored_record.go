package models

// StoredRecord is a record persisted in the record store, kept as raw JSON.
type StoredRecord struct {
	ID   int64  // ID is the unique identifier of the record.
	Data []byte // Data is the record JSON as stored.
}
