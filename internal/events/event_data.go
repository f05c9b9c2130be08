package events

// EventData is the interface that all event payloads implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RecordsChangedData describes a mutation of the record set
type RecordsChangedData struct {
	Action   string   `json:"action"` // create, update, delete, clear, restore, sync
	IDs      []string `json:"ids,omitempty"`
	Count    int      `json:"count"`
	Location string   `json:"location"` // remote or local
}

// EventType returns the event type for RecordsChangedData
func (d *RecordsChangedData) EventType() EventType {
	return RecordsChanged
}

// RecordsImportedData describes a finished spreadsheet import
type RecordsImportedData struct {
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Location string `json:"location"`
}

// EventType returns the event type for RecordsImportedData
func (d *RecordsImportedData) EventType() EventType {
	return RecordsImported
}

// BackupCreatedData describes a new snapshot or offsite archive
type BackupCreatedData struct {
	Name        string `json:"name"`
	RecordCount int    `json:"recordCount"`
	Offsite     bool   `json:"offsite"`
}

// EventType returns the event type for BackupCreatedData
func (d *BackupCreatedData) EventType() EventType {
	return BackupCreated
}

// TokenChangedData is emitted when the stored token is saved or deleted
type TokenChangedData struct {
	Action string `json:"action"` // saved, deleted, recovered
}

// EventType returns the event type for TokenChangedData
func (d *TokenChangedData) EventType() EventType {
	return TokenChanged
}
