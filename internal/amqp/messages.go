package amqp

import (
	"encoding/json"
	"time"
)

// Operations carried on the ledger queue.
const (
	OpDaySave      = "day_save"
	OpMasterExport = "master_export"
)

// DaySaveMessage asks the worker to reconcile a day's entries into the
// ledger. Widget and overlay submissions publish these instead of calling
// the engine directly, so all saves for a day funnel through one consumer.
type DaySaveMessage struct {
	Day       string    `json:"day"` // YYYY-MM-DD
	Timestamp time.Time `json:"timestamp"`
}

// MasterExportMessage asks the worker to push a changed master record to
// the configured export backend. The worker re-reads the record by id.
type MasterExportMessage struct {
	RecordID  int64     `json:"record_id"`
	Day       string    `json:"day"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope wraps a payload with its operation for queue dispatch.
type envelope struct {
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

func NewDaySaveMessage(day string) *DaySaveMessage {
	return &DaySaveMessage{Day: day, Timestamp: time.Now()}
}

func NewMasterExportMessage(recordID int64, day string) *MasterExportMessage {
	return &MasterExportMessage{RecordID: recordID, Day: day, Timestamp: time.Now()}
}

func marshalEnvelope(operation string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Operation: operation, Payload: body})
}
