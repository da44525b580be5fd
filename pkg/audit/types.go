package audit

import (
	"encoding/json"
	"time"
)

// Action is the kind of change an entry records
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// TargetType is the kind of record an entry is about
type TargetType string

const (
	TargetResident TargetType = "resident"
	TargetTier     TargetType = "membership_tier"
	TargetInvoice  TargetType = "invoice"
	TargetPayment  TargetType = "payment"
)

// RequestMeta is the request context captured alongside an entry
type RequestMeta struct {
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
}

// Entry is a single append-only audit log record
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Actor information
	ActorID   int64  `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`

	Action     Action     `json:"action"`
	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`

	// Snapshots before and after the change; OldValues is nil for creates
	OldValues json.RawMessage `json:"old_values,omitempty"`
	NewValues json.RawMessage `json:"new_values,omitempty"`

	Request RequestMeta `json:"request"`
}

// ToJSON converts the entry to JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an entry from JSON
func FromJSON(data []byte) (*Entry, error) {
	var entry Entry
	err := json.Unmarshal(data, &entry)
	return &entry, err
}

// Tombstone is the new-values snapshot written for deletions.
type Tombstone struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Deleted builds the tombstone snapshot for a deleted record
func Deleted(id string) Tombstone {
	return Tombstone{ID: id, Deleted: true}
}
