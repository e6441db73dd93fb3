package state

import (
	"encoding/json"
	"time"
)

// State is the intake conversation state of one thread.
type State string

const (
	StateInit               State = "init"
	StateWaitingTaskDetails State = "waiting_task_details"
	StateWaitingEdit        State = "waiting_edit"
	StateWaitingDelete      State = "waiting_delete"
	StateApproved           State = "approved"
	StateIgnoredExisting    State = "ignored_existing"
)

// Terminal reports whether no further intake processing happens in this
// state (absent an allow-list reset).
func (s State) Terminal() bool {
	return s == StateApproved || s == StateIgnoredExisting
}

// Record is the persisted state of one thread. Unknown fields from newer
// writers are preserved across load/save cycles.
type Record struct {
	State      State
	TaskRef    string
	ErrorCount int
	UpdatedAt  string

	extra map[string]json.RawMessage
}

const (
	keyState       = "state"
	keyTaskRef     = "task_reference"
	keyErrorCount  = "error_count"
	keyLegacyError = "notion_errors"
	keyUpdatedAt   = "updated_at"
)

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Record{State: StateInit}
	if v, ok := raw[keyState]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		out.State = State(s)
		delete(raw, keyState)
	}
	if v, ok := raw[keyTaskRef]; ok {
		if err := json.Unmarshal(v, &out.TaskRef); err != nil {
			return err
		}
		delete(raw, keyTaskRef)
	}
	if v, ok := raw[keyErrorCount]; ok {
		if err := json.Unmarshal(v, &out.ErrorCount); err != nil {
			return err
		}
		delete(raw, keyErrorCount)
	}
	// Older revisions persisted the counter as notion_errors.
	if v, ok := raw[keyLegacyError]; ok {
		if out.ErrorCount == 0 {
			if err := json.Unmarshal(v, &out.ErrorCount); err != nil {
				return err
			}
		}
		delete(raw, keyLegacyError)
	}
	if v, ok := raw[keyUpdatedAt]; ok {
		if err := json.Unmarshal(v, &out.UpdatedAt); err != nil {
			return err
		}
		delete(raw, keyUpdatedAt)
	}
	if len(raw) > 0 {
		out.extra = raw
	}

	*r = out
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.extra)+4)
	for k, v := range r.extra {
		out[k] = v
	}
	out[keyState] = string(r.State)
	if r.TaskRef != "" {
		out[keyTaskRef] = r.TaskRef
	}
	if r.ErrorCount > 0 {
		out[keyErrorCount] = r.ErrorCount
	}
	if r.UpdatedAt != "" {
		out[keyUpdatedAt] = r.UpdatedAt
	}
	return json.Marshal(out)
}

func emptyRecord() Record {
	return Record{State: StateInit}
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
