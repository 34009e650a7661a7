package tl

import (
	"encoding/json"
	"fmt"
)

// Notification is an unsolicited node message.
type Notification interface {
	Result
	notification()
}

// NotificationFromResult interprets r as a notification. Only sync state
// updates are notifications for now.
func NotificationFromResult(r Result) (Notification, bool) {
	n, ok := r.(Notification)
	return n, ok
}

// UpdateSyncState reports node synchronization progress.
type UpdateSyncState struct {
	SyncState SyncState `json:"sync_state"`
}

// Type implements the Result interface.
func (*UpdateSyncState) Type() string { return TypeUpdateSyncState }

func (*UpdateSyncState) notification() {}

// SyncState is either done or in progress (with seqno range).
type SyncState struct {
	Done         bool
	FromSeqno    int32
	ToSeqno      int32
	CurrentSeqno int32
}

type syncStateAux struct {
	Type         string `json:"@type"`
	FromSeqno    int32  `json:"from_seqno,omitempty"`
	ToSeqno      int32  `json:"to_seqno,omitempty"`
	CurrentSeqno int32  `json:"current_seqno,omitempty"`
}

const (
	syncStateDone       = "syncStateDone"
	syncStateInProgress = "syncStateInProgress"
)

// MarshalJSON implements the json.Marshaler interface.
func (s SyncState) MarshalJSON() ([]byte, error) {
	if s.Done {
		return json.Marshal(syncStateAux{Type: syncStateDone})
	}
	return json.Marshal(syncStateAux{
		Type:         syncStateInProgress,
		FromSeqno:    s.FromSeqno,
		ToSeqno:      s.ToSeqno,
		CurrentSeqno: s.CurrentSeqno,
	})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *SyncState) UnmarshalJSON(data []byte) error {
	var aux syncStateAux
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch aux.Type {
	case syncStateDone:
		*s = SyncState{Done: true}
	case syncStateInProgress:
		*s = SyncState{FromSeqno: aux.FromSeqno, ToSeqno: aux.ToSeqno, CurrentSeqno: aux.CurrentSeqno}
	default:
		return fmt.Errorf("unknown sync state %q", aux.Type)
	}
	return nil
}
