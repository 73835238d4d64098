package statestore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to the checkpoint structure;
// resumed sessions deserialize older checkpoints, so the field names and
// types below must otherwise remain stable.
const Version = 1

// Checkpoint is the persisted snapshot of a session's workflow state.
// It is the only externally persisted artifact the engine owns.
type Checkpoint struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	Sequence  int       `json:"sequence"`
	WrittenAt time.Time `json:"written_at"`

	// State is the serialized WorkflowState.
	State json.RawMessage `json:"state"`
}

// New creates a checkpoint for the given session.
// State must already be JSON-serialized.
func New(sessionID string, sequence int, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		SessionID: sessionID,
		Sequence:  sequence,
		WrittenAt: time.Now().UTC(),
		State:     state,
	}
}

// Marshal serializes the checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint and verifies its version.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	if c.Version != Version {
		return nil, fmt.Errorf("checkpoint version mismatch: got %d, expected %d", c.Version, Version)
	}
	return &c, nil
}
