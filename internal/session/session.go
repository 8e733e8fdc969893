// Package session coordinates the device, the parameter store and the
// notification slot for one operator session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"bagmachine-remote/internal/device"
	"bagmachine-remote/internal/notify"
	"bagmachine-remote/internal/params"
)

// ErrActionPending is returned when an action is triggered while the same
// action is still in flight.
var ErrActionPending = errors.New("action already in progress")

// MachineStatus is the last confirmed state of the machine.
type MachineStatus string

const (
	StatusUnknown MachineStatus = "unknown"
	StatusStopped MachineStatus = "stopped"
	StatusRunning MachineStatus = "running"
)

// statusFromToken maps a device status answer. Only the exact token
// "running" counts; the device has only ever been seen answering in lower case.
func statusFromToken(token string) MachineStatus {
	if token == "running" {
		return StatusRunning
	}
	return StatusStopped
}

// Action identifies a long-running operator action.
type Action string

const (
	ActionSync          Action = "sync"
	ActionSaveBagLength Action = "save_bag_length"
	ActionSaveSpeed     Action = "save_speed"
	ActionStart         Action = "start"
	ActionStop          Action = "stop"
)

// Actions lists every action in display order.
var Actions = []Action{ActionSync, ActionSaveBagLength, ActionSaveSpeed, ActionStart, ActionStop}

// Outcome classifies how an action ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnreachable Outcome = "unreachable"
)

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case device.IsRejected(err):
		return OutcomeRejected
	default:
		return OutcomeUnreachable
	}
}

// Operator-facing messages.
const (
	MsgUnreachable    = "Device not reachable"
	MsgBagLengthSaved = "Bag length updated: %d cm"
	MsgBagLengthError = "Save failed"
	MsgSpeedSaved     = "BPM set to %d"
	MsgSpeedError     = "Failed to set BPM"
	MsgStarted        = "Machine started"
	MsgStartError     = "Start failed"
	MsgStopped        = "Machine stopped"
	MsgStopError      = "Stop failed"
)

// message picks the wording for an action outcome. okFmt may contain a %d verb
// for value.
func message(outcome Outcome, okFmt, rejected string, value int) string {
	switch outcome {
	case OutcomeOK:
		if value >= 0 {
			return fmt.Sprintf(okFmt, value)
		}
		return okFmt
	case OutcomeRejected:
		return rejected
	default:
		return MsgUnreachable
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	SessionID    string               `json:"session_id"`
	Status       MachineStatus        `json:"status"`
	RawStatus    string               `json:"raw_status"`
	BagLength    params.Parameter     `json:"bag_length"`
	Speed        params.Parameter     `json:"speed"`
	Pending      map[Action]bool      `json:"pending"`
	Notification *notify.Notification `json:"notification,omitempty"`
	TakenAt      time.Time            `json:"taken_at"`
}

// Busy reports whether any action is in flight.
func (s Snapshot) Busy() bool {
	for _, p := range s.Pending {
		if p {
			return true
		}
	}
	return false
}

// Record describes one completed action for the journal.
type Record struct {
	SessionID string
	Action    Action
	Outcome   Outcome
	Value     *int
	Message   string
	Detail    string
	At        time.Time
}

// Journal stores completed actions.
type Journal interface {
	Record(ctx context.Context, r Record) error
}

var failureMessages = map[string]bool{
	MsgUnreachable:    true,
	MsgBagLengthError: true,
	MsgSpeedError:     true,
	MsgStartError:     true,
	MsgStopError:      true,
}

// IsFailureMessage reports whether msg announces a failed action.
func IsFailureMessage(msg string) bool {
	return failureMessages[msg]
}
