// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the value types shared across mf4bridge stages.
package types

import "errors"

// Identifier limits for the two CAN addressing modes.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

var (
	ErrInvalidID     = errors.New("invalid arbitration identifier")
	ErrInvalidDLC    = errors.New("invalid data length code")
	ErrPayloadLength = errors.New("payload length does not match DLC")
	ErrNegativeTime  = errors.New("negative frame timestamp")
)

// Frame is one decoded CAN frame event. Sequences of frames handed to the
// encoders are ordered by Timestamp (non-decreasing) and read-only.
type Frame struct {
	// Timestamp is the absolute frame time in seconds, relative to the
	// container time base. Never negative.
	Timestamp float64 `json:"timestamp" yaml:"timestamp"`

	// Channel is the zero-based CAN bus channel index the frame was
	// recorded on.
	Channel uint8 `json:"channel" yaml:"channel"`

	// ID is the arbitration identifier: 11-bit standard or 29-bit extended.
	ID uint32 `json:"id" yaml:"id"`

	// Extended reports whether ID is a 29-bit extended identifier.
	Extended bool `json:"extended,omitempty" yaml:"extended,omitempty"`

	// DLC is the data length code: 0-8 for classical CAN, up to 15 for
	// CAN FD (mapped through the FD length table).
	DLC uint8 `json:"dlc" yaml:"dlc"`

	// Data holds the payload. len(Data) == DLCLength(DLC).
	Data []byte `json:"data" yaml:"data"`
}

// fdLengths maps CAN FD DLC values 9..15 to payload byte counts.
var fdLengths = [...]int{12, 16, 20, 24, 32, 48, 64}

// DLCLength returns the payload byte count implied by a DLC value, covering
// both classical CAN (0-8) and CAN FD (9-15). DLC values above 15 return -1.
func DLCLength(dlc uint8) int {
	switch {
	case dlc <= 8:
		return int(dlc)
	case dlc <= 15:
		return fdLengths[dlc-9]
	default:
		return -1
	}
}

// Validate reports whether the frame satisfies the CAN frame invariants:
// identifier within range for its addressing mode, DLC within protocol
// range, payload length matching the DLC, timestamp non-negative.
func (f Frame) Validate() error {
	if f.Extended {
		if f.ID > MaxExtendedID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStandardID {
		return ErrInvalidID
	}
	n := DLCLength(f.DLC)
	if n < 0 {
		return ErrInvalidDLC
	}
	if len(f.Data) != n {
		return ErrPayloadLength
	}
	if f.Timestamp < 0 {
		return ErrNegativeTime
	}
	return nil
}
