// Package spi frames register transactions onto the DUT's serial control
// input.
package spi

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned when a transaction field is out of range.
// Nothing is driven onto the bus when it is returned.
var ErrInvalidArgument = errors.New("invalid argument")

// Direction selects a read or write transaction
type Direction uint8

const (
	Read  Direction = 0
	Write Direction = 1
)

// String returns "read" or "write"
func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

const (
	// MaxAddress is the largest 7-bit register address
	MaxAddress = 0x7F
	// MaxPayload is the largest 8-bit payload
	MaxPayload = 0xFF
	// WordBits is the number of bits clocked out per transaction
	WordBits = 16
)

// Transaction is one serial exchange: [direction:1][address:7][payload:8],
// most significant bit first.
type Transaction struct {
	Direction Direction `json:"direction"`
	Address   int       `json:"address"`
	Payload   int       `json:"payload"`
}

// NewWrite returns a write transaction
func NewWrite(address, payload int) Transaction {
	return Transaction{Direction: Write, Address: address, Payload: payload}
}

// NewRead returns a read transaction. The payload is still clocked out.
func NewRead(address, payload int) Transaction {
	return Transaction{Direction: Read, Address: address, Payload: payload}
}

// Validate checks the field ranges
func (t Transaction) Validate() error {
	if t.Direction != Read && t.Direction != Write {
		return fmt.Errorf("%w: direction must be read or write, got %d", ErrInvalidArgument, t.Direction)
	}
	if t.Address < 0 || t.Address > MaxAddress {
		return fmt.Errorf("%w: address must be 7-bit (0-127), got %d", ErrInvalidArgument, t.Address)
	}
	if t.Payload < 0 || t.Payload > MaxPayload {
		return fmt.Errorf("%w: payload must be 8-bit (0-255), got %d", ErrInvalidArgument, t.Payload)
	}
	return nil
}

// Word packs the transaction into its 16-bit wire form. The transaction must
// be valid.
func (t Transaction) Word() uint16 {
	return uint16(t.Direction&1)<<15 | uint16(t.Address&MaxAddress)<<8 | uint16(t.Payload&MaxPayload)
}

// String formats the transaction for logs
func (t Transaction) String() string {
	return fmt.Sprintf("%s addr=0x%02X data=0x%02X", t.Direction, t.Address, t.Payload)
}
