package mlx90363

import "fmt"

// Opcode identifies a request or response kind (6 bits on the wire).
type Opcode byte

// Outgoing opcodes.
const (
	OpGET1              Opcode = 0x13
	OpGET2              Opcode = 0x14
	OpGET3              Opcode = 0x15
	OpMemoryRead        Opcode = 0x01
	OpEEPROMWrite       Opcode = 0x03
	OpEEChallengeAns    Opcode = 0x05
	OpEEReadChallenge   Opcode = 0x0F
	OpNOPChallenge      Opcode = 0x10
	OpDiagnosticDetails Opcode = 0x16
	OpOscCounterStart   Opcode = 0x18
	OpOscCounterStop    Opcode = 0x1A
	OpReboot            Opcode = 0x2F
	OpStandby           Opcode = 0x31
)

// Incoming opcodes.
const (
	OpGet3Ready            Opcode = 0x2D
	OpMemoryReadAnswer     Opcode = 0x02
	OpEEPROMWriteChallenge Opcode = 0x04
	OpEEReadAnswer         Opcode = 0x28
	OpEEPROMWriteStatus    Opcode = 0x0E
	OpChallengeNOPMISO     Opcode = 0x11
	OpDiagnosticsAnswer    Opcode = 0x17
	OpOscCounterStartAck   Opcode = 0x19
	OpOscCounterStopAck    Opcode = 0x1B
	OpStandbyAck           Opcode = 0x32
	OpErrorFrame           Opcode = 0x3D
	OpNothingToTransmit    Opcode = 0x3E
	OpReadyMessage         Opcode = 0x2C
)

const opcodeMask = 0x3f

var opcodeNames = map[Opcode]string{
	OpGET1:                 "GET1",
	OpGET2:                 "GET2",
	OpGET3:                 "GET3",
	OpGet3Ready:            "Get3Ready",
	OpMemoryRead:           "MemoryRead",
	OpMemoryReadAnswer:     "MemoryReadAnswer",
	OpEEPROMWrite:          "EEPROMWrite",
	OpEEPROMWriteChallenge: "EEPROMWriteChallenge",
	OpEEChallengeAns:       "EEChallengeAns",
	OpEEReadAnswer:         "EEReadAnswer",
	OpEEReadChallenge:      "EEReadChallenge",
	OpEEPROMWriteStatus:    "EEPROMWriteStatus",
	OpNOPChallenge:         "NOPChallenge",
	OpChallengeNOPMISO:     "ChallengeNOPMISO",
	OpDiagnosticDetails:    "DiagnosticDetails",
	OpDiagnosticsAnswer:    "DiagnosticsAnswer",
	OpOscCounterStart:      "OscCounterStart",
	OpOscCounterStartAck:   "OscCounterStartAck",
	OpOscCounterStop:       "OscCounterStop",
	OpOscCounterStopAck:    "OscCounterStopAck",
	OpReboot:               "Reboot",
	OpStandby:              "Standby",
	OpStandbyAck:           "StandbyAck",
	OpErrorFrame:           "ErrorFrame",
	OpNothingToTransmit:    "NothingToTransmit",
	OpReadyMessage:         "ReadyMessage",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02x)", byte(o))
}

// Known tells whether the opcode is part of the device vocabulary.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// IsGET is true for the measurement requests.
func (o Opcode) IsGET() bool {
	return o == OpGET1 || o == OpGET2 || o == OpGET3
}

// MessageType is the 2-bit marker carried in byte 6 of every frame.
type MessageType byte

// Markers.
const (
	TypeAlpha MessageType = iota
	TypeAlphaBeta
	TypeXYZ
	TypeOther
)

// String implements fmt.Stringer.
func (t MessageType) String() string {
	switch t {
	case TypeAlpha:
		return "Alpha"
	case TypeAlphaBeta:
		return "AlphaBeta"
	case TypeXYZ:
		return "XYZ"
	case TypeOther:
		return "Other"
	}
	return fmt.Sprintf("MessageType(%d)", byte(t))
}

// ParseMessageType accepts the names used in configuration and the shell.
func ParseMessageType(s string) (MessageType, error) {
	switch s {
	case "alpha", "a", "Alpha":
		return TypeAlpha, nil
	case "alphabeta", "ab", "AlphaBeta":
		return TypeAlphaBeta, nil
	case "xyz", "XYZ":
		return TypeXYZ, nil
	}
	return TypeOther, fmt.Errorf("unknown measurement type %q", s)
}
