// Package events decodes the 16-byte wire records a host appends to its
// local event log: one per user action or setting change, little-endian,
// laid out as u8 kind, 3 bytes padding, u32 value, u64 time.
package events

import (
	"encoding/binary"
	"fmt"
)

// Kind distinguishes an activity-second record from the three setting
// records. Settings are handled through the last-writer-wins register;
// Action is handled through the Activity Updater.
type Kind uint8

const (
	Action Kind = iota
	DailyTarget
	SessionTarget
	RestTarget
)

func (k Kind) IsSetting() bool { return k != Action }

func (k Kind) String() string {
	switch k {
	case Action:
		return "action"
	case DailyTarget:
		return "daily_target"
	case SessionTarget:
		return "session_target"
	case RestTarget:
		return "rest_target"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// RecordSize is the on-wire byte length of one event record.
const RecordSize = 16

// Record is one decoded event: an action second (Value holds the
// activity duration in seconds, ordinarily 1) or a setting write (Value
// holds the new target, in seconds).
type Record struct {
	Kind  Kind
	Value uint32
	Time  int64
}

// DecodeBatch parses a run of concatenated 16-byte records. It returns an
// error if the data is not a whole number of records.
func DecodeBatch(data []byte) ([]Record, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("events: batch length %d is not a multiple of %d", len(data), RecordSize)
	}
	records := make([]Record, 0, len(data)/RecordSize)
	for offset := 0; offset < len(data); offset += RecordSize {
		records = append(records, decodeOne(data[offset:offset+RecordSize]))
	}
	return records, nil
}

func decodeOne(b []byte) Record {
	return Record{
		Kind:  Kind(b[0]),
		Value: binary.LittleEndian.Uint32(b[4:8]),
		Time:  int64(binary.LittleEndian.Uint64(b[8:16])),
	}
}

// Encode serializes a Record to its 16-byte wire form, the inverse of
// DecodeBatch for a single record.
func (r Record) Encode() []byte {
	b := make([]byte, RecordSize)
	b[0] = byte(r.Kind)
	binary.LittleEndian.PutUint32(b[4:8], r.Value)
	binary.LittleEndian.PutUint64(b[8:16], uint64(r.Time))
	return b
}
