package timeline

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const entryVersion byte = 1

// Entry is the value persisted for one state transition of an instant.
type Entry struct {
	// CompletionTime is only set on the COMPLETED entry.
	CompletionTime string
	Payload        []byte
}

// ToBytes encodes the entry as: version byte, big endian uint16 length of the completion time, the completion time,
// then the payload.
func (e *Entry) ToBytes() []byte {
	buf := make([]byte, 3, 3+len(e.CompletionTime)+len(e.Payload))
	buf[0] = entryVersion
	binary.BigEndian.PutUint16(buf[1:], uint16(len(e.CompletionTime)))
	buf = append(buf, e.CompletionTime...)
	return append(buf, e.Payload...)
}

// ParseEntry decodes a value written by Entry.ToBytes.
func ParseEntry(value []byte) (*Entry, error) {
	if len(value) < 3 {
		return nil, fmt.Errorf("timeline/codec/ParseEntry: value is too short, expected at least 3, found %d", len(value))
	}
	if value[0] != entryVersion {
		return nil, fmt.Errorf("timeline/codec/ParseEntry: unsupported version %d", value[0])
	}
	n := int(binary.BigEndian.Uint16(value[1:]))
	if len(value) < 3+n {
		return nil, fmt.Errorf("timeline/codec/ParseEntry: completion time needs %d bytes, found %d", n, len(value)-3)
	}
	e := &Entry{CompletionTime: string(value[3 : 3+n])}
	if rest := value[3+n:]; len(rest) > 0 {
		e.Payload = append([]byte(nil), rest...)
	}
	return e, nil
}

// EncodeKey returns the storage key of the entry recording inst in its current state: <ts>.<ACTION>.<STATE> under
// prefix.
func EncodeKey(prefix string, inst Instant) []byte {
	return []byte(prefix + inst.Timestamp + "." + string(inst.Action) + "." + inst.State.String())
}

// DecodeKey parses a key produced by EncodeKey with the prefix already removed.
func DecodeKey(key string) (Instant, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return Instant{}, fmt.Errorf("timeline/codec/DecodeKey: malformed key %q", key)
	}
	if len(parts[0]) != InstantTimeLength {
		return Instant{}, fmt.Errorf("timeline/codec/DecodeKey: malformed timestamp in %q", key)
	}
	action, err := ParseAction(parts[1])
	if err != nil {
		return Instant{}, err
	}
	state, err := ParseState(parts[2])
	if err != nil {
		return Instant{}, err
	}
	return NewInstant(state, action, parts[0]), nil
}
