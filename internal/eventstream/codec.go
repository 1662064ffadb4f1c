package eventstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Record frame: [magic:4][kind:1][version:1][length:4][payload:N][crc:4]
const (
	recordMagic      uint32 = 0x45565453 // "EVTS"
	recordVersion    uint8  = 1
	recordHeaderSize        = 10
	recordCRCSize           = 4
	maxRecordSize           = 64 << 20
)

// RecordKind identifies the payload of a journal record.
type RecordKind uint8

const (
	KindHash  RecordKind = 1
	KindEvent RecordKind = 2
)

func (k RecordKind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is one decoded journal record. Hash is set for KindHash and Event
// for KindEvent.
type Record struct {
	Kind  RecordKind
	Hash  Hash
	Event *Event
}

// HashRecord wraps h as a record.
func HashRecord(h Hash) Record {
	return Record{Kind: KindHash, Hash: h}
}

// EventRecord wraps e as a record.
func EventRecord(e *Event) Record {
	return Record{Kind: KindEvent, Event: e}
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// HashRecordSize is the encoded size of a hash record.
const HashRecordSize = recordHeaderSize + HashSize + recordCRCSize

// WriteRecord encodes rec as one frame.
func WriteRecord(w io.Writer, rec Record) error {
	var payload []byte
	switch rec.Kind {
	case KindHash:
		payload = rec.Hash[:]
	case KindEvent:
		if rec.Event == nil {
			return errors.New("write record: nil event")
		}
		payload, _ = rec.Event.MarshalBinary()
	default:
		return fmt.Errorf("write record: unknown kind %s", rec.Kind)
	}
	if len(payload) > maxRecordSize {
		return fmt.Errorf("write record: payload of %d bytes exceeds %d", len(payload), maxRecordSize)
	}

	frame := make([]byte, 0, recordHeaderSize+len(payload)+recordCRCSize)
	frame = binary.BigEndian.AppendUint32(frame, recordMagic)
	frame = append(frame, byte(rec.Kind), recordVersion)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint32(frame, crc32.Checksum(payload, crcTable))
	_, err := w.Write(frame)
	return err
}

// readRecord decodes one frame. It returns io.EOF only when r is exhausted
// exactly at a frame boundary; malformed or partial frames wrap errDecode.
func readRecord(r io.Reader) (Record, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fmt.Errorf("%w: partial record header", errDecode)
		}
		return Record{}, err
	}

	if magic := binary.BigEndian.Uint32(header[0:4]); magic != recordMagic {
		return Record{}, fmt.Errorf("%w: bad magic %#x", errDecode, magic)
	}
	kind := RecordKind(header[4])
	if kind != KindHash && kind != KindEvent {
		return Record{}, fmt.Errorf("%w: unknown record %s", errDecode, kind)
	}
	if v := header[5]; v != recordVersion {
		return Record{}, fmt.Errorf("%w: unsupported record version %d", errDecode, v)
	}
	length := binary.BigEndian.Uint32(header[6:10])
	if length > maxRecordSize {
		return Record{}, fmt.Errorf("%w: record length %d exceeds %d", errDecode, length, maxRecordSize)
	}

	body := make([]byte, int(length)+recordCRCSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fmt.Errorf("%w: partial %s record", errDecode, kind)
		}
		return Record{}, err
	}
	payload := body[:length]
	stored := binary.BigEndian.Uint32(body[length:])
	if computed := crc32.Checksum(payload, crcTable); stored != computed {
		return Record{}, fmt.Errorf("%w: crc mismatch (stored=%08x, computed=%08x)", errDecode, stored, computed)
	}

	switch kind {
	case KindHash:
		if len(payload) != HashSize {
			return Record{}, fmt.Errorf("%w: hash record of %d bytes", errDecode, len(payload))
		}
		var h Hash
		copy(h[:], payload)
		return HashRecord(h), nil
	default:
		e := &Event{}
		if err := e.UnmarshalBinary(payload); err != nil {
			return Record{}, fmt.Errorf("%w: %v", errDecode, err)
		}
		return EventRecord(e), nil
	}
}
