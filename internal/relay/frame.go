// Package relay implements the datagram framing protocol that carries
// captured packets from the dataplane agent to the receiver.
//
// Each datagram is a concatenation of records. A record is a fixed 17-byte
// big-endian header immediately followed by the raw packet bytes:
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       4     interface id (uint32)
//	4       4     timestamp seconds (uint32)
//	8       4     timestamp microseconds (uint32)
//	12      4     payload length (uint32)
//	16      1     direction (0 = rx, 1 = tx)
//	17      …     payload (payload-length bytes)
//
// Datagrams never exceed MaxDatagramSize and never carry partial records:
// a packet whose single record would not fit in an empty datagram cannot be
// transported at all and is dropped at framing time. There is no sequence
// number and no acknowledgement; loss shows up as gaps in the capture.
package relay

import (
	"encoding/binary"
	"fmt"

	"icc.tech/pcap-bridge/internal/core"
)

const (
	// RecordHeaderSize is the fixed per-record header length.
	RecordHeaderSize = 17

	// MaxDatagramSize is the practical UDP payload ceiling (65535 minus
	// IP and UDP headers). Unix datagram sockets are held to the same
	// bound so both transports share one framing path.
	MaxDatagramSize = 65507

	// MaxRecordPayload is the largest packet that fits in one datagram.
	MaxRecordPayload = MaxDatagramSize - RecordHeaderSize
)

// Record is one framed packet as it appears on the wire.
type Record struct {
	InterfaceID uint32
	TsSec       uint32
	TsUsec      uint32
	Direction   core.Direction
	Payload     []byte
}

// EncodedSize returns the wire size of a record carrying payloadLen bytes.
func EncodedSize(payloadLen int) int {
	return RecordHeaderSize + payloadLen
}

// AppendRecord serialises rec onto buf and returns the extended slice.
// The caller is responsible for the datagram size bound.
func AppendRecord(buf []byte, rec *Record) []byte {
	var hdr [RecordHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], rec.InterfaceID)
	binary.BigEndian.PutUint32(hdr[4:8], rec.TsSec)
	binary.BigEndian.PutUint32(hdr[8:12], rec.TsUsec)
	binary.BigEndian.PutUint32(hdr[12:16], uint32(len(rec.Payload)))
	hdr[16] = byte(rec.Direction)
	buf = append(buf, hdr[:]...)
	return append(buf, rec.Payload...)
}

// DecodeDatagram parses every complete record out of one datagram.
//
// Payloads are copied out of data, so the caller may reuse its receive
// buffer immediately. Trailing bytes that do not form a complete record
// (header or payload cut short) terminate decoding: the records parsed so
// far are returned together with a wrapped ErrTruncatedRecord. Datagrams
// are self-contained; a record never continues in the next datagram, so a
// short tail is always corruption, not fragmentation.
func DecodeDatagram(data []byte) ([]Record, error) {
	var records []Record
	off := 0
	for off < len(data) {
		if len(data)-off < RecordHeaderSize {
			return records, fmt.Errorf("%w: %d trailing bytes at offset %d",
				core.ErrTruncatedRecord, len(data)-off, off)
		}
		payloadLen := int(binary.BigEndian.Uint32(data[off+12 : off+16]))
		if len(data)-off-RecordHeaderSize < payloadLen {
			return records, fmt.Errorf("%w: record at offset %d declares %d payload bytes, %d remain",
				core.ErrTruncatedRecord, off, payloadLen, len(data)-off-RecordHeaderSize)
		}

		rec := Record{
			InterfaceID: binary.BigEndian.Uint32(data[off : off+4]),
			TsSec:       binary.BigEndian.Uint32(data[off+4 : off+8]),
			TsUsec:      binary.BigEndian.Uint32(data[off+8 : off+12]),
			Direction:   core.DirectionRx,
		}
		if data[off+16] != 0 {
			rec.Direction = core.DirectionTx
		}
		rec.Payload = make([]byte, payloadLen)
		copy(rec.Payload, data[off+RecordHeaderSize:off+RecordHeaderSize+payloadLen])

		records = append(records, rec)
		off += RecordHeaderSize + payloadLen
	}
	return records, nil
}

// FrameBuilder packs records into datagrams up to MaxDatagramSize and hands
// each full datagram to the flush callback. One builder serves one batch
// pass of the sender; it is not safe for concurrent use.
type FrameBuilder struct {
	buf       []byte
	flush     func([]byte) error
	oversized uint64
}

// NewFrameBuilder creates a builder that delivers datagrams via flush.
func NewFrameBuilder(flush func([]byte) error) *FrameBuilder {
	return &FrameBuilder{
		buf:   make([]byte, 0, MaxDatagramSize),
		flush: flush,
	}
}

// Add frames rec into the current datagram, flushing first when the record
// would overflow it. Records too large for even an empty datagram are
// dropped and counted, never split across datagrams.
func (b *FrameBuilder) Add(rec *Record) error {
	need := EncodedSize(len(rec.Payload))
	if need > MaxDatagramSize {
		b.oversized++
		return fmt.Errorf("%w: %d bytes payload", core.ErrRecordTooLarge, len(rec.Payload))
	}
	if len(b.buf)+need > MaxDatagramSize {
		if err := b.Flush(); err != nil {
			return err
		}
	}
	b.buf = AppendRecord(b.buf, rec)
	return nil
}

// Flush sends the pending datagram, if any.
func (b *FrameBuilder) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	err := b.flush(b.buf)
	b.buf = b.buf[:0]
	return err
}

// OversizedDrops returns the number of records dropped because their own
// encoding exceeded MaxDatagramSize.
func (b *FrameBuilder) OversizedDrops() uint64 {
	return b.oversized
}
