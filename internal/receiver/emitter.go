// Package receiver implements the analyzer side of the relay: it listens on
// a datagram socket, decodes record batches and fans packets out to
// attached capture sessions as pcap streams.
package receiver

import (
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"icc.tech/pcap-bridge/internal/relay"
)

// SnapLen is the snapshot length advertised in every emitted pcap header.
const SnapLen = 65535

// Emitter turns decoded records into a pcap capture stream on an io.Writer,
// typically the extcap fifo or a file. The global file header is written
// lazily before the first packet so an empty session produces an empty
// stream. Not safe for concurrent use; each session owns one emitter.
type Emitter struct {
	pw          *pcapgo.Writer
	wroteHeader bool
}

// NewEmitter wraps out in a pcap stream writer.
func NewEmitter(out io.Writer) *Emitter {
	return &Emitter{pw: pcapgo.NewWriter(out)}
}

// WriteHeader writes the global pcap file header. Emit calls it implicitly;
// it exists so callers can force the header out before any traffic arrives,
// which is what analyzers reading a fifo expect.
func (e *Emitter) WriteHeader() error {
	if e.wroteHeader {
		return nil
	}
	if err := e.pw.WriteFileHeader(SnapLen, layers.LinkTypeEthernet); err != nil {
		return err
	}
	e.wroteHeader = true
	return nil
}

// Emit appends one record as a pcap packet record. Payloads longer than
// SnapLen are truncated with the original length preserved in the header.
func (e *Emitter) Emit(rec *relay.Record) error {
	if err := e.WriteHeader(); err != nil {
		return err
	}
	data := rec.Payload
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(int64(rec.TsSec), int64(rec.TsUsec)*int64(time.Microsecond)),
		Length:        len(data),
		CaptureLength: len(data),
	}
	if len(data) > SnapLen {
		data = data[:SnapLen]
		ci.CaptureLength = SnapLen
	}
	return e.pw.WritePacket(ci, data)
}
