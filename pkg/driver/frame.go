package driver

import (
	"encoding/binary"
	"fmt"
	"io"

	"cvquant-go/pkg/errors"
)

// Tether frame protocol. One request/response pair per cycle leg:
//
//	host -> device: 0xA5 nchan xor          (sample request)
//	device -> host: 0x5A nchan s0..sN xor   (samples, int32 LE each)
//	host -> device: 0xC3 nchan c0..cN xor   (codes, uint16 LE each)
//	device -> host: 0x3C xor                (code ack)
//
// xor is the running XOR of every preceding frame byte. The framing is
// deliberately dumb; the tether is a point-to-point wire, not a bus.
const (
	frameSampleReq  = 0xA5
	frameSampleResp = 0x5A
	frameCodeReq    = 0xC3
	frameCodeAck    = 0x3C
)

// MaxChannels bounds a frame's channel count.
const MaxChannels = 8

func xorSum(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}

// Tether speaks the frame protocol over any byte stream (serial port,
// unix socket, test pipe).
type Tether struct {
	rw       io.ReadWriter
	channels int
}

// NewTether wraps a byte stream for the given channel count.
func NewTether(rw io.ReadWriter, channels int) (*Tether, error) {
	if channels < 1 || channels > MaxChannels {
		return nil, errors.ConfigValidationError("driver", "channels",
			fmt.Sprintf("channel count %d outside 1..%d", channels, MaxChannels))
	}
	return &Tether{rw: rw, channels: channels}, nil
}

// ReadSamples requests and decodes one sample per channel.
func (t *Tether) ReadSamples(samples []int32) error {
	if len(samples) != t.channels {
		return errors.DriverIOError("read",
			fmt.Errorf("sample slice has %d entries, tether has %d channels", len(samples), t.channels))
	}

	req := []byte{frameSampleReq, byte(t.channels), 0}
	req[2] = xorSum(req[:2])
	if _, err := t.rw.Write(req); err != nil {
		return errors.DriverIOError("sample request", err)
	}

	resp := make([]byte, 2+4*t.channels+1)
	if _, err := io.ReadFull(t.rw, resp); err != nil {
		return errors.DriverIOError("sample response", err)
	}
	if resp[0] != frameSampleResp || int(resp[1]) != t.channels {
		return errors.DriverIOError("sample response",
			fmt.Errorf("bad header % x", resp[:2]))
	}
	if xorSum(resp[:len(resp)-1]) != resp[len(resp)-1] {
		return errors.DriverIOError("sample response", fmt.Errorf("checksum mismatch"))
	}
	for i := range samples {
		samples[i] = int32(binary.LittleEndian.Uint32(resp[2+4*i:]))
	}
	return nil
}

// WriteCodes sends one code per channel and waits for the ack.
func (t *Tether) WriteCodes(codes []uint16) error {
	if len(codes) != t.channels {
		return errors.DriverIOError("write",
			fmt.Errorf("code slice has %d entries, tether has %d channels", len(codes), t.channels))
	}

	frame := make([]byte, 2+2*t.channels+1)
	frame[0] = frameCodeReq
	frame[1] = byte(t.channels)
	for i, c := range codes {
		binary.LittleEndian.PutUint16(frame[2+2*i:], c)
	}
	frame[len(frame)-1] = xorSum(frame[:len(frame)-1])
	if _, err := t.rw.Write(frame); err != nil {
		return errors.DriverIOError("code write", err)
	}

	ack := make([]byte, 2)
	if _, err := io.ReadFull(t.rw, ack); err != nil {
		return errors.DriverIOError("code ack", err)
	}
	if ack[0] != frameCodeAck || ack[1] != frameCodeAck {
		return errors.DriverIOError("code ack", fmt.Errorf("bad ack % x", ack))
	}
	return nil
}

// ServeFrame handles one device-side request: reads a frame from the
// host, calls the sample or code callback and writes the reply. The mock
// hardware endpoint runs this in a loop. io.EOF propagates unchanged so
// the caller can tell a clean disconnect from a protocol fault.
func ServeFrame(rw io.ReadWriter, samples func() []int32, codes func([]uint16)) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(rw, hdr); err != nil {
		return err
	}
	nchan := int(hdr[1])
	if nchan < 1 || nchan > MaxChannels {
		return fmt.Errorf("driver: bad channel count %d", nchan)
	}

	switch hdr[0] {
	case frameSampleReq:
		sum := make([]byte, 1)
		if _, err := io.ReadFull(rw, sum); err != nil {
			return err
		}
		if xorSum(hdr) != sum[0] {
			return fmt.Errorf("driver: request checksum mismatch")
		}
		s := samples()
		if len(s) != nchan {
			return fmt.Errorf("driver: have %d channels, host asked for %d", len(s), nchan)
		}
		resp := make([]byte, 2+4*nchan+1)
		resp[0] = frameSampleResp
		resp[1] = byte(nchan)
		for i, v := range s {
			binary.LittleEndian.PutUint32(resp[2+4*i:], uint32(v))
		}
		resp[len(resp)-1] = xorSum(resp[:len(resp)-1])
		_, err := rw.Write(resp)
		return err

	case frameCodeReq:
		body := make([]byte, 2*nchan+1)
		if _, err := io.ReadFull(rw, body); err != nil {
			return err
		}
		full := append(hdr, body[:len(body)-1]...)
		if xorSum(full) != body[len(body)-1] {
			return fmt.Errorf("driver: code checksum mismatch")
		}
		out := make([]uint16, nchan)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(body[2*i:])
		}
		codes(out)
		_, err := rw.Write([]byte{frameCodeAck, frameCodeAck})
		return err

	default:
		return fmt.Errorf("driver: unknown frame type 0x%02x", hdr[0])
	}
}
