package protocol

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
)

// Checksum returns the digest bytes carried in the frame header: an MD5 of
// the payload truncated to 4 bytes. The contract is corruption detection
// with high probability, not cryptographic integrity.
func Checksum(payload []byte) [ChecksumSize]byte {
	sum := md5.Sum(payload)
	var c [ChecksumSize]byte
	copy(c[:], sum[:ChecksumSize])
	return c
}

// Encode serializes a frame into its wire form: the 11-byte big-endian
// header followed by the payload. Pure transformation, no side effects.
func Encode(f *Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(f.Payload)))
	buf[4] = f.Type
	binary.BigEndian.PutUint16(buf[5:7], f.Seq)
	sum := Checksum(f.Payload)
	copy(buf[7:HeaderSize], sum[:])
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// Decode deserializes a byte slice into a Frame. The payload_length field is
// never trusted beyond bounds-checking against the bytes actually present.
//
// On ChecksumMismatch the partially decoded frame is returned alongside the
// error — the header survived, so the receiver can still NACK its sequence
// number. For every other error the frame is nil.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, &DecodeError{
			Kind:   IncompleteFrame,
			Detail: fmt.Sprintf("%d bytes, need at least %d", len(data), HeaderSize),
		}
	}

	length := binary.BigEndian.Uint32(data[0:4])
	if length > MaxFrameSize-HeaderSize {
		return nil, &DecodeError{
			Kind:   IncompleteFrame,
			Detail: fmt.Sprintf("payload length %d exceeds frame limit", length),
		}
	}
	if len(data) < HeaderSize+int(length) {
		return nil, &DecodeError{
			Kind:   IncompleteFrame,
			Detail: fmt.Sprintf("payload truncated: have %d bytes, header says %d", len(data)-HeaderSize, length),
		}
	}

	typ := data[4]
	if !validType(typ) {
		return nil, &DecodeError{
			Kind:   UnknownMessageType,
			Detail: fmt.Sprintf("tag 0x%02x", typ),
		}
	}

	f := &Frame{
		Type:    typ,
		Seq:     binary.BigEndian.Uint16(data[5:7]),
		Payload: make([]byte, length),
	}
	copy(f.Payload, data[HeaderSize:HeaderSize+int(length)])

	var want [ChecksumSize]byte
	copy(want[:], data[7:HeaderSize])
	if Checksum(f.Payload) != want {
		return f, &DecodeError{
			Kind:   ChecksumMismatch,
			Detail: fmt.Sprintf("seq %d", f.Seq),
		}
	}

	return f, nil
}

// ReadFrame reads one frame from a byte stream: the fixed header first, then
// exactly payload_length payload bytes. Transport-level read errors
// (including deadline timeouts) pass through unwrapped; malformed frames
// surface as DecodeError.
func ReadFrame(r io.Reader) (*Frame, error) {
	buf := make([]byte, HeaderSize, HeaderSize*2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(buf[0:4])
	if length > MaxFrameSize-HeaderSize {
		return nil, &DecodeError{
			Kind:   IncompleteFrame,
			Detail: fmt.Sprintf("payload length %d exceeds frame limit", length),
		}
	}

	buf = append(buf, make([]byte, length)...)
	if _, err := io.ReadFull(r, buf[HeaderSize:]); err != nil {
		return nil, err
	}

	return Decode(buf)
}

// WriteFrame encodes a frame and writes it to the stream in one call.
func WriteFrame(w io.Writer, f *Frame) error {
	_, err := w.Write(Encode(f))
	return err
}
