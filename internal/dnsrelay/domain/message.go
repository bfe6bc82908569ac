// message.go implements the minimal DNS wire-format parsing the forwarding
// core actually needs. The core mutates only bytes [0..2) and treats the
// rest as opaque - but it must parse enough of the question section to
// extract the first QNAME for routing, and enough of the header to extract
// the id from responses. No resource-record decoding lives here; that is
// explicitly out of the core's scope.
package domain

import (
	"encoding/binary"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/derr"
)

const headerSize = 12

// maxNamePointerJumps bounds compression-pointer following to guard
// against malicious or malformed pointer loops.
const maxNamePointerJumps = 32

// Question is the {qname, qclass, qtype} tuple of a DNS query's question
// section, plus the message's transaction id.
type Question struct {
	ID    uint16
	Name  Name
	Type  RRType
	Class RRClass
}

// MessageID reads the transaction id (bytes [0..2)) from any DNS message
// buffer, query or response.
func MessageID(buf []byte) (uint16, error) {
	if len(buf) < 2 {
		return 0, derr.New(derr.KindParse, "message shorter than 2 bytes")
	}
	return binary.BigEndian.Uint16(buf[0:2]), nil
}

// SetMessageID overwrites bytes [0..2) of buf with id, in place. This is
// the only mutation the core ever performs on a message buffer - no other
// bytes are modified.
func SetMessageID(buf []byte, id uint16) error {
	if len(buf) < 2 {
		return derr.New(derr.KindParse, "message shorter than 2 bytes")
	}
	binary.BigEndian.PutUint16(buf[0:2], id)
	return nil
}

// ResponseRCode extracts the response code nibble from a response header,
// for logging only.
func ResponseRCode(buf []byte) (RCode, error) {
	if len(buf) < headerSize {
		return 0, derr.New(derr.KindParse, "message shorter than header")
	}
	return RCode(buf[3] & 0x0F), nil
}

// ParseQuestion parses just enough of a query to extract its single
// question. If parsing fails or the question count is not exactly one, it
// fails with a parse error.
func ParseQuestion(buf []byte) (Question, error) {
	if len(buf) < headerSize {
		return Question{}, derr.New(derr.KindParse, "message shorter than header")
	}
	id := binary.BigEndian.Uint16(buf[0:2])
	qdcount := binary.BigEndian.Uint16(buf[4:6])
	if qdcount != 1 {
		return Question{}, derr.New(derr.KindParse, "expected exactly one question section")
	}

	name, offset, err := decodeName(buf, headerSize)
	if err != nil {
		return Question{}, err
	}
	if offset+4 > len(buf) {
		return Question{}, derr.New(derr.KindParse, "truncated question type/class")
	}
	qtype := RRType(binary.BigEndian.Uint16(buf[offset : offset+2]))
	qclass := RRClass(binary.BigEndian.Uint16(buf[offset+2 : offset+4]))

	return Question{ID: id, Name: name, Type: qtype, Class: qclass}, nil
}

// decodeName decodes a (possibly compressed) domain name starting at
// offset, returning the parsed Name and the offset immediately following
// the name as it appears at the call site (i.e. after a pointer, not
// after the jump target).
func decodeName(buf []byte, offset int) (Name, int, error) {
	var labels Name
	jumps := 0
	cursor := offset
	endOfName := -1 // offset just past the name at the original cursor, set on first pointer

	for {
		if cursor >= len(buf) {
			return nil, 0, derr.New(derr.KindParse, "name runs past end of message")
		}
		length := int(buf[cursor])

		switch {
		case length == 0:
			cursor++
			if endOfName == -1 {
				endOfName = cursor
			}
			return labels, endOfName, nil

		case length&0xC0 == 0xC0:
			if cursor+1 >= len(buf) {
				return nil, 0, derr.New(derr.KindParse, "truncated compression pointer")
			}
			if endOfName == -1 {
				endOfName = cursor + 2
			}
			jumps++
			if jumps > maxNamePointerJumps {
				return nil, 0, derr.New(derr.KindParse, "too many compression pointer jumps")
			}
			pointer := int(binary.BigEndian.Uint16(buf[cursor:cursor+2]) & 0x3FFF)
			if pointer >= cursor {
				return nil, 0, derr.New(derr.KindParse, "compression pointer does not point backward")
			}
			cursor = pointer

		case length&0xC0 != 0:
			return nil, 0, derr.New(derr.KindParse, "reserved label length bits set")

		default:
			cursor++
			if cursor+length > len(buf) {
				return nil, 0, derr.New(derr.KindParse, "label runs past end of message")
			}
			labels = append(labels, canonicalLabel(string(buf[cursor:cursor+length])))
			cursor += length
		}
	}
}
