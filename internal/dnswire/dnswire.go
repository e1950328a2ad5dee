// Package dnswire implements the narrow slice of RFC 1035 wire-format
// encoding and decoding the resolver core needs: parsing an inbound
// query's header and first question, synthesizing an A-record reply for
// cache/blocklist hits, and pulling A records out of an upstream answer
// section for cache insertion.
//
// It deliberately does not attempt to be a general-purpose DNS library —
// it has no CNAME/MX/TXT/SOA authoring support and no record-type
// registry, because nothing upstream of it needs one.
package dnswire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrWireFormat is the sentinel every parse/build error in this package
// wraps, so callers can test with errors.Is(err, dnswire.ErrWireFormat).
var ErrWireFormat = errors.New("dnswire: malformed message")

const (
	headerSize = 12

	flagQR = 0x8000
	flagAA = 0x0400
	flagTC = 0x0200
	flagRD = 0x0100
	flagRA = 0x0080

	typeA     = 1
	classIN   = 1
	rcodeMask = 0x000F
)

// StickyTTL is the TTL stamped on every synthesized cache/blocklist reply
// (~10 years), making such answers effectively permanent at the client.
const StickyTTL = 315576000

// Header is the 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Query is a parsed inbound request: its header and the name/type/class
// of its (sole, relevant) first question.
type Query struct {
	Header   Header
	QName    string // lowercase, no trailing dot
	QType    uint16
	QClass   uint16
	rawQName []byte // wire-encoded name, retained for reply synthesis
}

// ParseQuery parses a DNS header and first question from a raw datagram.
// It returns ErrWireFormat if the message is too short, has QDCount == 0,
// or the question section is truncated.
func ParseQuery(msg []byte) (*Query, error) {
	if len(msg) < headerSize {
		return nil, fmt.Errorf("%w: message shorter than header", ErrWireFormat)
	}

	h := Header{
		ID:      binary.BigEndian.Uint16(msg[0:2]),
		Flags:   binary.BigEndian.Uint16(msg[2:4]),
		QDCount: binary.BigEndian.Uint16(msg[4:6]),
		ANCount: binary.BigEndian.Uint16(msg[6:8]),
		NSCount: binary.BigEndian.Uint16(msg[8:10]),
		ARCount: binary.BigEndian.Uint16(msg[10:12]),
	}
	if h.QDCount == 0 {
		return nil, fmt.Errorf("%w: empty question section", ErrWireFormat)
	}

	name, rawName, offset, err := decodeName(msg, headerSize)
	if err != nil {
		return nil, err
	}
	if offset+4 > len(msg) {
		return nil, fmt.Errorf("%w: question truncated", ErrWireFormat)
	}
	qtype := binary.BigEndian.Uint16(msg[offset : offset+2])
	qclass := binary.BigEndian.Uint16(msg[offset+2 : offset+4])

	return &Query{
		Header:   h,
		QName:    normalizeName(name),
		QType:    qtype,
		QClass:   qclass,
		rawQName: rawName,
	}, nil
}

// decodeName reads an uncompressed domain name starting at offset,
// returning its dotted-label text form, its raw wire bytes (terminator
// included), and the offset immediately following it. Name compression
// (pointer) is not supported: the single question in a freshly-built
// query from a well-behaved client never needs it.
func decodeName(msg []byte, offset int) (name string, raw []byte, next int, err error) {
	start := offset
	var labels []string
	for {
		if offset >= len(msg) {
			return "", nil, 0, fmt.Errorf("%w: name runs past end of message", ErrWireFormat)
		}
		length := int(msg[offset])
		if length&0xC0 != 0 {
			return "", nil, 0, fmt.Errorf("%w: compressed names not supported", ErrWireFormat)
		}
		offset++
		if length == 0 {
			break
		}
		if offset+length > len(msg) {
			return "", nil, 0, fmt.Errorf("%w: label runs past end of message", ErrWireFormat)
		}
		labels = append(labels, string(msg[offset:offset+length]))
		offset += length
	}
	return strings.Join(labels, "."), msg[start:offset], offset, nil
}

// normalizeName lowercases a decoded name and strips a single trailing
// dot (decodeName never produces one, but callers may pass names from
// elsewhere).
func normalizeName(name string) string {
	name = strings.ToLower(name)
	return strings.TrimSuffix(name, ".")
}

// encodeName writes s as a sequence of length-prefixed labels terminated
// by a zero octet.
func encodeName(s string) ([]byte, error) {
	s = strings.TrimSuffix(s, ".")
	var out []byte
	if s != "" {
		for _, label := range strings.Split(s, ".") {
			if len(label) == 0 || len(label) > 63 {
				return nil, fmt.Errorf("%w: invalid label length in %q", ErrWireFormat, s)
			}
			out = append(out, byte(len(label)))
			out = append(out, label...)
		}
	}
	out = append(out, 0)
	return out, nil
}

// BuildAReply synthesizes a wire-format A-record reply to query carrying
// ip as the sole answer, per the resolver's response-synthesis rules:
// transaction ID copied, QR/AA/RA set, RD mirrored from the query,
// RCODE=NOERROR, one question, one answer RR with StickyTTL.
func BuildAReply(query *Query, ip string) ([]byte, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return nil, fmt.Errorf("%w: %q is not a valid IPv4 address", ErrWireFormat, ip)
	}

	// Reuse the query's own wire-encoded name so the reply carries the
	// qname exactly as the client sent it; a Query not built by
	// ParseQuery has no raw name, so its QName is encoded instead.
	nameBytes := query.rawQName
	if len(nameBytes) == 0 {
		nameBytes, err = encodeName(query.QName)
		if err != nil {
			return nil, err
		}
	}

	flags := uint16(flagQR | flagAA | flagRA)
	if query.Header.Flags&flagRD != 0 {
		flags |= flagRD
	}
	// RCODE NOERROR = 0, nothing to OR in.

	buf := make([]byte, 0, headerSize+2*len(nameBytes)+4+2+2+2+2+4+4)

	var hdr [headerSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], query.Header.ID)
	binary.BigEndian.PutUint16(hdr[2:4], flags)
	binary.BigEndian.PutUint16(hdr[4:6], 1) // QDCOUNT
	binary.BigEndian.PutUint16(hdr[6:8], 1) // ANCOUNT
	binary.BigEndian.PutUint16(hdr[8:10], 0)
	binary.BigEndian.PutUint16(hdr[10:12], 0)
	buf = append(buf, hdr[:]...)

	// Question: qname, qtype=A, qclass=IN.
	buf = append(buf, nameBytes...)
	var qTypeClass [4]byte
	binary.BigEndian.PutUint16(qTypeClass[0:2], typeA)
	binary.BigEndian.PutUint16(qTypeClass[2:4], classIN)
	buf = append(buf, qTypeClass[:]...)

	// Answer: owner=qname, type=A, class=IN, TTL, RDLENGTH=4, RDATA=ip.
	buf = append(buf, nameBytes...)
	var rr [10]byte
	binary.BigEndian.PutUint16(rr[0:2], typeA)
	binary.BigEndian.PutUint16(rr[2:4], classIN)
	binary.BigEndian.PutUint32(rr[4:8], StickyTTL)
	binary.BigEndian.PutUint16(rr[8:10], 4)
	buf = append(buf, rr[:]...)
	ip4 := addr.As4()
	buf = append(buf, ip4[:]...)

	return buf, nil
}

// AnswerRecord is one parsed resource record from an answer section.
type AnswerRecord struct {
	Name string
	Type uint16
	TTL  uint32
	IP   string // only set when Type == A
}

// ParseAnswerRecords walks the answer section of a (non-compressed or
// compressed) upstream reply and returns every record it can decode,
// extracting the IPv4 address for A records. It is tolerant of records it
// doesn't understand: it still returns the ones it does, skipping the
// opaque RDATA of the rest so parsing can continue.
func ParseAnswerRecords(msg []byte) ([]AnswerRecord, error) {
	if len(msg) < headerSize {
		return nil, fmt.Errorf("%w: message shorter than header", ErrWireFormat)
	}
	qdCount := binary.BigEndian.Uint16(msg[4:6])
	anCount := binary.BigEndian.Uint16(msg[6:8])

	offset := headerSize
	for i := 0; i < int(qdCount); i++ {
		_, _, next, err := decodeNameAllowingPointers(msg, offset)
		if err != nil {
			return nil, err
		}
		offset = next + 4 // qtype + qclass
		if offset > len(msg) {
			return nil, fmt.Errorf("%w: question section truncated", ErrWireFormat)
		}
	}

	var records []AnswerRecord
	for i := 0; i < int(anCount); i++ {
		name, _, next, err := decodeNameAllowingPointers(msg, offset)
		if err != nil {
			return nil, err
		}
		offset = next
		if offset+10 > len(msg) {
			return nil, fmt.Errorf("%w: answer RR header truncated", ErrWireFormat)
		}
		rrType := binary.BigEndian.Uint16(msg[offset : offset+2])
		ttl := binary.BigEndian.Uint32(msg[offset+4 : offset+8])
		rdlength := int(binary.BigEndian.Uint16(msg[offset+8 : offset+10]))
		offset += 10
		if offset+rdlength > len(msg) {
			return nil, fmt.Errorf("%w: answer RDATA truncated", ErrWireFormat)
		}
		rec := AnswerRecord{Name: normalizeName(name), Type: rrType, TTL: ttl}
		if rrType == typeA && rdlength == 4 {
			addr := netip.AddrFrom4([4]byte(msg[offset : offset+4]))
			rec.IP = addr.String()
		}
		records = append(records, rec)
		offset += rdlength
	}
	return records, nil
}

// decodeNameAllowingPointers is like decodeName but follows a single
// compression pointer (upstream replies commonly compress the owner name
// of subsequent records back to the question). It does not follow chains
// of pointers beyond one hop, which is sufficient for the shapes a
// standards-compliant resolver emits here.
func decodeNameAllowingPointers(msg []byte, offset int) (name string, raw []byte, next int, err error) {
	start := offset
	var labels []string
	for {
		if offset >= len(msg) {
			return "", nil, 0, fmt.Errorf("%w: name runs past end of message", ErrWireFormat)
		}
		length := int(msg[offset])
		if length&0xC0 == 0xC0 {
			if offset+2 > len(msg) {
				return "", nil, 0, fmt.Errorf("%w: truncated compression pointer", ErrWireFormat)
			}
			pointer := int(binary.BigEndian.Uint16(msg[offset:offset+2]) & 0x3FFF)
			tail, _, _, err := decodeName(msg, pointer)
			if err != nil {
				return "", nil, 0, err
			}
			if len(labels) == 0 {
				name = tail
			} else {
				name = strings.Join(labels, ".") + "." + tail
			}
			return name, msg[start : offset+2], offset + 2, nil
		}
		offset++
		if length == 0 {
			break
		}
		if offset+length > len(msg) {
			return "", nil, 0, fmt.Errorf("%w: label runs past end of message", ErrWireFormat)
		}
		labels = append(labels, string(msg[offset:offset+length]))
		offset += length
	}
	return strings.Join(labels, "."), msg[start:offset], offset, nil
}
