package codec

import (
	"encoding/binary"
	"errors"
)

// fixedHeaderSize is the wire size of every field preceding Data:
// controlFlags(1) + netState(1) + srcAddr(2) + destAddr(2) + nextAddr(2) +
// serviceID(2) + contextID(2) + dataLen(2).
const fixedHeaderSize = 1 + 1 + 2 + 2 + 2 + 2 + 2 + 2

// ErrPacketTooShort is returned by ReadFrom when data is too short to
// contain a valid packet header or the declared data length.
var ErrPacketTooShort = errors.New("codec: packet too short")

// WriteTo encodes the packet to its wire representation. Serializing and
// framing bytes for a transport is a Channel implementation's concern; the
// core router only ever consumes the decoded Packet value.
func (p *Packet) WriteTo() []byte {
	buf := make([]byte, fixedHeaderSize+len(p.Data))
	buf[0] = uint8(p.ControlFlags)
	buf[1] = uint8(p.NetState)
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.SrcAddr))
	binary.BigEndian.PutUint16(buf[4:6], uint16(p.DestAddr))
	binary.BigEndian.PutUint16(buf[6:8], uint16(p.NextAddr))
	binary.BigEndian.PutUint16(buf[8:10], uint16(p.ServiceID))
	binary.BigEndian.PutUint16(buf[10:12], uint16(p.ContextID))
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(p.Data)))
	copy(buf[14:], p.Data)
	return buf
}

// ReadFrom decodes a packet from its wire representation.
func (p *Packet) ReadFrom(data []byte) error {
	if len(data) < fixedHeaderSize {
		return ErrPacketTooShort
	}
	p.ControlFlags = ControlFlags(data[0])
	p.NetState = NetState(data[1])
	p.SrcAddr = Address(binary.BigEndian.Uint16(data[2:4]))
	p.DestAddr = Address(binary.BigEndian.Uint16(data[4:6]))
	p.NextAddr = Address(binary.BigEndian.Uint16(data[6:8]))
	p.ServiceID = Address(binary.BigEndian.Uint16(data[8:10]))
	p.ContextID = Address(binary.BigEndian.Uint16(data[10:12]))
	dataLen := int(binary.BigEndian.Uint16(data[12:14]))

	if len(data[14:]) < dataLen {
		return ErrPacketTooShort
	}
	p.Data = make([]byte, dataLen)
	copy(p.Data, data[14:14+dataLen])
	return nil
}
