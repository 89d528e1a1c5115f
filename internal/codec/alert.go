package codec

import "encoding/binary"

// AlertPacket is the decoded form of an alert frame sent back to the
// originating node.
type AlertPacket struct {
	PlayerID  uint8
	AlertOn   bool
	Intensity uint8
	HoldMs    uint16
}

// EncodeAlert serializes pkt as a v1 alert frame. Alerts have no higher
// version; intensity and hold_ms are clamped silently to their wire ranges.
func EncodeAlert(pkt AlertPacket) []byte {
	buf := make([]byte, AlertSize)
	buf[0], buf[1] = magicHi, magicLo
	buf[2] = versionAlert
	buf[3] = msgAlert
	buf[4] = pkt.PlayerID
	if pkt.AlertOn {
		buf[5] = 1
	}
	buf[6] = clampU8Full(int(pkt.Intensity))
	binary.LittleEndian.PutUint16(buf[7:], pkt.HoldMs)
	crc := crc16CCITTFalse(buf[:AlertSize-2])
	binary.LittleEndian.PutUint16(buf[AlertSize-2:], crc)
	return buf
}

// DecodeAlert parses an alert frame. Alerts have only ever had version 1;
// any other version byte is BadVersion.
func DecodeAlert(data []byte) (*AlertPacket, error) {
	if err := checkHeader(data, msgAlert); err != nil {
		return nil, err
	}
	if data[2] != versionAlert {
		return nil, decodeErr(BadVersion, "alert version %d", data[2])
	}
	if len(data) != AlertSize {
		return nil, decodeErr(SizeMismatch, "alert length %d != %d", len(data), AlertSize)
	}
	if err := checkCRC(data); err != nil {
		return nil, err
	}
	return &AlertPacket{
		PlayerID:  data[4],
		AlertOn:   data[5] != 0,
		Intensity: data[6],
		HoldMs:    binary.LittleEndian.Uint16(data[7:]),
	}, nil
}
