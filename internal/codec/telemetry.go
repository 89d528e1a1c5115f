package codec

import (
	"encoding/binary"
	"math"
)

// GPSFields is present on a TelemetryPacket only when the node also reports
// position fix data (v2 wire frames). A GPSFields with Quality == 0 decodes
// from the wire but is surfaced to callers as absent (see DecodeTelemetry).
type GPSFields struct {
	LatDeg  float64
	LonDeg  float64
	AltM    float64
	Quality uint8
}

// TelemetryPacket is the decoded form of a telemetry frame, independent of
// which wire version produced it. GPS is nil for v1 frames and for v2
// frames whose gps_quality is 0.
type TelemetryPacket struct {
	PlayerID    uint8
	Seq         uint16
	TimestampMs uint32
	YawDeg      float64
	PitchDeg    float64
	RollDeg     float64
	Quality     uint8
	PosXCm      int32
	PosYCm      int32
	PosQuality  uint8
	BatteryMv   uint16
	Flags       uint8
	GPS         *GPSFields
}

// EncodeTelemetry serializes pkt as a v2 frame when pkt.GPS is non-nil,
// otherwise as a v1 frame. All
// numeric fields are clamped silently to their wire ranges.
func EncodeTelemetry(pkt TelemetryPacket) []byte {
	if pkt.GPS != nil {
		return encodeTelemetryV2(pkt)
	}
	return encodeTelemetryV1(pkt)
}

func encodeTelemetryV1(pkt TelemetryPacket) []byte {
	buf := make([]byte, TelemetryV1Size)
	writeTelemetryHeaderAndBody(buf, versionTelemetryV1, pkt)
	crc := crc16CCITTFalse(buf[:TelemetryV1Size-2])
	binary.LittleEndian.PutUint16(buf[TelemetryV1Size-2:], crc)
	return buf
}

func encodeTelemetryV2(pkt TelemetryPacket) []byte {
	buf := make([]byte, TelemetryV2Size)
	writeTelemetryHeaderAndBody(buf, versionTelemetryV2, pkt)

	off := 30 // end of v1 body fields, before CRC, see writeTelemetryHeaderAndBody
	gps := pkt.GPS
	binary.LittleEndian.PutUint32(buf[off:], uint32(int32(math.Round(gps.LatDeg*1e7))))
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(int32(math.Round(gps.LonDeg*1e7))))
	binary.LittleEndian.PutUint32(buf[off+8:], uint32(int32(math.Round(gps.AltM*100))))
	buf[off+12] = gps.Quality

	crc := crc16CCITTFalse(buf[:TelemetryV2Size-2])
	binary.LittleEndian.PutUint16(buf[TelemetryV2Size-2:], crc)
	return buf
}

// writeTelemetryHeaderAndBody writes the shared header + v1 body (bytes
// 0..29) common to both versions; buf must be at least 30+2 bytes.
func writeTelemetryHeaderAndBody(buf []byte, version uint8, pkt TelemetryPacket) {
	buf[0], buf[1] = magicHi, magicLo
	buf[2] = version
	buf[3] = msgTelemetry
	buf[4] = pkt.PlayerID
	binary.LittleEndian.PutUint16(buf[5:], pkt.Seq)
	binary.LittleEndian.PutUint32(buf[7:], pkt.TimestampMs)
	binary.LittleEndian.PutUint16(buf[11:], uint16(clampI16Centideg(pkt.YawDeg)))
	binary.LittleEndian.PutUint16(buf[13:], uint16(clampI16Centideg(pkt.PitchDeg)))
	binary.LittleEndian.PutUint16(buf[15:], uint16(clampI16Centideg(pkt.RollDeg)))
	buf[17] = clampU8(int(pkt.Quality))
	binary.LittleEndian.PutUint32(buf[18:], uint32(pkt.PosXCm))
	binary.LittleEndian.PutUint32(buf[22:], uint32(pkt.PosYCm))
	buf[26] = clampU8(int(pkt.PosQuality))
	binary.LittleEndian.PutUint16(buf[27:], clampU16(int(pkt.BatteryMv)))
	buf[29] = pkt.Flags
	// bytes [30:] are either the v1 CRC (buf len 32) or the v2 GPS block and
	// CRC (buf len 45); the caller fills whichever follows.
}

// DecodeTelemetry parses a telemetry frame, dispatching on the header's
// version byte. GPS is nil when the frame is v1, or when it's v2 with
// gps_quality == 0 (per the wire contract: a zero-quality fix is absent,
// not a zero-valued one).
func DecodeTelemetry(data []byte) (*TelemetryPacket, error) {
	if err := checkHeader(data, msgTelemetry); err != nil {
		return nil, err
	}
	switch data[2] {
	case versionTelemetryV1:
		return decodeTelemetryV1(data)
	case versionTelemetryV2:
		return decodeTelemetryV2(data)
	default:
		return nil, decodeErr(BadVersion, "telemetry version %d", data[2])
	}
}

func decodeTelemetryV1(data []byte) (*TelemetryPacket, error) {
	if len(data) != TelemetryV1Size {
		return nil, decodeErr(SizeMismatch, "telemetry v1 length %d != %d", len(data), TelemetryV1Size)
	}
	if err := checkCRC(data); err != nil {
		return nil, err
	}
	pkt := readTelemetryBody(data)
	return &pkt, nil
}

func decodeTelemetryV2(data []byte) (*TelemetryPacket, error) {
	if len(data) != TelemetryV2Size {
		return nil, decodeErr(SizeMismatch, "telemetry v2 length %d != %d", len(data), TelemetryV2Size)
	}
	if err := checkCRC(data); err != nil {
		return nil, err
	}
	pkt := readTelemetryBody(data)

	off := 30
	gpsQuality := data[off+12]
	if gpsQuality > 0 {
		latE7 := int32(binary.LittleEndian.Uint32(data[off:]))
		lonE7 := int32(binary.LittleEndian.Uint32(data[off+4:]))
		altCm := int32(binary.LittleEndian.Uint32(data[off+8:]))
		pkt.GPS = &GPSFields{
			LatDeg:  float64(latE7) / 1e7,
			LonDeg:  float64(lonE7) / 1e7,
			AltM:    float64(altCm) / 100,
			Quality: gpsQuality,
		}
	}
	return &pkt, nil
}

func readTelemetryBody(data []byte) TelemetryPacket {
	return TelemetryPacket{
		PlayerID:    data[4],
		Seq:         binary.LittleEndian.Uint16(data[5:]),
		TimestampMs: binary.LittleEndian.Uint32(data[7:]),
		YawDeg:      float64(int16(binary.LittleEndian.Uint16(data[11:]))) / 100,
		PitchDeg:    float64(int16(binary.LittleEndian.Uint16(data[13:]))) / 100,
		RollDeg:     float64(int16(binary.LittleEndian.Uint16(data[15:]))) / 100,
		Quality:     data[17],
		PosXCm:      int32(binary.LittleEndian.Uint32(data[18:])),
		PosYCm:      int32(binary.LittleEndian.Uint32(data[22:])),
		PosQuality:  data[26],
		BatteryMv:   binary.LittleEndian.Uint16(data[27:]),
		Flags:       data[29],
	}
}
