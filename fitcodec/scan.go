package fitcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/tormoder/fit/dyncrc16"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14
)

// Global message numbers the pipeline consumes. Everything else is counted
// and skipped.
const (
	MesgFileID      uint16 = 0
	MesgSession     uint16 = 18
	MesgLap         uint16 = 19
	MesgRecord      uint16 = 20
	MesgEvent       uint16 = 21
	MesgWorkout     uint16 = 26
	MesgWorkoutStep uint16 = 27
)

var consumedMesgs = map[uint16]struct{}{
	MesgFileID:      {},
	MesgSession:     {},
	MesgLap:         {},
	MesgRecord:      {},
	MesgEvent:       {},
	MesgWorkout:     {},
	MesgWorkoutStep: {},
}

// Inventory is the structural census of a FIT stream.
type Inventory struct {
	HeaderSize      uint8          `json:"header_size"`
	ProtocolVersion uint8          `json:"protocol_version"`
	ProfileVersion  uint16         `json:"profile_version"`
	DataSize        uint32         `json:"data_size"`
	Definitions     int            `json:"definitions"`
	DataMessages    int            `json:"data_messages"`
	Messages        map[uint16]int `json:"messages"`
	Skipped         int            `json:"skipped"`
	TrailingBytes   int            `json:"trailing_bytes"`
}

// Count returns the number of data messages seen for a global message number.
func (inv *Inventory) Count(mesg uint16) int {
	if inv == nil {
		return 0
	}
	return inv.Messages[mesg]
}

type localDefinition struct {
	globalMesgNum uint16
	dataSize      int
}

// Scan validates the framing of a FIT stream without decoding field values:
// header, header and file CRCs, every definition and data record. Any defect
// is reported as a *ParseError.
func Scan(data []byte) (*Inventory, error) {
	if len(data) < headerSizeNoCRC+2 {
		return nil, parseErrorf(StageHeader, "fit stream too short: %d bytes", len(data))
	}

	inv, err := scanHeader(data)
	if err != nil {
		return nil, err
	}

	dataStart := int(inv.HeaderSize)
	dataEnd := dataStart + int(inv.DataSize)
	required := dataEnd + 2
	if len(data) < required {
		return nil, parseErrorf(StageStructure, "fit stream truncated: have %d bytes, need at least %d", len(data), required)
	}

	stored := binary.LittleEndian.Uint16(data[dataEnd:required])
	if computed := dyncrc16.Checksum(data[:dataEnd]); stored != computed {
		return nil, parseErrorf(StageStructure, "file crc mismatch: stored 0x%04X computed 0x%04X", stored, computed)
	}

	if err := scanRecords(data[dataStart:dataEnd], inv); err != nil {
		return nil, err
	}
	inv.TrailingBytes = len(data) - required
	return inv, nil
}

func scanHeader(data []byte) (*Inventory, error) {
	size := data[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return nil, parseErrorf(StageHeader, "invalid header size %d", size)
	}
	if len(data) < int(size) {
		return nil, parseErrorf(StageHeader, "truncated header: need %d bytes", size)
	}
	if string(data[8:12]) != ".FIT" {
		return nil, parseErrorf(StageHeader, "invalid data type %q", string(data[8:12]))
	}
	if size == headerSizeCRC {
		stored := binary.LittleEndian.Uint16(data[12:14])
		if stored != 0 {
			if computed := dyncrc16.Checksum(data[:12]); stored != computed {
				return nil, parseErrorf(StageHeader, "header crc mismatch: stored 0x%04X computed 0x%04X", stored, computed)
			}
		}
	}
	return &Inventory{
		HeaderSize:      size,
		ProtocolVersion: data[1],
		ProfileVersion:  binary.LittleEndian.Uint16(data[2:4]),
		DataSize:        binary.LittleEndian.Uint32(data[4:8]),
		Messages:        make(map[uint16]int),
	}, nil
}

func scanRecords(section []byte, inv *Inventory) error {
	defs := make(map[uint8]localDefinition)
	pos := 0
	for record := 1; pos < len(section); record++ {
		headerByte := section[pos]
		pos++

		var local uint8
		switch {
		case headerByte&compressedHeaderMask == compressedHeaderMask:
			local = (headerByte & compressedLocalMesgNumMask) >> 5
		case headerByte&mesgDefinitionMask == mesgDefinitionMask:
			def, next, err := scanDefinition(section, pos, headerByte, record)
			if err != nil {
				return err
			}
			defs[headerByte&localMesgNumMask] = def
			inv.Definitions++
			pos = next
			continue
		default:
			local = headerByte & localMesgNumMask
		}

		def, ok := defs[local]
		if !ok {
			return parseErrorf(StageStructure, "data message without definition: local=%d record=%d", local, record)
		}
		if pos+def.dataSize > len(section) {
			return parseErrorf(StageStructure, "data record %d truncated", record)
		}
		pos += def.dataSize
		inv.DataMessages++
		inv.Messages[def.globalMesgNum]++
		if _, ok := consumedMesgs[def.globalMesgNum]; !ok {
			inv.Skipped++
		}
	}
	return nil
}

func scanDefinition(section []byte, pos int, headerByte uint8, record int) (localDefinition, int, error) {
	read := func(n int) ([]byte, error) {
		if pos+n > len(section) {
			return nil, parseErrorf(StageStructure, "definition record %d truncated", record)
		}
		out := section[pos : pos+n]
		pos += n
		return out, nil
	}

	fixed, err := read(5) // reserved, architecture, global number, field count
	if err != nil {
		return localDefinition{}, 0, err
	}
	var arch binary.ByteOrder
	switch fixed[1] {
	case 0:
		arch = binary.LittleEndian
	case 1:
		arch = binary.BigEndian
	default:
		return localDefinition{}, 0, parseErrorf(StageStructure, "invalid architecture byte %d at record %d", fixed[1], record)
	}

	def := localDefinition{globalMesgNum: arch.Uint16(fixed[2:4])}
	fields, err := read(3 * int(fixed[4]))
	if err != nil {
		return localDefinition{}, 0, err
	}
	for i := 0; i < len(fields); i += 3 {
		def.dataSize += int(fields[i+1])
	}

	if headerByte&devDataMask == devDataMask {
		count, err := read(1)
		if err != nil {
			return localDefinition{}, 0, err
		}
		devFields, err := read(3 * int(count[0]))
		if err != nil {
			return localDefinition{}, 0, err
		}
		for i := 0; i < len(devFields); i += 3 {
			def.dataSize += int(devFields[i+1])
		}
	}
	return def, pos, nil
}

func (inv *Inventory) String() string {
	return fmt.Sprintf("definitions=%d data=%d skipped=%d", inv.Definitions, inv.DataMessages, inv.Skipped)
}
