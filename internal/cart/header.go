package cart

import (
	"encoding/binary"
	"errors"
	"strings"
)

const (
	headerStart = 0x0100
	headerEnd   = 0x014F
)

var nintendoLogo = [0x30]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83, 0x00, 0x0C, 0x00, 0x0D,
	0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E, 0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99,
	0xBB, 0xBB, 0x67, 0x63, 0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

// BankController is the decoded controller kind from the cartridge type
// byte (0x147), independent of the hardware feature bits it also carries.
type BankController int

const (
	ControllerNone BankController = iota
	ControllerMBC1
	ControllerMBC2
	ControllerMMM01
	ControllerMBC3
	ControllerMBC5
	ControllerMBC6
	ControllerMBC7
	ControllerPocketCamera
	ControllerBandaiTAMA5
	ControllerHuC3
	ControllerHuC1
)

// HardwareFeature is a bitmask of the additional hardware a cartridge type
// byte can declare alongside its bank controller.
type HardwareFeature uint8

const (
	HWRAM           HardwareFeature = 1 << 0
	HWBattery       HardwareFeature = 1 << 1
	HWTimer         HardwareFeature = 1 << 2
	HWRumble        HardwareFeature = 1 << 3
	HWAccelerometer HardwareFeature = 1 << 4
)

// CartType pairs a bank controller kind with its hardware feature set, the
// full decoding of the cartridge type byte (0x147).
type CartType struct {
	Controller BankController
	Hardware   HardwareFeature
}

// describeType decodes the cartridge type byte into (controller, hardware),
// ported from original_source/src/cartridge.cpp's describe_type().
func describeType(code byte) CartType {
	switch code {
	case 0x00:
		return CartType{ControllerNone, 0}
	case 0x01:
		return CartType{ControllerMBC1, 0}
	case 0x02:
		return CartType{ControllerMBC1, HWRAM}
	case 0x03:
		return CartType{ControllerMBC1, HWRAM | HWBattery}
	case 0x05:
		return CartType{ControllerMBC2, 0}
	case 0x06:
		return CartType{ControllerMBC2, HWRAM | HWBattery}
	case 0x08:
		return CartType{ControllerNone, HWRAM}
	case 0x09:
		return CartType{ControllerNone, HWRAM | HWBattery}
	case 0x0B:
		return CartType{ControllerMMM01, 0}
	case 0x0C:
		return CartType{ControllerMMM01, HWRAM}
	case 0x0D:
		return CartType{ControllerMMM01, HWRAM | HWBattery}
	case 0x0F:
		return CartType{ControllerMBC3, HWTimer | HWBattery}
	case 0x10:
		return CartType{ControllerMBC3, HWRAM | HWTimer | HWBattery}
	case 0x11:
		return CartType{ControllerMBC3, 0}
	case 0x12:
		return CartType{ControllerMBC3, HWRAM}
	case 0x13:
		return CartType{ControllerMBC3, HWRAM | HWBattery}
	case 0x19:
		return CartType{ControllerMBC5, 0}
	case 0x1A:
		return CartType{ControllerMBC5, HWRAM}
	case 0x1B:
		return CartType{ControllerMBC5, HWRAM | HWBattery}
	case 0x1C:
		return CartType{ControllerMBC5, HWRumble}
	case 0x1D:
		return CartType{ControllerMBC5, HWRAM | HWRumble}
	case 0x1E:
		return CartType{ControllerMBC5, HWRAM | HWBattery | HWRumble}
	case 0x20:
		return CartType{ControllerMBC6, HWRAM | HWBattery}
	case 0x22:
		return CartType{ControllerMBC7, HWRAM | HWBattery | HWAccelerometer}
	case 0xFC:
		return CartType{ControllerPocketCamera, 0}
	case 0xFD:
		return CartType{ControllerBandaiTAMA5, 0}
	case 0xFE:
		return CartType{ControllerHuC3, 0}
	case 0xFF:
		return CartType{ControllerHuC1, HWRAM | HWBattery}
	default:
		return CartType{ControllerNone, 0}
	}
}

type Header struct {
	Title          string // (trimmed ASCII)
	CGBFlag        byte   // 0x0143
	NewLicensee    string // 0x0144-0x0145 (ASCII), if OldLicensee==0x33
	SGBFlag        byte   // 0x0146
	CartType       byte   // 0x0147
	ROMSizeCode    byte   // 0x0148
	RAMSizeCode    byte   // 0x0149
	Destination    byte   // 0x014A
	OldLicensee    byte   // 0x014B
	ROMVersion     byte   // 0x014C
	HeaderChecksum byte   // 0x014D
	GlobalChecksum uint16 // 0x014E-0x014F

	// Decoded helpers (for logs)
	ROMSizeBytes int
	ROMBanks     int
	RAMSizeBytes int
	CartTypeStr  string

	entryPoint [4]byte
	logo       [0x30]byte
	logoValid  bool
	cartType   CartType
}

func ParseHeader(rom []byte) (*Header, error) {
	if len(rom) < headerEnd+1 {
		return nil, errors.New("ROM too small to contain header")
	}

	// Title region is 0x0134–0x0143, but parts overlap on newer carts.
	rawTitle := rom[0x0134:0x0144]
	title := strings.TrimRight(string(rawTitle), "\x00")

	oldLicensee := rom[0x014B]
	newLicensee := ""
	if oldLicensee == 0x33 {
		newLicensee = string(rom[0x0144:0x0146])
	} else {
		newLicensee = string([]byte{oldLicensee})
	}

	h := &Header{
		Title:          title,
		CGBFlag:        rom[0x0143],
		NewLicensee:    newLicensee,
		SGBFlag:        rom[0x0146],
		CartType:       rom[0x0147],
		ROMSizeCode:    rom[0x0148],
		RAMSizeCode:    rom[0x0149],
		Destination:    rom[0x014A],
		OldLicensee:    oldLicensee,
		ROMVersion:     rom[0x014C],
		HeaderChecksum: rom[0x014D],
		GlobalChecksum: binary.BigEndian.Uint16(rom[0x014E:0x0150]),
	}
	copy(h.entryPoint[:], rom[0x0100:0x0104])
	copy(h.logo[:], rom[0x0104:0x0134])
	h.logoValid = h.logo == nintendoLogo

	// Decode a few convenience fields:
	h.ROMSizeBytes, h.ROMBanks = decodeROMSize(h.ROMSizeCode)
	h.RAMSizeBytes = decodeRAMSize(h.RAMSizeCode)
	h.CartTypeStr = cartTypeString(h.CartType)
	h.cartType = describeType(h.CartType)

	return h, nil
}

// EntryPoint returns the 4 bytes at 0x100, where cartridge execution begins.
func (h *Header) EntryPoint() [4]byte { return h.entryPoint }

// NintendoLogo returns the 48 raw logo bytes at 0x104, regardless of validity.
func (h *Header) NintendoLogo() [0x30]byte { return h.logo }

// LogoValid reports whether the logo bytes match the fixed reference bitmap
// real hardware's boot ROM checks before running a cartridge.
func (h *Header) LogoValid() bool { return h.logoValid }

// Type returns the decoded bank controller kind and hardware feature bitmask.
func (h *Header) Type() CartType { return h.cartType }

func HeaderChecksumOK(rom []byte) bool {
	if len(rom) < 0x014E {
		return false
	}
	var sum byte = 0
	for addr := 0x0134; addr <= 0x014C; addr++ {
		sum = sum - rom[addr] - 1
	}
	return sum == rom[0x014D]
}

// GlobalChecksumOK independently sums every byte of rom except the checksum
// word itself (0x014E-0x014F) and compares against the stored big-endian
// value, per original_source/src/cartridge.cpp's global_checksum_valid().
func GlobalChecksumOK(rom []byte) bool {
	if len(rom) < 0x0150 {
		return false
	}
	var sum uint16
	for _, v := range rom {
		sum += uint16(v)
	}
	sum -= uint16(rom[0x014E]) + uint16(rom[0x014F])
	expect := binary.BigEndian.Uint16(rom[0x014E:0x0150])
	return sum == expect
}

func decodeROMSize(code byte) (size, banks int) {
	switch code {
	case 0x00:
		return 32 * 1024, 2
	case 0x01:
		return 64 * 1024, 4
	case 0x02:
		return 128 * 1024, 8
	case 0x03:
		return 256 * 1024, 16
	case 0x04:
		return 512 * 1024, 32
	case 0x05:
		return 1 * 1024 * 1024, 64
	case 0x06:
		return 2 * 1024 * 1024, 128
	case 0x07:
		return 4 * 1024 * 1024, 256
	case 0x08:
		return 8 * 1024 * 1024, 512
	case 0x52:
		return 1152 * 1024, 72
	case 0x53:
		return 1280 * 1024, 80
	case 0x54:
		return 1536 * 1024, 96
	default:
		return 0, 0
	}
}

func decodeRAMSize(code byte) int {
	switch code {
	case 0x00:
		return 0
	case 0x02:
		return 8 * 1024
	case 0x03:
		return 32 * 1024
	case 0x04:
		return 128 * 1024
	case 0x05:
		return 64 * 1024
	default:
		return 0
	}
}

func cartTypeString(code byte) string {
	switch code {
	case 0x00:
		return "ROM ONLY"
	case 0x01, 0x02, 0x03:
		return "MBC1 (variants)"
	case 0x05, 0x06:
		return "MBC2 (variants)"
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return "MBC3 (variants)"
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return "MBC5 (variants)"
	default:
		return "Other/unknown"
	}
}
