package cart

// Cartridge defines the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000–0x7FFF) and external RAM (0xA000–0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000–0x7FFF) and external RAM writes (0xA000–0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize internal banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is an optional interface for cartridges with external RAM to be persisted.
// Implementations should return a copy of RAM bytes (may be empty if no RAM), and accept data to load.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// NewCartridge picks an implementation based on the ROM header.
func NewCartridge(rom []byte) Cartridge {
	h, err := ParseHeader(rom)
	if err != nil {
		return NewROMOnly(rom)
	}
	switch h.Type().Controller {
	case ControllerMBC1:
		return NewMBC1(rom, h.RAMSizeBytes)
	case ControllerMBC3:
		return NewMBC3(rom, h.RAMSizeBytes)
	case ControllerMBC5:
		return NewMBC5(rom, h.RAMSizeBytes)
	default:
		// MBC2/MMM01/MBC6/MBC7/pocket-camera/bandai-tama5/huc3/huc1 and
		// ControllerNone all fall back to a direct, unbanked mapping —
		// those controllers aren't implemented yet, so homebrew/test ROMs
		// declaring them still get a best-effort run.
		return NewROMOnly(rom)
	}
}
