package cpu

import "github.com/mvreijn/gbcore/internal/bus"

// Model identifies which hardware revision's initial register values to
// seed a CPU with. Real boot ROMs leave AF/BC/DE/HL in revision-specific
// states by the time they hand off to cartridge code; skipping the boot
// ROM (ResetNoBoot/NewWithModel) has to reproduce that by hand.
type Model int

const (
	ModelDMG        Model = iota // original Game Boy
	ModelMGB                     // Game Boy Pocket
	ModelSGB                     // Super Game Boy
	ModelSGB2                    // Super Game Boy 2
	ModelCGB                     // Game Boy Color
	ModelAGB                     // Game Boy Advance (DMG/CGB compatibility mode)
	ModelAGBSP                   // Game Boy Advance SP
)

type modelRegisters struct {
	af, bc, de, hl uint16
}

var (
	regsOriginal        = modelRegisters{0x01B0, 0x0013, 0x00D8, 0x014D}
	regsPocket          = modelRegisters{0xFFB0, 0x0013, 0x00D8, 0x014D}
	regsSuper           = modelRegisters{0x0100, 0x0014, 0x0000, 0xC060}
	regsSuper2          = modelRegisters{0xFF00, 0x0014, 0x0000, 0x0000}
	regsColor           = modelRegisters{0x1180, 0x0000, 0x0008, 0x007C}
	regsColorInColor    = modelRegisters{0x1180, 0x0000, 0xFF56, 0x000D}
	regsAdvance         = modelRegisters{0x1100, 0x0100, 0x0008, 0x007C}
	regsAdvanceInColor  = modelRegisters{0x1100, 0x0100, 0xFF56, 0x000D}
	regsAdvanceSP       = modelRegisters{0x1100, 0x0100, 0x0008, 0x007C}
	regsAdvanceSPInColor = modelRegisters{0x1100, 0x0100, 0xFF56, 0x000D}
)

// initialRegisters picks the seed AF/BC/DE/HL for a model, taking into
// account whether the inserted cartridge is a color (CGB-flagged) game:
// the color-capable revisions leave different values in DE/HL when
// booting a color game than when booting a plain DMG game.
func initialRegisters(m Model, colorGame bool) modelRegisters {
	switch m {
	case ModelMGB:
		return regsPocket
	case ModelSGB:
		return regsSuper
	case ModelSGB2:
		return regsSuper2
	case ModelCGB:
		if colorGame {
			return regsColorInColor
		}
		return regsColor
	case ModelAGB:
		if colorGame {
			return regsAdvanceInColor
		}
		return regsAdvance
	case ModelAGBSP:
		if colorGame {
			return regsAdvanceSPInColor
		}
		return regsAdvanceSP
	default:
		return regsOriginal
	}
}

// NewWithModel creates a CPU seeded with the post-boot register values for
// the given hardware model, for running without a boot ROM while still
// matching that model's startup state. colorGame should reflect the
// cartridge header's CGB flag.
func NewWithModel(b *bus.Bus, m Model, colorGame bool) *CPU {
	r := initialRegisters(m, colorGame)
	b.SetPostBootDefaults()
	c := &CPU{bus: b, SP: 0xFFFE, PC: 0x0100}
	c.A, c.F = byte(r.af>>8), byte(r.af)
	c.B, c.C = byte(r.bc>>8), byte(r.bc)
	c.D, c.E = byte(r.de>>8), byte(r.de)
	c.H, c.L = byte(r.hl>>8), byte(r.hl)
	return c
}
