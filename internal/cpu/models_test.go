package cpu

import (
	"testing"

	"github.com/mvreijn/gbcore/internal/bus"
)

func TestNewWithModel_Registers(t *testing.T) {
	b := bus.New(make([]byte, 0x8000))
	c := NewWithModel(b, ModelDMG, false)
	if c.A != 0x01 || c.F != 0xB0 {
		t.Fatalf("AF got %02x%02x want 01B0", c.A, c.F)
	}
	if c.PC != 0x0100 || c.SP != 0xFFFE {
		t.Fatalf("PC/SP got %04x/%04x want 0100/FFFE", c.PC, c.SP)
	}
}

func TestNewWithModel_PostBootIO(t *testing.T) {
	b := bus.New(make([]byte, 0x8000))
	NewWithModel(b, ModelDMG, false)

	if got := b.Read(0xFF04); got != 0xAB {
		t.Fatalf("DIV got %#02x want 0xAB", got)
	}
	if got := b.Read(0xFF07); got != 0xF8 {
		t.Fatalf("TAC got %#02x want 0xF8", got)
	}
	if got := b.Read(0xFF0F); got != 0xE1 {
		t.Fatalf("IF got %#02x want 0xE1", got)
	}
	if got := b.Read(0xFF40); got != 0x91 {
		t.Fatalf("LCDC got %#02x want 0x91", got)
	}
	if got := b.Read(0xFF41); got != 0x85 {
		t.Fatalf("STAT got %#02x want 0x85", got)
	}
	if got := b.Read(0xFF47); got != 0xFC {
		t.Fatalf("BGP got %#02x want 0xFC", got)
	}
	if got := b.Read(0xFFFF); got != 0x00 {
		t.Fatalf("IE got %#02x want 0x00", got)
	}
}
