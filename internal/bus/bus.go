package bus

import (
	"bytes"
	"encoding/gob"
	"io"
	"sync/atomic"

	"github.com/mvreijn/gbcore/internal/cart"
)

// Joypad button bits as read by SetJoypadState. Active membership means
// "currently held"; the register itself is active-low.
const (
	JoypA      byte = 1 << 0
	JoypB      byte = 1 << 1
	JoypSelect byte = 1 << 2
	JoypStart  byte = 1 << 3
	JoypRight  byte = 1 << 0
	JoypLeft   byte = 1 << 1
	JoypUp     byte = 1 << 2
	JoypDown   byte = 1 << 3
)

const (
	ifVBlank byte = 1 << 0
	ifStat   byte = 1 << 1
	ifTimer  byte = 1 << 2
	ifSerial byte = 1 << 3
	ifJoypad byte = 1 << 4
)

// Bus arbitrates the 16-bit Game Boy address space: cartridge ROM/RAM via a
// bank controller, video/work/high RAM, and the flat I/O register block,
// plus the timer, joypad, serial and LCD-register side effects that live on
// specific I/O addresses.
type Bus struct {
	cart cart.Cartridge

	bootROM       [0x100]byte
	bootROMLoaded bool
	bootDisabled  byte // IO[0xFF50]; nonzero disables the boot overlay

	vram  [0x2000]byte
	wram0 [0x1000]byte
	wramN [0x1000]byte
	oam   [0xA0]byte
	hram  [0x7F]byte
	io    [0x80]byte
	ie    byte

	ifReg atomic.Uint32

	// Joypad
	joypSelect byte // bits 4-5 as written; 1 means "not selected"
	joypState  byte // bitmask of currently-held buttons (Joyp* constants)

	// Serial
	sb           byte
	sc           byte
	serialWriter io.Writer

	// Timer
	divInternal       uint16
	tima              byte
	tma               byte
	tac               byte
	timaReloadPending bool
	timaReloadCounter int

	// LCD/STAT register block: a mode/dot/LY state machine that raises the
	// documented interrupts and gates VRAM/OAM access, without composing
	// any pixels.
	lcdc, stat     byte
	scy, scx       byte
	ly, lyc        byte
	bgp, obp0, obp1 byte
	wy, wx         byte
	dot            int

	// OAM DMA, stepped one byte per bus tick.
	dmaActive    bool
	dmaSrcBase   uint16
	dmaIndex     int
	dmaRemaining int
}

func New(rom []byte) *Bus {
	b := &Bus{
		cart:       cart.NewCartridge(rom),
		joypSelect: 0x30,
	}
	return b
}

// SetBootROM installs up to 256 bytes of boot ROM, overlaid on 0x0000-0x00FF
// for as long as IO[0xFF50] reads zero.
func (b *Bus) SetBootROM(data []byte) {
	n := copy(b.bootROM[:], data)
	_ = n
	b.bootROMLoaded = true
	b.bootDisabled = 0
}

// SetSerialWriter routes bytes clocked out over the serial port (0xFF01)
// to w whenever a transfer is started with the internal clock.
func (b *Bus) SetSerialWriter(w io.Writer) {
	b.serialWriter = w
}

// SetPostBootDefaults seeds the I/O register block to the documented
// post-boot values real boot ROMs leave behind, for callers (NewWithModel)
// skipping the boot ROM. A few registers (DIV, STAT's mode/LYC bits)
// aren't reachable through the public Write path's side effects, so this
// sets the underlying fields directly rather than replaying boot ROM writes.
func (b *Bus) SetPostBootDefaults() {
	b.divInternal = 0xAB00
	b.tima, b.tma, b.tac = 0x00, 0x00, 0x00
	b.ifReg.Store(0x01)
	b.ie = 0x00
	b.lcdc = 0x91
	b.stat = 0x85
	b.scy, b.scx = 0x00, 0x00
	b.lyc = 0x00
	b.bgp = 0xFC
	b.obp0, b.obp1 = 0xFF, 0xFF
	b.wy, b.wx = 0x00, 0x00
	b.joypSelect = 0x30

	// Sound register defaults (NR10-NR52), per documented DMG post-boot
	// state; the APU itself isn't modeled, but readback still matters.
	sound := map[uint16]byte{
		0xFF10: 0x80, 0xFF11: 0xBF, 0xFF12: 0xF3, 0xFF14: 0xBF,
		0xFF16: 0x3F, 0xFF17: 0x00, 0xFF19: 0xBF,
		0xFF1A: 0x7F, 0xFF1B: 0xFF, 0xFF1C: 0x9F, 0xFF1E: 0xBF,
		0xFF20: 0xFF, 0xFF21: 0x00, 0xFF22: 0x00, 0xFF23: 0xBF,
		0xFF24: 0x77, 0xFF25: 0xF3, 0xFF26: 0xF1,
	}
	for addr, value := range sound {
		b.io[addr-0xFF00] = value
	}
}

// SetJoypadState sets the currently-held buttons, using the Joyp* bitmasks.
// Direction and face-button groups share bit positions on real hardware and
// are disambiguated by which group JOYP currently selects.
func (b *Bus) SetJoypadState(mask byte) {
	b.joypState = mask
}

// RequestInterrupt sets the given bit of IF. Safe to call from another
// goroutine while the CPU is running.
func (b *Bus) RequestInterrupt(bit byte) {
	for {
		old := b.ifReg.Load()
		if b.ifReg.CompareAndSwap(old, old|uint32(bit)) {
			break
		}
	}
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x100 && b.bootROMLoaded && b.bootDisabled == 0:
		return b.bootROM[addr]
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		if b.vramBlocked() {
			return 0xFF
		}
		return b.vram[addr-0x8000]
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xD000:
		return b.wram0[addr-0xC000]
	case addr < 0xE000:
		return b.wramN[addr-0xD000]
	case addr < 0xF000:
		return b.wram0[addr-0xE000]
	case addr < 0xFE00:
		return b.wramN[addr-0xF000]
	case addr < 0xFEA0:
		if b.oamBlocked() {
			return 0xFF
		}
		return b.oam[addr-0xFE00]
	case addr < 0xFF00:
		return 0x00
	case addr < 0xFF80:
		return b.readIO(addr)
	case addr < 0xFFFF:
		return b.hram[addr-0xFF80]
	default:
		return b.ie
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x100 && b.bootROMLoaded && b.bootDisabled == 0:
		b.cart.Write(addr, value)
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		if b.vramBlocked() {
			return
		}
		b.vram[addr-0x8000] = value
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xD000:
		b.wram0[addr-0xC000] = value
	case addr < 0xE000:
		b.wramN[addr-0xD000] = value
	case addr < 0xF000:
		b.wram0[addr-0xE000] = value
	case addr < 0xFE00:
		b.wramN[addr-0xF000] = value
	case addr < 0xFEA0:
		if b.oamBlocked() {
			return
		}
		b.oam[addr-0xFE00] = value
	case addr < 0xFF00:
		// Unmapped.
	case addr < 0xFF80:
		b.writeIO(addr, value)
	case addr < 0xFFFF:
		b.hram[addr-0xFF80] = value
	default:
		b.ie = value
	}
}

func (b *Bus) vramBlocked() bool {
	return b.lcdOn() && b.stat&0x03 == 3
}

func (b *Bus) oamBlocked() bool {
	if b.dmaActive {
		return true
	}
	mode := b.stat & 0x03
	return b.lcdOn() && (mode == 2 || mode == 3)
}

func (b *Bus) lcdOn() bool {
	return b.lcdc&0x80 != 0
}

func (b *Bus) readIO(addr uint16) byte {
	switch addr {
	case 0xFF00:
		return b.readJoyp()
	case 0xFF01:
		return b.sb
	case 0xFF02:
		return b.sc | 0x7E
	case 0xFF04:
		return byte(b.divInternal >> 8)
	case 0xFF05:
		return b.tima
	case 0xFF06:
		return b.tma
	case 0xFF07:
		return 0xF8 | b.tac
	case 0xFF0F:
		return 0xE0 | byte(b.ifReg.Load()&0x1F)
	case 0xFF40:
		return b.lcdc
	case 0xFF41:
		return 0x80 | b.stat
	case 0xFF42:
		return b.scy
	case 0xFF43:
		return b.scx
	case 0xFF44:
		return b.ly
	case 0xFF45:
		return b.lyc
	case 0xFF46:
		return 0xFF
	case 0xFF47:
		return b.bgp
	case 0xFF48:
		return b.obp0
	case 0xFF49:
		return b.obp1
	case 0xFF4A:
		return b.wy
	case 0xFF4B:
		return b.wx
	case 0xFF50:
		return b.bootDisabled
	default:
		return b.io[addr-0xFF00]
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch addr {
	case 0xFF00:
		b.joypSelect = value & 0x30
	case 0xFF01:
		b.sb = value
	case 0xFF02:
		b.writeSC(value)
	case 0xFF04:
		before := b.timerInput()
		b.divInternal = 0
		b.timerEdgeCheck(before, b.timerInput())
	case 0xFF05:
		b.tima = value
		b.timaReloadPending = false
	case 0xFF06:
		b.tma = value
	case 0xFF07:
		before := b.timerInput()
		b.tac = value & 0x07
		b.timerEdgeCheck(before, b.timerInput())
	case 0xFF0F:
		b.ifReg.Store(uint32(value) & 0x1F)
	case 0xFF40:
		b.writeLCDC(value)
	case 0xFF41:
		b.stat = (b.stat & 0x07) | (value & 0x78)
	case 0xFF42:
		b.scy = value
	case 0xFF43:
		b.scx = value
	case 0xFF44:
		b.writeLY()
	case 0xFF45:
		b.lyc = value
		b.updateLYC()
	case 0xFF46:
		b.startDMA(value)
	case 0xFF47:
		b.bgp = value
	case 0xFF48:
		b.obp0 = value
	case 0xFF49:
		b.obp1 = value
	case 0xFF4A:
		b.wy = value
	case 0xFF4B:
		b.wx = value
	case 0xFF50:
		if value != 0 {
			b.bootDisabled = value
		}
	default:
		b.io[addr-0xFF00] = value
	}
}

func (b *Bus) readJoyp() byte {
	low := byte(0x0F)
	if b.joypSelect&0x10 == 0 {
		low &^= (b.joypState & 0x0F)
	}
	if b.joypSelect&0x20 == 0 {
		low &^= (b.joypState & 0x0F)
	}
	return 0xC0 | b.joypSelect | low
}

func (b *Bus) writeSC(value byte) {
	b.sc = value & 0x83
	if value&0x81 == 0x81 {
		if b.serialWriter != nil {
			_, _ = b.serialWriter.Write([]byte{b.sb})
		}
		b.sc &^= 0x80
		b.RequestInterrupt(ifSerial)
	}
}

// Tick advances the bus by n T-cycles, stepping the timer, LCD/STAT state
// machine and any in-flight OAM DMA transfer.
func (b *Bus) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		b.tickOne()
	}
}

func (b *Bus) tickOne() {
	pendingBefore := b.timaReloadPending

	before := b.timerInput()
	b.divInternal++
	b.timerEdgeCheck(before, b.timerInput())

	if pendingBefore {
		b.timaReloadCounter--
		if b.timaReloadCounter <= 0 {
			b.tima = b.tma
			b.timaReloadPending = false
			b.RequestInterrupt(ifTimer)
		}
	}

	b.stepPPU()
	if b.dmaActive {
		b.stepDMA()
	}
}

func (b *Bus) timerInput() bool {
	if b.tac&0x04 == 0 {
		return false
	}
	var bit uint
	switch b.tac & 0x03 {
	case 0:
		bit = 9
	case 1:
		bit = 3
	case 2:
		bit = 5
	case 3:
		bit = 7
	}
	return (b.divInternal>>bit)&1 == 1
}

func (b *Bus) timerEdgeCheck(before, after bool) {
	if before && !after {
		b.timerEdge()
	}
}

func (b *Bus) timerEdge() {
	if b.timaReloadPending {
		return
	}
	if b.tima == 0xFF {
		b.tima = 0
		b.timaReloadPending = true
		b.timaReloadCounter = 4
	} else {
		b.tima++
	}
}

// stepPPU advances the LCD mode/dot/line state machine by one T-cycle. It
// exists to raise the documented STAT/VBlank interrupts and gate VRAM/OAM
// access at the right times; it never composes a frame.
func (b *Bus) stepPPU() {
	if !b.lcdOn() {
		return
	}
	b.dot++
	var newMode byte
	switch {
	case b.ly >= 144:
		newMode = 1
	case b.dot < 80:
		newMode = 2
	case b.dot < 252:
		newMode = 3
	default:
		newMode = 0
	}
	b.setMode(newMode)

	if b.dot >= 456 {
		b.dot = 0
		b.ly++
		if b.ly == 144 {
			b.RequestInterrupt(ifVBlank)
			if b.stat&0x10 != 0 {
				b.RequestInterrupt(ifStat)
			}
		}
		if b.ly > 153 {
			b.ly = 0
		}
		b.updateLYC()
		if b.ly >= 144 {
			b.setMode(1)
		} else {
			b.setMode(2)
		}
	}
}

func (b *Bus) setMode(mode byte) {
	prev := b.stat & 0x03
	b.stat = (b.stat &^ 0x03) | mode
	if prev == mode {
		return
	}
	switch mode {
	case 0:
		if b.stat&0x08 != 0 {
			b.RequestInterrupt(ifStat)
		}
	case 2:
		if b.stat&0x20 != 0 {
			b.RequestInterrupt(ifStat)
		}
	}
}

func (b *Bus) updateLYC() {
	if b.ly == b.lyc {
		b.stat |= 0x04
		if b.stat&0x40 != 0 {
			b.RequestInterrupt(ifStat)
		}
	} else {
		b.stat &^= 0x04
	}
}

func (b *Bus) writeLCDC(value byte) {
	wasOn := b.lcdOn()
	b.lcdc = value
	isOn := b.lcdOn()
	if wasOn == isOn {
		return
	}
	b.ly, b.dot = 0, 0
	if isOn {
		b.setMode(2)
	} else {
		b.setMode(0)
	}
	b.updateLYC()
}

func (b *Bus) writeLY() {
	b.ly, b.dot = 0, 0
	b.updateLYC()
	if b.lcdOn() {
		b.setMode(2)
	}
}

func (b *Bus) startDMA(srcHigh byte) {
	b.dmaActive = true
	b.dmaSrcBase = uint16(srcHigh) << 8
	b.dmaIndex = 0
	b.dmaRemaining = 0xA0
}

func (b *Bus) stepDMA() {
	b.oam[b.dmaIndex] = b.dmaReadRaw(b.dmaSrcBase + uint16(b.dmaIndex))
	b.dmaIndex++
	b.dmaRemaining--
	if b.dmaRemaining <= 0 {
		b.dmaActive = false
	}
}

// dmaReadRaw reads a source byte for OAM DMA, bypassing OAM's own access
// gating (the destination, not the source, is blocked during the copy).
func (b *Bus) dmaReadRaw(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.vram[addr-0x8000]
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xD000:
		return b.wram0[addr-0xC000]
	case addr < 0xE000:
		return b.wramN[addr-0xD000]
	default:
		return 0xFF
	}
}

// Cart exposes the active cartridge, e.g. for battery-RAM persistence.
func (b *Bus) Cart() cart.Cartridge {
	return b.cart
}

type busState struct {
	Cart          []byte
	VRAM          [0x2000]byte
	WRAM0         [0x1000]byte
	WRAMN         [0x1000]byte
	OAM           [0xA0]byte
	HRAM          [0x7F]byte
	IO            [0x80]byte
	IE            byte
	IF            uint32
	JoypSelect    byte
	JoypState     byte
	SB, SC        byte
	DivInternal   uint16
	TIMA, TMA, TAC byte
	ReloadPending bool
	ReloadCounter int
	LCDC, STAT    byte
	SCY, SCX      byte
	LY, LYC       byte
	BGP, OBP0, OBP1 byte
	WY, WX        byte
	Dot           int
}

// SaveState serializes the bus (including the cartridge's own state) for
// later restoration via LoadState.
func (b *Bus) SaveState() []byte {
	s := busState{
		Cart: b.cart.SaveState(),
		VRAM: b.vram, WRAM0: b.wram0, WRAMN: b.wramN, OAM: b.oam, HRAM: b.hram, IO: b.io,
		IE: b.ie, IF: b.ifReg.Load(),
		JoypSelect: b.joypSelect, JoypState: b.joypState,
		SB: b.sb, SC: b.sc,
		DivInternal: b.divInternal, TIMA: b.tima, TMA: b.tma, TAC: b.tac,
		ReloadPending: b.timaReloadPending, ReloadCounter: b.timaReloadCounter,
		LCDC: b.lcdc, STAT: b.stat, SCY: b.scy, SCX: b.scx, LY: b.ly, LYC: b.lyc,
		BGP: b.bgp, OBP0: b.obp0, OBP1: b.obp1, WY: b.wy, WX: b.wx, Dot: b.dot,
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.Cart) > 0 {
		b.cart.LoadState(s.Cart)
	}
	b.vram, b.wram0, b.wramN, b.oam, b.hram, b.io = s.VRAM, s.WRAM0, s.WRAMN, s.OAM, s.HRAM, s.IO
	b.ie = s.IE
	b.ifReg.Store(s.IF)
	b.joypSelect, b.joypState = s.JoypSelect, s.JoypState
	b.sb, b.sc = s.SB, s.SC
	b.divInternal, b.tima, b.tma, b.tac = s.DivInternal, s.TIMA, s.TMA, s.TAC
	b.timaReloadPending, b.timaReloadCounter = s.ReloadPending, s.ReloadCounter
	b.lcdc, b.stat, b.scy, b.scx, b.ly, b.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	b.bgp, b.obp0, b.obp1, b.wy, b.wx, b.dot = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX, s.Dot
}
