package cart

import (
	"bytes"
	"encoding/gob"
	"time"
)

// MBC3 implements ROM/RAM banking plus the MBC3 real-time-clock registers.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (08-0C)
// - 6000-7FFF: latch current time into the latched RTC registers on a 0->1 write
// - A000-BFFF: external RAM, or the latched RTC register selected above
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)

// nowUnix is the wall-clock source for RTC advancement. Replaced in tests.
var nowUnix = func() int64 { return time.Now().Unix() }

type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3 (others ignored to 0)

	rtcSelected bool
	rtcSelect   byte // 0x08..0x0C
	prevLatch   byte

	rtcSec, rtcMin, rtcHour byte
	rtcDay                  int
	rtcHalt, rtcCarry       bool
	lastRTCWallSec          int64

	latchedSec, latchedMin, latchedHour byte
	latchedDay                          int
	latchedHalt, latchedCarry           bool
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	m.advanceRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.rtcSelected {
			return m.readRTCRegister()
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) readRTCRegister() byte {
	switch m.rtcSelect {
	case 0x08:
		return m.latchedSec
	case 0x09:
		return m.latchedMin
	case 0x0A:
		return m.latchedHour
	case 0x0B:
		return byte(m.latchedDay & 0xFF)
	case 0x0C:
		v := byte(0)
		if m.latchedDay&0x100 != 0 {
			v |= 0x01
		}
		if m.latchedHalt {
			v |= 0x40
		}
		if m.latchedCarry {
			v |= 0x80
		}
		return v
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.advanceRTC()
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 {
			m.ramBank = value & 0x03
			m.rtcSelected = false
		} else if value >= 0x08 && value <= 0x0C {
			m.rtcSelect = value
			m.rtcSelected = true
		}
	case addr < 0x8000:
		if m.prevLatch == 0 && value&0x01 == 1 {
			m.latchedSec, m.latchedMin, m.latchedHour = m.rtcSec, m.rtcMin, m.rtcHour
			m.latchedDay, m.latchedHalt, m.latchedCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
		}
		m.prevLatch = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.rtcSelected {
			m.writeRTCRegister(value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) writeRTCRegister(value byte) {
	switch m.rtcSelect {
	case 0x08:
		m.rtcSec = value
	case 0x09:
		m.rtcMin = value
	case 0x0A:
		m.rtcHour = value
	case 0x0B:
		m.rtcDay = (m.rtcDay &^ 0xFF) | int(value)
	case 0x0C:
		m.rtcDay = (m.rtcDay &^ 0x100) | (int(value&0x01) << 8)
		m.rtcHalt = value&0x40 != 0
		m.rtcCarry = value&0x80 != 0
	}
}

// advanceRTC folds elapsed wall-clock time since the last observation into
// the live (unlatched) RTC registers. Halting the clock freezes the count
// but keeps the wall-clock baseline current so resuming doesn't double-count.
func (m *MBC3) advanceRTC() {
	now := nowUnix()
	delta := now - m.lastRTCWallSec
	m.lastRTCWallSec = now
	if delta <= 0 || m.rtcHalt {
		return
	}
	const dayMax = 512
	total := int64(m.rtcSec) + int64(m.rtcMin)*60 + int64(m.rtcHour)*3600 + int64(m.rtcDay)*86400 + delta
	if total >= dayMax*86400 {
		m.rtcCarry = true
		total %= dayMax * 86400
	}
	m.rtcDay = int(total / 86400)
	rem := total % 86400
	m.rtcHour = byte(rem / 3600)
	rem %= 3600
	m.rtcMin = byte(rem / 60)
	m.rtcSec = byte(rem % 60)
}

// BatteryBacked implementation; persists external RAM and RTC state together.
type mbc3SaveData struct {
	RAM                       []byte
	RTCSec, RTCMin, RTCHour   byte
	RTCDay                    int
	RTCHalt, RTCCarry         bool
	LastRTCWallSec            int64
	LatchedSec, LatchedMin    byte
	LatchedHour               byte
	LatchedDay                int
	LatchedHalt, LatchedCarry bool
}

func (m *MBC3) snapshot() mbc3SaveData {
	return mbc3SaveData{
		RAM:            append([]byte(nil), m.ram...),
		RTCSec:         m.rtcSec,
		RTCMin:         m.rtcMin,
		RTCHour:        m.rtcHour,
		RTCDay:         m.rtcDay,
		RTCHalt:        m.rtcHalt,
		RTCCarry:       m.rtcCarry,
		LastRTCWallSec: m.lastRTCWallSec,
		LatchedSec:     m.latchedSec,
		LatchedMin:     m.latchedMin,
		LatchedHour:    m.latchedHour,
		LatchedDay:     m.latchedDay,
		LatchedHalt:    m.latchedHalt,
		LatchedCarry:   m.latchedCarry,
	}
}

func (m *MBC3) restore(s mbc3SaveData) {
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.RTCSec, s.RTCMin, s.RTCHour, s.RTCDay
	m.rtcHalt, m.rtcCarry, m.lastRTCWallSec = s.RTCHalt, s.RTCCarry, s.LastRTCWallSec
	m.latchedSec, m.latchedMin, m.latchedHour = s.LatchedSec, s.LatchedMin, s.LatchedHour
	m.latchedDay, m.latchedHalt, m.latchedCarry = s.LatchedDay, s.LatchedHalt, s.LatchedCarry
}

func (m *MBC3) SaveRAM() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(m.snapshot())
	return buf.Bytes()
}

func (m *MBC3) LoadRAM(data []byte) {
	var s mbc3SaveData
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s)
}

type mbc3State struct {
	Data               mbc3SaveData
	RomBank, RamBank   byte
	RamEnabled         bool
	RTCSelected        bool
	RTCSelect, PrevLatch byte
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc3State{
		Data:       m.snapshot(),
		RomBank:    m.romBank,
		RamBank:    m.ramBank,
		RamEnabled: m.ramEnabled,
		RTCSelected: m.rtcSelected,
		RTCSelect:  m.rtcSelect,
		PrevLatch:  m.prevLatch,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s.Data)
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
	m.rtcSelected, m.rtcSelect, m.prevLatch = s.RTCSelected, s.RTCSelect, s.PrevLatch
}
