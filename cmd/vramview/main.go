package main

import (
	"flag"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/mvreijn/gbcore/internal/bus"
	"github.com/mvreijn/gbcore/internal/cpu"
)

// vramview is a debug tool, in the spirit of cmd/cpurunner: it runs a ROM on
// the CPU/bus core and opens a window showing the raw contents of tile RAM
// (0x8000-0x97FF) as a greyscale grid. It performs no scanline composition,
// no palette application, no sprite logic — each tile's 2bpp rows are
// decoded directly from Bus.Read and blitted as four shades of grey. It
// never reimplements a PPU; if VRAM holds garbage, the grid shows garbage.
const (
	tileW, tileH   = 8, 8
	tilesPerRow    = 16
	tileRows       = 24 // 384 tiles total (0x8000-0x97FF) / 16 per row
	gridW, gridH   = tilesPerRow * tileW, tileRows * tileH
	stepsPerUpdate = 20000
)

type app struct {
	b     *bus.Bus
	c     *cpu.CPU
	tex   *ebiten.Image
	pix   []byte
	running bool
}

func newApp(rom, boot []byte) *app {
	b := bus.New(rom)
	var c *cpu.CPU
	if len(boot) >= 0x100 {
		b.SetBootROM(boot)
		c = cpu.New(b)
		c.SP, c.PC = 0xFFFE, 0x0000
	} else {
		c = cpu.New(b)
		c.ResetNoBoot()
		c.SetPC(0x0100)
		b.Write(0xFF40, 0x91) // LCDC on, so the mode/LY state machine actually advances
	}
	return &app{b: b, c: c, pix: make([]byte, gridW*gridH*4), running: true}
}

func (a *app) Update() error {
	if a.running {
		for i := 0; i < stepsPerUpdate; i++ {
			a.c.Step()
		}
	}
	if inpututilSpacePressed() {
		a.running = !a.running
	}
	return nil
}

// inpututilSpacePressed is split out so Update stays readable; avoids
// pulling in the inpututil edge-detector for a single key.
var spaceWasDown bool

func inpututilSpacePressed() bool {
	down := ebiten.IsKeyPressed(ebiten.KeySpace)
	pressed := down && !spaceWasDown
	spaceWasDown = down
	return pressed
}

func (a *app) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(gridW, gridH)
	}
	a.renderTiles()
	a.tex.WritePixels(a.pix)
	screen.DrawImage(a.tex, nil)
}

func (a *app) Layout(outsideW, outsideH int) (int, int) { return gridW, gridH }

// renderTiles decodes every tile in VRAM's tile-data block and writes the
// 2bpp pixel values straight into the greyscale framebuffer. Shade 0 (color
// index 0) is drawn lightest, matching nothing about the real DMG palette —
// there is no BGP lookup here, intentionally.
func (a *app) renderTiles() {
	for tile := 0; tile < tilesPerRow*tileRows; tile++ {
		base := uint16(0x8000 + tile*16)
		tx := (tile % tilesPerRow) * tileW
		ty := (tile / tilesPerRow) * tileH
		for row := 0; row < tileH; row++ {
			lo := a.b.Read(base + uint16(row*2))
			hi := a.b.Read(base + uint16(row*2+1))
			for col := 0; col < tileW; col++ {
				bit := 7 - col
				idx := (((hi >> bit) & 1) << 1) | ((lo >> bit) & 1)
				shade := byte(255 - int(idx)*85)
				px := (ty+row)*gridW + (tx + col)
				o := px * 4
				a.pix[o+0] = shade
				a.pix[o+1] = shade
				a.pix[o+2] = shade
				a.pix[o+3] = 255
			}
		}
	}
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return data
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	bootPath := flag.String("bootrom", "", "optional DMG boot ROM")
	scale := flag.Int("scale", 3, "window scale")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom := mustRead(*romPath)
	boot := mustRead(*bootPath)

	ebiten.SetWindowTitle("vramview")
	ebiten.SetWindowSize(gridW*(*scale), gridH*(*scale))

	a := newApp(rom, boot)
	if err := ebiten.RunGame(a); err != nil {
		log.Fatal(err)
	}
}
