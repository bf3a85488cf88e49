package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// volumeOpener opens the volume at path; mokuroPath may be empty.
type volumeOpener func(path, mokuroPath string, cfg Config) (*Volume, error)

// Game is the ebiten game: it owns the reader and the open volume and
// implements RenderState and InputActions.
type Game struct {
	reader        *Reader
	renderer      *Renderer
	inputHandler  *InputHandler
	keybindings   *KeybindingManager
	mouse         *MouseHandler
	config        Config
	configPath    string
	pendingConfig chan Config

	// Volumes named on the command line, in reading order.
	volumePaths []string
	volumeIdx   int
	volume      *Volume
	mokuroPath  string // only applies to the first volume opened
	openVolume  volumeOpener

	// Explicit breakpoints per volume path for this session.
	breakpoints map[string][]int
	pendingNav  *Direction

	screenW, screenH int
	fullscreen       bool
	showInfo         bool
	savedWinW        int
	savedWinH        int
	exiting          atomic.Bool

	overlayMessage     string
	overlayMessageTime time.Time
}

// NewGame creates a game reading volumePaths with the given reader.
func NewGame(cfg Config, reader *Reader, volumePaths []string, mokuroPath string, open volumeOpener) *Game {
	g := &Game{
		reader:        reader,
		config:        cfg,
		configPath:    getConfigPath(),
		pendingConfig: make(chan Config, 1),
		volumePaths:   volumePaths,
		mokuroPath:    mokuroPath,
		openVolume:    open,
		breakpoints:   make(map[string][]int),
		screenW:       cfg.WindowWidth,
		screenH:       cfg.WindowHeight,
	}
	g.renderer = NewRenderer(g)
	g.keybindings = NewKeybindingManager(cfg.Keybindings)
	g.mouse = NewMouseHandler(cfg.Mouse)
	g.inputHandler = NewInputHandler(g, g.keybindings, g.mouse)

	reader.SetViewport(float64(g.screenW), float64(g.screenH))
	reader.OnPageChange(g.onPageChange)
	reader.OnVolumeNav(func(d Direction) { g.pendingNav = &d })
	reader.OnBreakpointsChange(func(bps []int) {
		if g.volume != nil {
			g.breakpoints[g.volume.Path] = bps
		}
	})
	return g
}

// OpenVolume opens the volume at position idx of the volume list and shows
// the 0-based startPage. A negative startPage shows the last page.
func (g *Game) OpenVolume(idx, startPage int) error {
	if idx < 0 || idx >= len(g.volumePaths) {
		return fmt.Errorf("volume %d out of range", idx)
	}
	path := g.volumePaths[idx]
	mokuroPath := ""
	if g.volume == nil {
		mokuroPath = g.mokuroPath
	}

	vol, err := g.openVolume(path, mokuroPath, g.config)
	if err != nil {
		return err
	}

	g.closeVolume()
	g.volume = vol
	g.volumeIdx = idx
	if startPage < 0 {
		startPage = len(vol.Pages) - 1
	}
	g.renderer.ResetErrorImages()
	g.reader.Open(vol.Source.Files(), vol.Pages, g.breakpoints[path], startPage)
	g.updateWindowTitle()

	logger.Info().
		Str("volume", path).
		Str("title", vol.Title).
		Int("pages", len(vol.Pages)).
		Int("spreads", len(g.reader.Spreads())).
		Msg("opened volume")
	return nil
}

func (g *Game) closeVolume() {
	if g.volume == nil {
		return
	}
	g.reader.Close()
	if err := g.volume.Close(); err != nil {
		logger.Warn().Err(err).Str("volume", g.volume.Path).Msg("closing volume")
	}
	g.volume = nil
}

// Close releases the open volume and the reader's caches.
func (g *Game) Close() {
	g.closeVolume()
	g.reader.ImageCache().Close()
}

// SetConfigPath sets where the configuration is saved on exit.
func (g *Game) SetConfigPath(path string) {
	g.configPath = path
}

// QueueConfig hands a reloaded configuration to the frame loop. Only the
// latest configuration is kept.
func (g *Game) QueueConfig(cfg Config) {
	select {
	case <-g.pendingConfig:
	default:
	}
	g.pendingConfig <- cfg
}

func (g *Game) applyPendingConfig() {
	select {
	case cfg := <-g.pendingConfig:
		g.applyConfig(cfg)
	default:
	}
}

func (g *Game) applyConfig(cfg Config) {
	// The live window size wins over the file
	cfg.WindowWidth, cfg.WindowHeight = g.config.WindowWidth, g.config.WindowHeight
	g.config = cfg
	g.keybindings.UpdateKeybindings(cfg.Keybindings)
	g.mouse.UpdateSettings(cfg.Mouse)
	if err := setLogLevel(cfg.LogLevel); err != nil {
		logger.Warn().Err(err).Msg("keeping previous log level")
	}
	g.reader.ApplySettings(readerSettingsFromConfig(cfg))
	g.ShowOverlayMessage("Config reloaded")
}

func (g *Game) onPageChange(page, total int) {
	logger.Info().Int("page", page).Int("total", total).Msg("page")
	g.updateWindowTitle()
}

func (g *Game) updateWindowTitle() {
	if g.volume == nil {
		ebiten.SetWindowTitle("mv")
		return
	}
	ebiten.SetWindowTitle(fmt.Sprintf("mv - %s (%d/%d)",
		g.volume.Title, g.reader.CurrentPage()+1, len(g.reader.Pages())))
}

// navigateVolume moves to the adjacent volume after paging past an end.
func (g *Game) navigateVolume(d Direction) {
	if d == DirectionNext {
		if g.volumeIdx+1 >= len(g.volumePaths) {
			g.ShowOverlayMessage("Last volume")
			return
		}
		if err := g.OpenVolume(g.volumeIdx+1, 0); err != nil {
			logger.Error().Err(err).Msg("cannot open next volume")
			g.ShowOverlayMessage("Cannot open next volume")
		}
		return
	}
	if g.volumeIdx == 0 {
		g.ShowOverlayMessage("First volume")
		return
	}
	if err := g.OpenVolume(g.volumeIdx-1, -1); err != nil {
		logger.Error().Err(err).Msg("cannot open previous volume")
		g.ShowOverlayMessage("Cannot open previous volume")
	}
}

func (g *Game) saveCurrentWindowSize() {
	if g.fullscreen {
		// Save the size from before fullscreen
		if g.savedWinW > 0 && g.savedWinH > 0 {
			g.config.WindowWidth = g.savedWinW
			g.config.WindowHeight = g.savedWinH
		}
	} else {
		w, h := ebiten.WindowSize()
		g.config.WindowWidth = w
		g.config.WindowHeight = h
	}
	saveConfigToPath(g.config, g.configPath)
}

func (g *Game) Update() error {
	if g.exiting.Load() {
		g.saveCurrentWindowSize()
		return ebiten.Termination
	}

	g.applyPendingConfig()
	g.reader.SetViewport(float64(g.screenW), float64(g.screenH))
	g.inputHandler.HandleInput()

	if g.pendingNav != nil {
		d := *g.pendingNav
		g.pendingNav = nil
		g.navigateVolume(d)
	}

	g.reader.Tick()
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.renderer.Draw(screen)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.screenW, g.screenH = outsideWidth, outsideHeight
	return outsideWidth, outsideHeight
}

// RenderState

func (g *Game) IsFullscreen() bool  { return g.fullscreen }
func (g *Game) IsShowingInfo() bool { return g.showInfo }
func (g *Game) IsRightToLeft() bool { return g.reader.Settings().RightToLeft }
func (g *Game) IsContinuous() bool  { return g.reader.Settings().Continuous }

func (g *Game) GetSpread(i int) (PageSpread, bool) { return g.reader.spreadAt(i) }
func (g *Game) GetSpreadLayout(i int) spreadLayout { return g.reader.SpreadLayout(i) }
func (g *Game) GetCurrentSpreadIndex() int         { return g.reader.CurrentSpreadIndex() }
func (g *Game) GetPanY() float64                   { return g.reader.PanY() }

func (g *Game) GetPageBitmap(pageIndex int) Bitmap {
	return g.reader.ImageCache().GetBitmapSync(pageIndex)
}

func (g *Game) GetPageCanvas(pageIndex int) (Bitmap, bool) {
	if g.reader.CanvasCache() == nil {
		return nil, false
	}
	return g.reader.CanvasCache().Get(pageIndex)
}

func (g *Game) GetPagePath(pageIndex int) string {
	pages := g.reader.Pages()
	if pageIndex < 0 || pageIndex >= len(pages) {
		return ""
	}
	return pages[pageIndex].Path
}

func (g *Game) GetPageError(pageIndex int) string {
	cache := g.reader.ImageCache()
	if cache.FileAt(pageIndex) == nil {
		return "no matching image file"
	}
	if err := cache.Failure(pageIndex); err != nil {
		return err.Error()
	}
	return ""
}

func (g *Game) GetOverlayMessage() string        { return g.overlayMessage }
func (g *Game) GetOverlayMessageTime() time.Time { return g.overlayMessageTime }
func (g *Game) GetFontSize() float64             { return g.config.FontSize }

func (g *Game) GetInfoLines() []string {
	settings := g.reader.Settings()
	direction := "LTR"
	if settings.RightToLeft {
		direction = "RTL"
	}
	scroll := "paged"
	if settings.Continuous {
		scroll = "continuous"
	}

	lines := []string{}
	if g.volume != nil {
		lines = append(lines, fmt.Sprintf("%s [%d/%d]", g.volume.Title, g.volumeIdx+1, len(g.volumePaths)))
	}
	if spread, ok := g.reader.CurrentSpread(); ok {
		lines = append(lines, fmt.Sprintf("Page %s / %d (%s)",
			formatPageNumbers(getSpreadPageNumbers(spread)), len(g.reader.Pages()), spread.Kind))
	}
	stats := g.reader.ImageCache().Stats()
	lines = append(lines,
		fmt.Sprintf("View %s, %s, %s", settings.ViewMode, direction, scroll),
		fmt.Sprintf("Breakpoints %v", g.reader.Breakpoints()),
		fmt.Sprintf("Cache %d decoded, %d pending, %d failed", stats.Cached, stats.Pending, stats.Failed),
	)
	return lines
}

func formatPageNumbers(numbers []int) string {
	if len(numbers) == 2 {
		return fmt.Sprintf("%d-%d", numbers[0], numbers[1])
	}
	if len(numbers) == 1 {
		return fmt.Sprint(numbers[0])
	}
	return "-"
}

// InputActions

// Exit ends the game on the next frame. It may be called from any goroutine.
func (g *Game) Exit() {
	g.exiting.Store(true)
}

func (g *Game) ToggleInfo() {
	g.showInfo = !g.showInfo
}

func (g *Game) ToggleFullscreen() {
	g.fullscreen = !g.fullscreen
	if g.fullscreen {
		g.savedWinW, g.savedWinH = ebiten.WindowSize()
		ebiten.SetFullscreen(true)
		return
	}
	ebiten.SetFullscreen(false)
	if g.savedWinW > 0 && g.savedWinH > 0 {
		ebiten.SetWindowSize(g.savedWinW, g.savedWinH)
	}
}

func (g *Game) CycleViewMode() {
	mode := g.reader.Settings().ViewMode.next()
	g.reader.SetViewMode(mode)
	g.config.PageViewMode = string(mode)
	g.ShowOverlayMessage("View mode: " + string(mode))
}

func (g *Game) ToggleReadingDirection() {
	rtl := !g.reader.Settings().RightToLeft
	g.reader.SetRightToLeft(rtl)
	g.config.RightToLeft = rtl
	if rtl {
		g.ShowOverlayMessage("Reading direction: right to left")
	} else {
		g.ShowOverlayMessage("Reading direction: left to right")
	}
}

func (g *Game) ToggleContinuous() {
	continuous := !g.reader.Settings().Continuous
	g.reader.SetContinuous(continuous)
	g.config.ContinuousScroll = continuous
	if continuous {
		g.ShowOverlayMessage("Continuous scrolling")
	} else {
		g.ShowOverlayMessage("Paged")
	}
}

func (g *Game) ToggleCover() {
	hasCover := !g.reader.Settings().HasCover
	g.reader.SetHasCover(hasCover)
	g.config.HasCover = hasCover
	if hasCover {
		g.ShowOverlayMessage("Cover page: on")
	} else {
		g.ShowOverlayMessage("Cover page: off")
	}
}

func (g *Game) ToggleBreakpoint() {
	page := g.reader.CurrentPage()
	if g.reader.ToggleBreakpoint(page) {
		g.ShowOverlayMessage(fmt.Sprintf("Page %d shown alone", page+1))
	} else {
		g.ShowOverlayMessage(fmt.Sprintf("Page %d paired", page+1))
	}
}

func (g *Game) Navigate(navKey string) {
	g.reader.HandleKey(resolveNavKey(navKey, g.reader.Settings().RightToLeft))
}

func (g *Game) PanByDelta(deltaY float64, dragging bool) {
	g.reader.PanBy(deltaY, dragging)
}

func (g *Game) ReleasePan(velocity float64) {
	g.reader.Release(velocity)
}

func (g *Game) ShowOverlayMessage(message string) {
	g.overlayMessage = message
	g.overlayMessageTime = time.Now()
}

func (g *Game) GetTotalPagesCount() int {
	return len(g.reader.Pages())
}
