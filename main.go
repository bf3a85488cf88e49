package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	mokuroFile string
	startPage  int
	viewMode   string
	readRTL    bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mv [volume...]",
	Short: "Manga reader with spread-aware paging",
	Long: `mv reads manga volumes from directories or zip/cbz, rar/cbr and 7z/cb7
archives. Pages are paired into two-page spreads, with wide pages and
detected cover pages shown alone.

When a volume has an OCR document next to it (<volume>.mokuro), page sizes
and file names are taken from it. Volumes are read in the order given;
paging past the end of one volume opens the next.

Examples:
  mv vol01.cbz vol02.cbz
  mv --view-mode dual --page 12 series/vol03
  mv --mokuro vol01.mokuro vol01/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReader,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mv.json)")
	rootCmd.Flags().StringVar(&mokuroFile, "mokuro", "", "OCR document for the first volume")
	rootCmd.Flags().IntVar(&startPage, "page", 1, "1-indexed page to open the first volume at")
	rootCmd.Flags().StringVar(&viewMode, "view-mode", "", "page view mode: single, dual or auto")
	rootCmd.Flags().BoolVar(&readRTL, "rtl", true, "read right to left")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// applyFlags overrides configuration values with the flags that were set.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	if cmd.Flags().Changed("view-mode") {
		if _, err := parseViewMode(viewMode); err != nil {
			return err
		}
		cfg.PageViewMode = viewMode
	}
	if cmd.Flags().Changed("rtl") {
		cfg.RightToLeft = readRTL
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return nil
}

func runReader(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path := cfgFile
	if path == "" {
		path = getConfigPath()
	}
	configManager := NewConfigManager(path)
	result := configManager.Result()
	cfg := result.Config
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}
	if err := setLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	for _, w := range result.Warnings {
		logger.Warn().Str("config", path).Msg(w)
	}

	volumes, err := expandVolumeArgs(args, GetSortStrategy(cfg.SortMethod))
	if err != nil {
		return err
	}
	if len(volumes) == 0 {
		return errors.New("no volumes specified")
	}

	if err := InitGraphics(); err != nil {
		return fmt.Errorf("loading font: %w", err)
	}

	cache := NewImageCache(decodeEbitenBitmap, cfg.CacheBehind, cfg.CacheAhead, cfg.DecodeWorkers)
	var reader *Reader
	canvases := NewCanvasCache(cfg.CanvasCacheOptions(), func(pageIndex int) (Bitmap, bool) {
		return renderPageCanvas(reader, pageIndex)
	})
	reader = NewReader(readerSettingsFromConfig(cfg), cache, canvases)

	game := NewGame(cfg, reader, volumes, mokuroFile, openVolume)
	game.SetConfigPath(path)
	defer game.Close()
	if err := game.OpenVolume(0, startPage-1); err != nil {
		return err
	}

	configManager.OnChange(game.QueueConfig)
	configManager.Watch()

	go func() {
		<-ctx.Done()
		game.Exit()
	}()

	ebiten.SetWindowSize(cfg.WindowWidth, cfg.WindowHeight)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWidth, minHeight, -1, -1)

	if err := ebiten.RunGame(game); err != nil {
		logger.Error().Err(err).Msg("game loop failed")
		return err
	}
	return nil
}

// expandVolumeArgs turns the command line into a volume list. A directory
// holding no images directly is a series: its archives and subdirectories
// become volumes in sorted order.
func expandVolumeArgs(args []string, strategy SortStrategy) ([]string, error) {
	var volumes []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !isArchiveExt(arg) {
				return nil, fmt.Errorf("%s: %w", arg, ErrUnsupportedArchive)
			}
			volumes = append(volumes, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var children []string
		hasImages := false
		for _, entry := range entries {
			name := entry.Name()
			switch {
			case entry.IsDir():
				children = append(children, name)
			case isSupportedExt(name):
				hasImages = true
			case isArchiveExt(name):
				children = append(children, name)
			}
		}
		if hasImages || len(children) == 0 {
			volumes = append(volumes, arg)
			continue
		}
		for _, name := range strategy.Sort(children) {
			volumes = append(volumes, filepath.Join(arg, name))
		}
	}
	return volumes, nil
}
