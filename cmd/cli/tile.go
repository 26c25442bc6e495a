package cli

// cmd/cli/tile.go — CLI wrapper for core/tilestore.
// ----------------------------------------------------------------------------
// Layout
//   1. Globals & middleware (env-driven wiring of logger, store).
//   2. Controllers — one per CLI sub-command, thin and validated.
//   3. CLI definitions — commands + flags.
//   4. Consolidated route export (BOTTOM), ready for import in root CLI.
// ----------------------------------------------------------------------------

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tilecanvas/core/event"
	"tilecanvas/core/tilestore"
)

// ---------------------------------------------------------------------------
// Globals & middleware
// ---------------------------------------------------------------------------

var (
	tileStore *tilestore.Store
	tileLG    = logrus.New()
	tileFlags struct {
		rootDir    string
		flushBytes int
		flushMs    int
	}
)

func initTileMiddleware(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	resolveStringFlag(cmd, "root", &tileFlags.rootDir, os.Getenv("TILECANVAS_ROOT"))
	resolveIntFlag(cmd, "flushBytes", &tileFlags.flushBytes, envInt("TILECANVAS_FLUSH_BYTES", tilestore.DefaultFlushBytes))
	resolveIntFlag(cmd, "flushMs", &tileFlags.flushMs, envInt("TILECANVAS_FLUSH_MS", tilestore.DefaultFlushMs))

	if tileFlags.rootDir == "" {
		log.Fatalf("tile store root must be provided via --root or TILECANVAS_ROOT")
	}

	s, err := tilestore.New(tilestore.Config{
		RootDir:    tileFlags.rootDir,
		FlushBytes: tileFlags.flushBytes,
		FlushMs:    tileFlags.flushMs,
	}, tileLG)
	if err != nil {
		log.Fatalf("tile store open: %v", err)
	}
	tileStore = s
}

func tileBail(err error) {
	if err != nil {
		log.Fatalf("tile error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func tileTipHandler(cmd *cobra.Command, args []string) {
	space, _ := cmd.Flags().GetString("space")
	tile, _ := cmd.Flags().GetString("tile")
	if space == "" || tile == "" {
		_ = cmd.Usage()
		tileBail(errors.New("--space and --tile are required"))
	}
	tip, found, err := tileStore.GetTileTip(space, tile)
	tileBail(err)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(struct {
		tilestore.TipIndex
		Found bool `json:"found"`
	}{tip, found})
}

func tileLogHandler(cmd *cobra.Command, args []string) {
	space, _ := cmd.Flags().GetString("space")
	tile, _ := cmd.Flags().GetString("tile")
	after, _ := cmd.Flags().GetString("after")
	max, _ := cmd.Flags().GetInt("max")
	if space == "" || tile == "" {
		_ = cmd.Usage()
		tileBail(errors.New("--space and --tile are required"))
	}
	var afterPtr *string
	if after != "" {
		afterPtr = &after
	}
	segs, err := tileStore.GetSegmentsSince(space, tile, afterPtr, max)
	tileBail(err)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(segs)
}

func tileAppendHandler(cmd *cobra.Command, args []string) {
	space, _ := cmd.Flags().GetString("space")
	tile, _ := cmd.Flags().GetString("tile")
	eventsFile, _ := cmd.Flags().GetString("events")
	if space == "" || tile == "" || eventsFile == "" {
		_ = cmd.Usage()
		tileBail(errors.New("--space, --tile, and --events are required"))
	}
	b, err := os.ReadFile(eventsFile)
	tileBail(err)
	var events []*event.WorldEvent
	tileBail(json.Unmarshal(b, &events))
	res, err := tileStore.AppendTileEvents(space, tile, events)
	tileBail(err)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

func tileArchiveHandler(cmd *cobra.Command, args []string) {
	space, _ := cmd.Flags().GetString("space")
	tile, _ := cmd.Flags().GetString("tile")
	if space == "" || tile == "" {
		_ = cmd.Usage()
		tileBail(errors.New("--space and --tile are required"))
	}
	tileBail(tileStore.ArchiveOldSegments(space, tile))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(struct {
		OK bool `json:"ok"`
	}{true})
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var tileCmd = &cobra.Command{
	Use:              "tile",
	Short:            "Append-only tile storage operations",
	PersistentPreRun: initTileMiddleware,
}

var tileTipCmd = &cobra.Command{
	Use:   "tip",
	Short: "Show the current tip index for a tile",
	Run:   tileTipHandler,
}

var tileLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Walk a tile's segment chain tip-to-root",
	Run:   tileLogHandler,
}

var tileAppendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append a JSON array of events from a file to a tile",
	Run:   tileAppendHandler,
}

var tileArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Gzip-archive a tile's fully-flushed segments to cold storage",
	Run:   tileArchiveHandler,
}

func init() {
	tileCmd.PersistentFlags().String("root", "", "Tile store root directory (TILECANVAS_ROOT)")
	tileCmd.PersistentFlags().Int("flushBytes", tilestore.DefaultFlushBytes, "Flush threshold in bytes")
	tileCmd.PersistentFlags().Int("flushMs", tilestore.DefaultFlushMs, "Flush threshold in milliseconds")

	tileTipCmd.Flags().String("space", "", "Space ID [required]")
	tileTipCmd.Flags().String("tile", "", "Tile ID [required]")

	tileLogCmd.Flags().String("space", "", "Space ID [required]")
	tileLogCmd.Flags().String("tile", "", "Tile ID [required]")
	tileLogCmd.Flags().String("after", "", "Stop the walk at the segment containing this event_id")
	tileLogCmd.Flags().Int("max", 64, "Maximum segments to return")

	tileAppendCmd.Flags().String("space", "", "Space ID [required]")
	tileAppendCmd.Flags().String("tile", "", "Tile ID [required]")
	tileAppendCmd.Flags().String("events", "", "Path to a JSON array of WorldEvent [required]")

	tileArchiveCmd.Flags().String("space", "", "Space ID [required]")
	tileArchiveCmd.Flags().String("tile", "", "Tile ID [required]")

	tileCmd.AddCommand(tileTipCmd, tileLogCmd, tileAppendCmd, tileArchiveCmd)
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// TileRoute is the entry-point command (root: "tile").
var TileRoute = tileCmd
