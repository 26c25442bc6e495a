package cli

// cmd/cli/discovery.go — CLI wrapper for core/discovery.
// ----------------------------------------------------------------------------
// Layout mirrors tile.go / storage.go:
//   1. Globals & middleware
//   2. Controllers
//   3. CLI definitions
//   4. Consolidated route export
// ----------------------------------------------------------------------------

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tilecanvas/core/discovery"
)

// ---------------------------------------------------------------------------
// Globals & middleware
// ---------------------------------------------------------------------------

var (
	discGraph *discovery.Graph
	discLG    = logrus.New()
	discFlags struct {
		persistPath     string
		peerTtlMs       int
		tileTtlMs       int
		maxPeers        int
		maxTiles        int
		maxPeersPerTile int
	}
)

func initDiscoveryMiddleware(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	resolveStringFlag(cmd, "persist", &discFlags.persistPath, os.Getenv("TILECANVAS_DISCOVERY_PERSIST"))
	resolveIntFlag(cmd, "peerTtlMs", &discFlags.peerTtlMs, envInt("TILECANVAS_PEER_TTL_MS", discovery.DefaultPeerTtlMs))
	resolveIntFlag(cmd, "tileTtlMs", &discFlags.tileTtlMs, envInt("TILECANVAS_TILE_TTL_MS", discovery.DefaultTileTtlMs))
	resolveIntFlag(cmd, "maxPeers", &discFlags.maxPeers, envInt("TILECANVAS_MAX_PEERS", discovery.DefaultMaxPeers))
	resolveIntFlag(cmd, "maxTiles", &discFlags.maxTiles, envInt("TILECANVAS_MAX_TILES", discovery.DefaultMaxTiles))
	resolveIntFlag(cmd, "maxPeersPerTile", &discFlags.maxPeersPerTile, envInt("TILECANVAS_MAX_PEERS_PER_TILE", discovery.DefaultMaxPeersPerTile))

	g := discovery.New(discovery.Config{
		PersistPath:     discFlags.persistPath,
		PeerTtlMs:       int64(discFlags.peerTtlMs),
		TileTtlMs:       int64(discFlags.tileTtlMs),
		MaxPeers:        discFlags.maxPeers,
		MaxTiles:        discFlags.maxTiles,
		MaxPeersPerTile: discFlags.maxPeersPerTile,
	}, discLG, nil)

	if discFlags.persistPath != "" {
		if err := g.Load(); err != nil {
			log.Fatalf("discovery load: %v", err)
		}
	}
	discGraph = g
}

func discBail(err error) {
	if err != nil {
		log.Fatalf("discovery error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func discWhoHasHandler(cmd *cobra.Command, args []string) {
	space, _ := cmd.Flags().GetString("space")
	tile, _ := cmd.Flags().GetString("tile")
	if space == "" || tile == "" {
		_ = cmd.Usage()
		discBail(errors.New("--space and --tile are required"))
	}
	recs := discGraph.WhoHas(space, tile)
	printJSON(recs)
}

func discBestTipHandler(cmd *cobra.Command, args []string) {
	space, _ := cmd.Flags().GetString("space")
	tile, _ := cmd.Flags().GetString("tile")
	if space == "" || tile == "" {
		_ = cmd.Usage()
		discBail(errors.New("--space and --tile are required"))
	}
	rec, found := discGraph.BestTip(space, tile)
	printJSON(struct {
		discovery.TipRecord
		Found bool `json:"found"`
	}{rec, found})
}

func discPeerHandler(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		_ = cmd.Usage()
		discBail(errors.New("--id is required"))
	}
	rec, found := discGraph.Peer(id)
	if !found {
		printJSON(struct {
			Found bool `json:"found"`
		}{false})
		return
	}
	printJSON(struct {
		discovery.PeerRecord
		Tiles []discovery.TipRecord `json:"tiles"`
		Found bool                 `json:"found"`
	}{rec, discGraph.TilesByPeer(id), true})
}

func discPruneHandler(cmd *cobra.Command, args []string) {
	discGraph.Prune()
	if discFlags.persistPath != "" {
		discBail(discGraph.Save())
	}
	printJSON(struct {
		OK bool `json:"ok"`
	}{true})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var discoveryCmd = &cobra.Command{
	Use:              "discovery",
	Short:            "Discovery graph introspection (peers and tile tips)",
	PersistentPreRun: initDiscoveryMiddleware,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if discGraph != nil {
			discGraph.Stop()
		}
	},
}

var discWhoHasCmd = &cobra.Command{
	Use:   "who-has",
	Short: "List every known tip record for a tile",
	Run:   discWhoHasHandler,
}

var discBestTipCmd = &cobra.Command{
	Use:   "best-tip",
	Short: "Show the highest-scoring tip record for a tile",
	Run:   discBestTipHandler,
}

var discPeerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Show a peer record and the tiles it has advertised",
	Run:   discPeerHandler,
}

var discPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop stale tip records and persist the graph if configured",
	Run:   discPruneHandler,
}

func init() {
	discoveryCmd.PersistentFlags().String("persist", "", "Discovery graph snapshot path (TILECANVAS_DISCOVERY_PERSIST)")
	discoveryCmd.PersistentFlags().Int("peerTtlMs", discovery.DefaultPeerTtlMs, "Peer record TTL in milliseconds")
	discoveryCmd.PersistentFlags().Int("tileTtlMs", discovery.DefaultTileTtlMs, "Tip record TTL in milliseconds")
	discoveryCmd.PersistentFlags().Int("maxPeers", discovery.DefaultMaxPeers, "Maximum tracked peers")
	discoveryCmd.PersistentFlags().Int("maxTiles", discovery.DefaultMaxTiles, "Maximum tracked tiles")
	discoveryCmd.PersistentFlags().Int("maxPeersPerTile", discovery.DefaultMaxPeersPerTile, "Maximum tracked peers per tile")

	discWhoHasCmd.Flags().String("space", "", "Space ID [required]")
	discWhoHasCmd.Flags().String("tile", "", "Tile ID [required]")

	discBestTipCmd.Flags().String("space", "", "Space ID [required]")
	discBestTipCmd.Flags().String("tile", "", "Tile ID [required]")

	discPeerCmd.Flags().String("id", "", "Peer ID [required]")

	discoveryCmd.AddCommand(discWhoHasCmd, discBestTipCmd, discPeerCmd, discPruneCmd)
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// DiscoveryRoute is the entry-point command (root: "discovery").
var DiscoveryRoute = discoveryCmd
