package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/YinWang3026/dynago/internal/watch"
	"github.com/YinWang3026/dynago/pkg/harness"
	"github.com/YinWang3026/dynago/pkg/node"
	"github.com/YinWang3026/dynago/pkg/transport"
)

var (
	flNodes    int
	flN        int
	flR        int
	flW        int
	flOps      int
	flKeys     int
	flPutRatio float64
	flSeed     int64

	flClientTO time.Duration
	flRedirTO  time.Duration
	flReqTO    time.Duration
	flHealth   time.Duration
	flSync     time.Duration

	flLoss   float64
	flDup    float64
	flReord  float64
	flDelay  time.Duration
	flJitter time.Duration

	flCrashEvery int
	flDownFor    time.Duration
)

func params() harness.Params {
	return harness.Params{
		Nodes: flNodes,
		N:     flN,
		R:     flR,
		W:     flW,
		Timers: node.Timers{
			Client:      flClientTO,
			Redirect:    flRedirTO,
			Request:     flReqTO,
			HealthCheck: flHealth,
			MerkleSync:  flSync,
		},
		Chaos: transport.ChaosConfig{
			Loss:      flLoss,
			Dup:       flDup,
			Reorder:   flReord,
			BaseDelay: flDelay,
			Jitter:    flJitter,
		},
		Operations:    flOps,
		Keys:          flKeys,
		PutRatio:      flPutRatio,
		Seed:          flSeed,
		CrashInterval: flCrashEvery,
		DownFor:       flDownFor,
	}
}

func main() {
	// .env is optional; only DYNAGO_LOG_LEVEL is read from the
	// environment, flags take no defaults from it
	_ = godotenv.Load()
	initLogging()

	root := &cobra.Command{
		Use:   "dynago",
		Short: "Quorum replicated key-value store simulator",
	}

	pf := root.PersistentFlags()
	pf.IntVar(&flNodes, "nodes", 5, "cluster size")
	pf.IntVar(&flN, "n", 3, "replication factor")
	pf.IntVar(&flR, "r", 2, "read quorum")
	pf.IntVar(&flW, "w", 2, "write quorum")
	pf.IntVar(&flOps, "ops", 200, "client operations to issue")
	pf.IntVar(&flKeys, "keys", 16, "distinct keys in the workload")
	pf.Float64Var(&flPutRatio, "put-ratio", 0.5, "fraction of operations that write")
	pf.Int64Var(&flSeed, "seed", 1, "workload and chaos seed")

	pf.DurationVar(&flClientTO, "client-timeout", 2*time.Second, "client request deadline")
	pf.DurationVar(&flRedirTO, "redirect-timeout", 150*time.Millisecond, "redirect acknowledgement deadline")
	pf.DurationVar(&flReqTO, "request-timeout", 150*time.Millisecond, "per-replica request deadline")
	pf.DurationVar(&flHealth, "health-check", 250*time.Millisecond, "dead-peer probe interval")
	pf.DurationVar(&flSync, "merkle-sync", 500*time.Millisecond, "anti-entropy interval")

	pf.Float64Var(&flLoss, "loss", 0, "frame drop probability [0..1]")
	pf.Float64Var(&flDup, "dup", 0, "frame duplication probability [0..1]")
	pf.Float64Var(&flReord, "reorder", 0, "frame reordering probability [0..1]")
	pf.DurationVar(&flDelay, "delay", 0, "base one-way delay")
	pf.DurationVar(&flJitter, "jitter", 0, "delay jitter (+/-)")

	pf.IntVar(&flCrashEvery, "crash-every", 0, "crash a random node every this many ops (0=off)")
	pf.DurationVar(&flDownFor, "down-for", time.Second, "how long a crashed node stays down")

	root.AddCommand(&cobra.Command{
		Use:   "sim",
		Short: "Run a measured workload and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := harness.Measure(params())
			if err != nil {
				return err
			}
			fmt.Printf("run          %s\n", res.RunID)
			fmt.Printf("operations   %d\n", res.Operations)
			fmt.Printf("availability %.4f\n", res.Availability)
			fmt.Printf("inconsistent %.4f\n", res.Inconsistent)
			fmt.Printf("stale reads  %.4f\n", res.StaleReads)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Run a workload under a live cluster view",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch.Run(params())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("DYNAGO_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
