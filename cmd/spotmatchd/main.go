package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/spotmatch/pkg/config"
	"github.com/cuemby/spotmatch/pkg/engine"
	spotlog "github.com/cuemby/spotmatch/pkg/log"
	"github.com/cuemby/spotmatch/pkg/metrics"
	"github.com/cuemby/spotmatch/pkg/raftnode"
	"github.com/cuemby/spotmatch/pkg/server"
	"github.com/cuemby/spotmatch/pkg/transport"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "spotmatchd",
	Short:   "spotmatchd runs one replicated node of a spot matching cluster",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("spotmatchd version %s\nCommit: %s\n", Version, Commit))
	runCmd.Flags().String("config", "./spotmatchd.toml", "Path to the node's TOML config file")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start this node and join (or bootstrap) its cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		return run(path)
	},
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	spotlog.Init(spotlog.Config{
		Level:      spotlog.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	log := spotlog.WithNode(cfg.ID)
	log.Info().Str("addr", cfg.Addr).Str("base_path", cfg.BasePath).Msg("starting spotmatchd")

	manager := engine.NewManager()

	node, err := raftnode.New(raftnode.Config{
		ID:           cfg.ID,
		Peers:        cfg.Peers(),
		BasePath:     cfg.BasePath,
		Bootstrap:    cfg.StartWithLeader,
		StateMachine: manager,
	})
	if err != nil {
		return fmt.Errorf("new raft node: %w", err)
	}

	peerAddrs := make(map[uint64]string)
	for _, n := range cfg.NodeList {
		if n.ID == cfg.ID {
			continue
		}
		peerAddrs[n.ID] = n.Addr
	}
	peers := transport.NewPeerClient(peerAddrs)

	srv := server.New(node, manager)
	collector := metrics.NewCollector(srv, node)
	collector.Start()
	defer collector.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go peers.Run(ctx, node.Outbox())
	go node.Run(ctx)

	grpcServer := grpc.NewServer()
	transport.RegisterRaftTransportServer(grpcServer, node)
	server.RegisterMatchServiceServer(grpcServer, srv)

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("grpc server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	if cfg.StartWithLeader {
		go func() {
			time.Sleep(2 * time.Second)
			log.Info().Msg("running cluster init routine")
			if err := node.RunInitRoutine(ctx); err != nil {
				log.Error().Err(err).Msg("cluster init routine failed")
			}
		}()
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()
	grpcServer.GracefulStop()
	_ = metricsSrv.Close()
	return nil
}
