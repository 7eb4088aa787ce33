// cmd/agentmeshd/main.go
package main

// agentmeshd is the ambient CLI entrypoint wiring the storage engine, graph
// store, transport endpoint, and memory engine together for local
// smoke-testing. Grounded on this codebase's cmd/synnergy convention (a
// single cobra.Command root with one subcommand per operational surface,
// config loaded via pkg/config.Load, a logrus logger injected into every
// subsystem) but trimmed to the one "serve" operation and a "version" stub —
// this repo specifies no RPC/API surface of its own (SPEC_FULL.md §6 leaves
// request/response framing to a caller-owned layer), so there is nothing
// else for a CLI to expose.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentmesh/core"
	"agentmesh/pkg/config"

	"github.com/spf13/cobra"

	logrus "github.com/sirupsen/logrus"
)

func main() {
	root := &cobra.Command{Use: "agentmeshd"}
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the config schema version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.Version)
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "bring up storage, graph, transport, and memory and block until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; defaults apply otherwise)")
	return cmd
}

func serve(configPath string) error {
	logger := logrus.New()
	if lvl := os.Getenv("AGENTMESHD_LOG_LEVEL"); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			logger.SetLevel(parsed)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("agentmeshd: %w", err)
	}

	node, err := newNode(cfg, logger)
	if err != nil {
		return fmt.Errorf("agentmeshd: %w", err)
	}
	defer node.Close()

	logger.Infof("agentmeshd listening on %s", node.transport.LocalAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go node.acceptLoop(ctx)
	go node.maintenanceLoop(ctx, cfg)

	<-ctx.Done()
	logger.Info("agentmeshd shutting down")
	return nil
}

// node bundles the four subsystems this core specifies, so main only needs
// one constructor and one Close.
type node struct {
	engine    *core.Engine
	graph     *core.GraphStore
	transport *core.Endpoint
	stm       *core.ShortTermMemory
	ltm       *core.LongTermMemory
	consol    *core.Consolidator
	logger    *logrus.Logger
}

func newNode(cfg config.Config, logger *logrus.Logger) (*node, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	engine := core.NewEngine(backend, cfg.Storage.MaxSizeBytes, logger)

	identity, err := core.GenerateIdentity()
	if err != nil {
		return nil, fmt.Errorf("generate transport identity: %w", err)
	}
	tuning := core.TransportTuning{
		MaxIdleTimeout:          cfg.Transport.MaxIdleTimeout,
		KeepAliveInterval:       cfg.Transport.KeepAliveInterval,
		MaxConcurrentUniStreams: cfg.Transport.MaxConcurrentUniStreams,
		MaxConnections:          cfg.Transport.MaxConnections,
	}
	endpoint, err := core.Bind(cfg.Transport.ListenAddr, identity, cfg.Transport.ALPN, tuning, cfg.Transport.InsecureSkipVerify)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("bind transport: %w", err)
	}

	stm := core.NewShortTermMemory(
		cfg.Memory.STMMaxEntries,
		cfg.Memory.STMMaxMemoryBytes,
		cfg.Memory.STMDecayInterval,
		cfg.Memory.STMDecayFactor,
		cfg.Memory.STMMinAttentionThresh,
	)
	ltm := core.NewLongTermMemory(cfg.Memory.LTMMaxEntities, cfg.Memory.LTMMaxLinks)
	consolCfg := core.DefaultConsolidationConfig()
	consol := core.NewConsolidator(consolCfg)

	return &node{
		engine:    engine,
		graph:     core.NewGraphStore(),
		transport: endpoint,
		stm:       stm,
		ltm:       ltm,
		consol:    consol,
		logger:    logger,
	}, nil
}

func newBackend(cfg config.Config) (core.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendBTree:
		return core.NewBTreeBackend(cfg.Storage.Path)
	case config.BackendLSM:
		return core.NewLSMBackend(cfg.Storage.Path)
	default:
		return core.NewMemoryBackend(), nil
	}
}

// acceptLoop drains incoming transport connections until ctx is cancelled;
// this entrypoint does not itself speak any application protocol over them,
// since SPEC_FULL.md §6 leaves message framing above raw channels to a
// caller-owned layer.
func (n *node) acceptLoop(ctx context.Context) {
	for {
		select {
		case conn, ok := <-n.transport.Incoming():
			if !ok {
				return
			}
			n.logger.WithField("peer", conn.PeerCert()).Debug("agentmeshd: accepted connection")
		case <-ctx.Done():
			return
		}
	}
}

// maintenanceLoop runs STM decay/prune and, when enabled, periodic
// consolidation — the background upkeep SPEC_FULL.md §4.4 assumes a host
// process performs.
func (n *node) maintenanceLoop(ctx context.Context, cfg config.Config) {
	ticker := time.NewTicker(cfg.Memory.STMDecayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.stm.Decay()
			n.stm.Prune()
			if cfg.Memory.AutoConsolidate && n.stm.Len() >= cfg.Memory.MaxSTMBeforeConsolidate && n.consol.ShouldRun() {
				result := n.consol.Run(n.stm, n.ltm)
				n.logger.WithField("promoted", result.Promoted).Info("agentmeshd: consolidation pass complete")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (n *node) Close() {
	_ = n.transport.Close()
	_ = n.engine.Close()
}
