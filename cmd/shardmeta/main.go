package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/shardmeta/internal/app"
	"github.com/dropDatabas3/shardmeta/internal/config"
	"github.com/dropDatabas3/shardmeta/internal/metrics"
	"github.com/dropDatabas3/shardmeta/internal/observability/logger"
)

var version = "dev"

// globals son los flags persistentes, compartidos por todos los subcomandos.
type globals struct {
	configPath      string
	metaConfigPath  string
	envFile         string
	dryRun          bool
	metricsTextfile string
	logLevel        string

	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:          "shardmeta",
		Short:        "Aprovisiona la topología de un cluster sharded en el metadata store y en los catálogos de los nodos de cómputo",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", os.Getenv("SHARDMETA_CONFIG"), "Path al YAML de configuración (env SHARDMETA_CONFIG)")
	pf.StringVar(&g.metaConfigPath, "meta-config", "", "Archivo con la lista de nodos del cluster de metadata (pisa meta.nodes)")
	pf.StringVar(&g.envFile, "env-file", ".env", "Archivo .env opcional")
	pf.BoolVar(&g.dryRun, "dry-run", false, "Ejecuta contra un despliegue simulado en memoria, sin conectarse a nada")
	pf.StringVar(&g.metricsTextfile, "metrics-textfile", "", "Escribe las métricas de la corrida en este archivo (formato textfile de Prometheus)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug|info|warn|error (pisa log.level)")

	root.AddCommand(
		newBootstrapMetaCmd(g),
		newCreateClusterCmd(g),
		newAddShardsCmd(g),
		newAddCompNodesCmd(g),
		newAddCompSelfCmd(g),
		newCheckShardsCmd(g),
	)
	return root
}

// setup carga .env, configuración y logger. Corre antes de cada subcomando.
func (g *globals) setup() error {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", g.envFile, err)
		}
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.metricsTextfile != "" {
		cfg.Metrics.Textfile = g.metricsTextfile
	}
	g.cfg = cfg

	logger.Init(logger.Config{
		Env:         cfg.Log.Env,
		Level:       cfg.Log.Level,
		Output:      cfg.Log.Output,
		ServiceName: "shardmeta",
		Version:     version,
	})
	return nil
}

// run abre el container, ejecuta fn con un op id en el logger del contexto y
// vuelca las métricas aunque fn falle.
func (g *globals) run(cmd *cobra.Command, op string, opts app.Options, fn func(ctx context.Context, c *app.Container) error) (err error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	defer func() {
		if path := g.cfg.Metrics.Textfile; path != "" {
			if werr := prometheus.WriteToTextfile(path, reg); werr != nil {
				logger.Named("metrics").Warn("textfile write failed", logger.String("path", path), logger.Err(werr))
			}
		}
	}()

	opID := uuid.NewString()
	ctx := logger.ToContext(cmd.Context(), logger.With(logger.OpID(opID), logger.Op(op)))
	log := logger.From(ctx)
	if g.dryRun {
		log.Warn("dry-run: nothing will be written to real databases")
	}

	if g.metaConfigPath != "" {
		nodes, err := app.LoadMetaNodes(g.metaConfigPath)
		if err != nil {
			return err
		}
		opts.MetaNodes = nodes
	}
	opts.DryRun = g.dryRun

	c, err := app.New(ctx, g.cfg, opts)
	if err != nil {
		log.Error("setup failed", logger.Err(err))
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			log.Warn("close failed", logger.Err(cerr))
		}
	}()

	if err := fn(ctx, c); err != nil {
		log.Error(op+" failed", logger.Err(err))
		return err
	}
	log.Info(op + " finished")
	return nil
}
