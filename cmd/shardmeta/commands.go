package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/shardmeta/internal/app"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/observability/logger"
	"github.com/dropDatabas3/shardmeta/internal/topology"
	"github.com/dropDatabas3/shardmeta/internal/util"
)

// ─── bootstrap-meta ───

func newBootstrapMetaCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-meta",
		Short: "Crea el esquema de metadata y registra los nodos del cluster de metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, "bootstrap_meta", app.Options{CreateMetaDatabase: true}, func(ctx context.Context, c *app.Container) error {
				logger.SFrom(ctx).Infof("Step 1. Metadata primary is %s", c.Handle.MetaPrimary.Addr())
				logger.SFrom(ctx).Infof("Step 2. Applying metadata schema to %s", g.cfg.Meta.Database)
				res, err := c.BootstrapMeta(ctx)
				if err != nil {
					return err
				}
				if m := res.Migrations; m != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "migrations applied=%v skipped=%v\n", m.Applied, m.Skipped)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "meta nodes inserted=%d\n", res.Inserted)
				return nil
			})
		},
	}
}

// ─── create-cluster ───

func newCreateClusterCmd(g *globals) *cobra.Command {
	var (
		name, owner, business, haMode string
		shardsFile, compsFile         string
	)
	cmd := &cobra.Command{
		Use:   "create-cluster",
		Short: "Crea un cluster con sus nodos de cómputo y shards iniciales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := types.ParseHAMode(haMode)
			if !ok {
				return fmt.Errorf("--ha-mode %q is not one of mgr|replicated, no_rep|unreplicated, rbr|row-based-replication", haMode)
			}
			req := topology.CreateClusterRequest{
				Cluster: topology.ClusterSpec{Name: name, Owner: owner, Business: business, HAMode: mode},
			}
			var err error
			if shardsFile != "" {
				if req.Shards, err = app.LoadShardSpecs(shardsFile); err != nil {
					return err
				}
			}
			if compsFile != "" {
				if req.ComputeNodes, err = app.LoadComputeSpecs(compsFile); err != nil {
					return err
				}
			}

			return g.run(cmd, "create_cluster", app.Options{}, func(ctx context.Context, c *app.Container) error {
				c.SimulateShards(req.Shards)
				logger.SFrom(ctx).Infof("Creating cluster %s (%s) with %d compute node(s) and %d shard(s)",
					name, mode, len(req.ComputeNodes), len(req.Shards))
				res, err := c.Bootstrapper.CreateCluster(ctx, req)
				if res != nil {
					printCreation(cmd.OutOrStdout(), res)
				}
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "Nombre del cluster")
	f.StringVar(&owner, "owner", "abc", "Owner del cluster")
	f.StringVar(&business, "business", "", "Área de negocio")
	f.StringVar(&haMode, "ha-mode", string(types.HAModeReplicated), "Modo de replicación de los shards")
	f.StringVar(&shardsFile, "shards", "", "Archivo con la lista de shards iniciales")
	f.StringVar(&compsFile, "comps", "", "Archivo con la lista de nodos de cómputo iniciales")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// ─── add-shards ───

func newAddShardsCmd(g *globals) *cobra.Command {
	var (
		cluster, shardsFile string
		targets             []string
	)
	cmd := &cobra.Command{
		Use:   "add-shards",
		Short: "Registra shards en un cluster existente y los propaga a sus nodos de cómputo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := app.LoadShardSpecs(shardsFile)
			if err != nil {
				return err
			}
			specs, err := app.SelectShards(all, targets)
			if err != nil {
				return err
			}

			return g.run(cmd, "add_shards", app.Options{}, func(ctx context.Context, c *app.Container) error {
				cl, err := c.Cluster(ctx, cluster)
				if err != nil {
					return err
				}
				c.SimulateShards(specs)
				logger.SFrom(ctx).Infof("Registering %d shard(s) in cluster %s (verify=%t)", len(specs), cl.Name, cl.HAMode.Replicates())
				res, err := c.Registrar.RegisterShards(ctx, topology.RegisterShardsRequest{
					Cluster: cl,
					Shards:  specs,
					Verify:  cl.HAMode.Replicates(),
				})
				printShards(cmd.OutOrStdout(), res)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&cluster, "cluster", "", "Nombre del cluster")
	f.StringVar(&shardsFile, "shards", "", "Archivo con la lista de shards")
	f.StringSliceVar(&targets, "targets", nil, "Nombres de shards a registrar (default: todos los del archivo)")
	_ = cmd.MarkFlagRequired("cluster")
	_ = cmd.MarkFlagRequired("shards")
	return cmd
}

// ─── add-comp-nodes ───

func newAddCompNodesCmd(g *globals) *cobra.Command {
	var cluster, compsFile, targets string
	cmd := &cobra.Command{
		Use:   "add-comp-nodes",
		Short: "Registra nodos de cómputo en un cluster existente y siembra su catálogo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := app.LoadComputeSpecs(compsFile)
			if err != nil {
				return err
			}
			specs, err := app.SelectComputeNodes(all, targets)
			if err != nil {
				return err
			}

			return g.run(cmd, "add_comp_nodes", app.Options{}, func(ctx context.Context, c *app.Container) error {
				cl, err := c.Cluster(ctx, cluster)
				if err != nil {
					return err
				}
				logger.SFrom(ctx).Infof("Registering %d compute node(s) in cluster %s", len(specs), cl.Name)
				res, err := c.Registrar.RegisterComputeNodes(ctx, topology.RegisterComputeNodesRequest{
					Cluster:       cl,
					Nodes:         specs,
					WriteSequence: true,
				})
				printComputeNodes(cmd.OutOrStdout(), res)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&cluster, "cluster", "", "Nombre del cluster")
	f.StringVar(&compsFile, "comps", "", "Archivo con la lista de nodos de cómputo")
	f.StringVar(&targets, "targets", "all", `Ids a registrar: "all" o "1,2,3"`)
	_ = cmd.MarkFlagRequired("cluster")
	_ = cmd.MarkFlagRequired("comps")
	return cmd
}

// ─── add-comp-self ───

func newAddCompSelfCmd(g *globals) *cobra.Command {
	var (
		cluster, output string
		spec            topology.ComputeNodeSpec
	)
	cmd := &cobra.Command{
		Use:   "add-comp-self",
		Short: "Reserva un id y registra el nodo de cómputo local",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, "add_comp_self", app.Options{}, func(ctx context.Context, c *app.Container) error {
				cl, err := c.Cluster(ctx, cluster)
				if err != nil {
					return err
				}
				res, err := c.Registrar.RegisterSelf(ctx, cl, spec)
				printComputeNodes(cmd.OutOrStdout(), res)
				if res == nil || len(res.Nodes) == 0 {
					return err
				}

				if output != "" {
					self := res.Nodes[0]
					d := app.SelfDescriptor{
						Cluster:   cl.Name,
						ClusterID: cl.ID,
						ComputeNode: topology.ComputeNodeSpec{
							ID: self.ID, Name: self.Name, Host: self.Host, Port: self.Port,
							User: self.User, Password: self.Password, DataDir: self.DataDir,
						},
						MetaNodes: g.cfg.Meta.Nodes,
					}
					if werr := app.WriteSelfDescriptor(output, d); werr != nil {
						return errors.Join(err, werr)
					}
					logger.SFrom(ctx).Infof("Descriptor for %s written to %s", self.Name, output)
				}
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&cluster, "cluster", "", "Nombre del cluster")
	f.StringVar(&spec.Name, "name", "", `Nombre del nodo (default "comp<id>")`)
	f.StringVar(&spec.Host, "host", "", "Host o IP del nodo")
	f.IntVar(&spec.Port, "port", 5432, "Puerto del nodo")
	f.StringVar(&spec.User, "user", "abc", "Usuario del nodo")
	f.StringVar(&spec.Password, "password", "", "Password del nodo")
	f.StringVar(&spec.DataDir, "datadir", "", "Directorio de datos del nodo")
	f.StringVar(&output, "output", "", "Escribe el descriptor del nodo registrado en este archivo")
	_ = cmd.MarkFlagRequired("cluster")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

// ─── check-shards ───

func newCheckShardsCmd(g *globals) *cobra.Command {
	var shardsFile, haMode string
	cmd := &cobra.Command{
		Use:   "check-shards",
		Short: "Verifica el primario del cluster de metadata y de cada shard sin escribir nada",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := types.ParseHAMode(haMode)
			if !ok {
				return fmt.Errorf("--ha-mode %q is not valid", haMode)
			}
			specs, err := app.LoadShardSpecs(shardsFile)
			if err != nil {
				return err
			}

			return g.run(cmd, "check_shards", app.Options{}, func(ctx context.Context, c *app.Container) error {
				c.SimulateShards(specs)
				var errs []error
				for _, chk := range c.CheckPrimaries(ctx, mode, specs) {
					if chk.Err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%-24s ERROR %v\n", chk.ReplicaSet, chk.Err)
						errs = append(errs, chk.Err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-24s primary %s (user %s, password %s)\n",
						chk.ReplicaSet, chk.Primary.Addr(), chk.Primary.User, util.MaskSecret(chk.Primary.Password))
				}
				return errors.Join(errs...)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&shardsFile, "shards", "", "Archivo con la lista de shards")
	f.StringVar(&haMode, "ha-mode", string(types.HAModeReplicated), "Modo de replicación de los shards")
	_ = cmd.MarkFlagRequired("shards")
	return cmd
}

// ─── salida ───

func printCreation(w io.Writer, res *topology.ClusterCreation) {
	fmt.Fprintf(w, "cluster %s id=%d ha_mode=%s\n", res.Cluster.Name, res.Cluster.ID, res.Cluster.HAMode)
	printComputeNodes(w, res.ComputeNodes)
	printShards(w, res.Shards)
}

func printShards(w io.Writer, res *topology.ShardRegistration) {
	if res == nil {
		return
	}
	for _, s := range res.Shards {
		fmt.Fprintf(w, "shard %s id=%d num_nodes=%d master_node_id=%d\n", s.Name, s.ID, s.NumNodes, s.MasterNodeID)
	}
	printPropagation(w, res.Propagation)
}

func printComputeNodes(w io.Writer, res *topology.ComputeRegistration) {
	if res == nil {
		return
	}
	existing := make(map[int64]bool, len(res.Existing))
	for _, id := range res.Existing {
		existing[id] = true
	}
	for _, n := range res.Nodes {
		state := "registered"
		if existing[n.ID] {
			state = "already registered"
		}
		fmt.Fprintf(w, "compute node %s id=%d %s (%s)\n", n.Name, n.ID, n.Addr(), state)
	}
	printPropagation(w, res.Propagation)
}

func printPropagation(w io.Writer, r *topology.PropagationReport) {
	if r == nil || len(r.Outcomes) == 0 {
		return
	}
	ok := r.Succeeded()
	ids := make([]string, 0, len(ok))
	for _, id := range ok {
		ids = append(ids, fmt.Sprint(id))
	}
	fmt.Fprintf(w, "propagation: %d/%d node(s) converged [%s]\n", len(ok), len(r.Outcomes), strings.Join(ids, ","))
	failed := r.Failed()
	fids := make([]int64, 0, len(failed))
	for id := range failed {
		fids = append(fids, id)
	}
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })
	for _, id := range fids {
		fmt.Fprintf(w, "propagation: node %d failed after %d attempt(s): %v\n", id, r.Outcomes[id].Attempts, failed[id])
	}
}
