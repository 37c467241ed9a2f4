package topology

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/metrics"
	"github.com/dropDatabas3/shardmeta/internal/observability/logger"
)

// ─── RetryPolicy ───

const (
	DefaultMaxAttempts = 10
	DefaultBackoff     = 2 * time.Second
)

// RetryPolicy acota los intentos de propagación por nodo de cómputo.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Sleep espera entre intentos fallidos. Inyectable para tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy: 10 intentos, 2s entre intentos.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff, Sleep: SleepContext}
}

// SleepContext duerme d o hasta que ctx se cancele.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	return p
}

// ─── Payload ───

// IdentitySeed es la identidad de cluster que se siembra en un nodo de cómputo
// recién registrado: pg_cluster_meta, pg_cluster_meta_nodes y pg_ddl_log_progress.
type IdentitySeed struct {
	Cluster     repository.Cluster
	MetaNodes   []repository.MetaNode
	MetaPrimary repository.Endpoint
}

// CatalogPayload es lo que se replica a cada nodo objetivo.
type CatalogPayload struct {
	// Shards con sus nodos, tal como quedaron en el metadata store.
	Shards []repository.Shard
	// Identity es opcional; sólo se envía a nodos nuevos.
	Identity *IdentitySeed
}

func (p CatalogPayload) empty() bool {
	return len(p.Shards) == 0 && p.Identity == nil
}

// ─── Report ───

// NodeOutcome es el resultado de la propagación a un nodo.
type NodeOutcome struct {
	Node     repository.ComputeNode
	Attempts int
	// Err es el último error; nil si el nodo convergió.
	Err      error
	Duration time.Duration
}

// PropagationReport mapea id de nodo de cómputo a su resultado.
type PropagationReport struct {
	Outcomes map[int64]NodeOutcome
}

func newReport() *PropagationReport {
	return &PropagationReport{Outcomes: map[int64]NodeOutcome{}}
}

// Succeeded retorna los ids de los nodos que convergieron, ordenados.
func (r *PropagationReport) Succeeded() []int64 {
	if r == nil {
		return nil
	}
	var ids []int64
	for id, o := range r.Outcomes {
		if o.Err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Failed retorna, por nodo, el último error de los nodos que agotaron los intentos.
func (r *PropagationReport) Failed() map[int64]error {
	out := map[int64]error{}
	if r == nil {
		return out
	}
	for id, o := range r.Outcomes {
		if o.Err != nil {
			out[id] = o.Err
		}
	}
	return out
}

// Err retorna *PartialPropagationError si algún nodo falló, o nil.
func (r *PropagationReport) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &PartialPropagationError{Failures: failed}
}

// ─── Propagator ───

// Propagator replica el payload al catálogo de cada nodo de cómputo objetivo.
// Cada nodo tiene su propio ciclo de reintentos; un nodo caído no frena a los demás.
type Propagator struct {
	dialer      repository.CatalogDialer
	policy      RetryPolicy
	parallelism int
}

// NewPropagator crea un propagador. parallelism <= 0 corre todos los nodos a la vez.
func NewPropagator(dialer repository.CatalogDialer, policy RetryPolicy, parallelism int) *Propagator {
	return &Propagator{dialer: dialer, policy: policy.normalized(), parallelism: parallelism}
}

// Policy retorna la política efectiva.
func (p *Propagator) Policy() RetryPolicy { return p.policy }

// Propagate replica payload en targets. Nunca retorna error propio: las fallas
// por nodo quedan en el reporte (ver PropagationReport.Err).
func (p *Propagator) Propagate(ctx context.Context, targets []repository.ComputeNode, payload CatalogPayload) *PropagationReport {
	report := newReport()
	targets = uniqueNodes(targets)
	if len(targets) == 0 || payload.empty() {
		return report
	}

	outcomes := make([]NodeOutcome, len(targets))
	var g errgroup.Group
	if p.parallelism > 0 {
		g.SetLimit(p.parallelism)
	}
	for i, node := range targets {
		g.Go(func() error {
			outcomes[i] = p.propagateNode(ctx, node, payload)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		report.Outcomes[o.Node.ID] = o
	}
	return report
}

func (p *Propagator) propagateNode(ctx context.Context, node repository.ComputeNode, payload CatalogPayload) NodeOutcome {
	log := logger.From(ctx).With(logger.Component("propagator"), logger.NodeID(node.ID), logger.Addr(node.Addr()))
	start := time.Now()
	out := NodeOutcome{Node: node}

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		out.Attempts = attempt
		err := p.attempt(ctx, node, payload)
		if err == nil {
			out.Err = nil
			metrics.PropagationAttempts.WithLabelValues("success").Inc()
			break
		}
		out.Err = err
		metrics.PropagationAttempts.WithLabelValues("failure").Inc()
		log.Warn("catalog propagation attempt failed", logger.Attempt(attempt), logger.Err(err))

		if attempt == p.policy.MaxAttempts {
			break
		}
		if serr := p.policy.Sleep(ctx, p.policy.Backoff); serr != nil {
			out.Err = fmt.Errorf("propagation to node %d interrupted after %d attempts: %w", node.ID, attempt, errors.Join(err, serr))
			break
		}
	}

	out.Duration = time.Since(start)
	metrics.PropagationDuration.Observe(out.Duration.Seconds())
	if out.Err != nil {
		metrics.PropagationNodeFailures.Inc()
		log.Error("catalog propagation gave up", logger.Attempt(out.Attempts), logger.Duration(out.Duration), logger.Err(out.Err))
		return out
	}
	log.Info("catalog converged", logger.Attempt(out.Attempts), logger.Duration(out.Duration))
	return out
}

// attempt abre una sesión nueva, aplica el payload en una transacción local y cierra.
func (p *Propagator) attempt(ctx context.Context, node repository.ComputeNode, payload CatalogPayload) (err error) {
	sess, err := p.dialer.Dial(ctx, node)
	if err != nil {
		return &ConnectivityError{Addr: node.Addr(), Op: "connect", Err: err}
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			logger.From(ctx).Debug("catalog session close failed", logger.NodeID(node.ID), logger.Err(cerr))
		}
	}()

	tx, err := sess.Begin(ctx)
	if err != nil {
		return &ConnectivityError{Addr: node.Addr(), Op: "begin", Err: err}
	}
	if err := applyPayload(ctx, tx, node, payload); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	return nil
}

func applyPayload(ctx context.Context, tx repository.CatalogTx, node repository.ComputeNode, payload CatalogPayload) error {
	if payload.Identity != nil {
		if err := seedIdentity(ctx, tx, node, *payload.Identity); err != nil {
			return err
		}
	}

	if len(payload.Shards) > 0 {
		if err := applyShards(ctx, tx, payload.Shards); err != nil {
			return err
		}
	}

	if payload.Identity != nil {
		if err := tx.EnsureDDLLogProgress(ctx); err != nil {
			return fmt.Errorf("ensure ddl log progress: %w", err)
		}
	}
	return nil
}

func applyShards(ctx context.Context, tx repository.CatalogTx, shards []repository.Shard) error {
	shardIDs, err := tx.ShardIDs(ctx)
	if err != nil {
		return fmt.Errorf("read pg_shard: %w", err)
	}
	nodeIDs, err := tx.ShardNodeIDs(ctx)
	if err != nil {
		return fmt.Errorf("read pg_shard_node: %w", err)
	}

	counts := make(map[int64]int, len(shards))
	for _, shardID := range nodeIDs {
		counts[shardID]++
	}

	touched := make(map[int64]bool, len(shards))
	for _, s := range shards {
		if !shardIDs[s.ID] {
			replica := s
			replica.MasterNodeID = firstNodeID(s)
			replica.NumNodes = 0
			if err := tx.InsertShard(ctx, replica); err != nil {
				return fmt.Errorf("insert pg_shard %d: %w", s.ID, err)
			}
			touched[s.ID] = true
		}
		for _, n := range s.Nodes {
			if _, ok := nodeIDs[n.ID]; ok {
				continue
			}
			if err := tx.InsertShardNode(ctx, n); err != nil {
				return fmt.Errorf("insert pg_shard_node %d: %w", n.ID, err)
			}
			counts[s.ID]++
			touched[s.ID] = true
		}
	}

	for _, s := range shards {
		if !touched[s.ID] {
			continue
		}
		master := s.MasterNodeID
		if master == 0 {
			master = firstNodeID(s)
		}
		if err := tx.UpdateShard(ctx, s.ID, master, counts[s.ID]); err != nil {
			return fmt.Errorf("update pg_shard %d: %w", s.ID, err)
		}
	}
	return nil
}

func seedIdentity(ctx context.Context, tx repository.CatalogTx, node repository.ComputeNode, seed IdentitySeed) error {
	var masterID int64
	for _, mn := range seed.MetaNodes {
		if mn.Host == seed.MetaPrimary.Host && mn.Port == seed.MetaPrimary.Port {
			masterID = mn.ID
			break
		}
	}

	has, err := tx.HasClusterMeta(ctx, node.ID)
	if err != nil {
		return fmt.Errorf("read pg_cluster_meta: %w", err)
	}
	if !has {
		err := tx.InsertClusterMeta(ctx, repository.ClusterMeta{
			CompNodeID:      node.ID,
			CompNodeName:    node.Name,
			ClusterID:       seed.Cluster.ID,
			ClusterName:     seed.Cluster.Name,
			ClusterMasterID: masterID,
			HAMode:          seed.Cluster.HAMode,
		})
		if err != nil {
			return fmt.Errorf("insert pg_cluster_meta: %w", err)
		}
	}

	existing, err := tx.MetaNodeIDs(ctx)
	if err != nil {
		return fmt.Errorf("read pg_cluster_meta_nodes: %w", err)
	}
	for _, mn := range seed.MetaNodes {
		if existing[mn.ID] {
			continue
		}
		if err := tx.InsertMetaNode(ctx, seed.Cluster.ID, mn, mn.ID == masterID); err != nil {
			return fmt.Errorf("insert pg_cluster_meta_nodes %d: %w", mn.ID, err)
		}
	}
	if masterID != 0 {
		if err := tx.SetClusterMaster(ctx, seed.Cluster.Name, masterID); err != nil {
			return fmt.Errorf("update cluster master: %w", err)
		}
	}
	return nil
}

func firstNodeID(s repository.Shard) int64 {
	if len(s.Nodes) == 0 {
		return 0
	}
	return s.Nodes[0].ID
}

func uniqueNodes(nodes []repository.ComputeNode) []repository.ComputeNode {
	seen := make(map[int64]bool, len(nodes))
	out := make([]repository.ComputeNode, 0, len(nodes))
	for _, n := range nodes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

// LogReport resume un reporte en el logger del contexto.
func LogReport(ctx context.Context, op string, r *PropagationReport) {
	if r == nil || len(r.Outcomes) == 0 {
		return
	}
	failed := r.Failed()
	fields := []zap.Field{
		logger.Op(op),
		logger.Count(len(r.Outcomes)),
		zap.Int64s("succeeded", r.Succeeded()),
	}
	if len(failed) == 0 {
		logger.From(ctx).Info("propagation finished", fields...)
		return
	}
	logger.From(ctx).Warn("propagation finished with failures", append(fields, logger.Err(r.Err()))...)
}
