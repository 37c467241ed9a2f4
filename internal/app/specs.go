package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/shardmeta/internal/config"
	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/topology"
	"github.com/dropDatabas3/shardmeta/internal/util/atomicwrite"
)

// Los archivos de entrada son listas YAML. JSON también es YAML válido, así
// que los descriptores JSON existentes se leen sin convertir.

func loadList[T any](path, what string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s file: %w", what, err)
	}
	var out []T
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse %s file %s: %w", what, path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s file %s is empty", what, path)
	}
	return out, nil
}

// LoadShardSpecs lee [{shard_name, shard_nodes: [...]}].
func LoadShardSpecs(path string) ([]topology.ShardSpec, error) {
	return loadList[topology.ShardSpec](path, "shards")
}

// LoadComputeSpecs lee [{id, name, host|ip, port, user, password, datadir}].
func LoadComputeSpecs(path string) ([]topology.ComputeNodeSpec, error) {
	return loadList[topology.ComputeNodeSpec](path, "compute nodes")
}

// LoadMetaNodes lee [{host|ip, port, user, password}].
func LoadMetaNodes(path string) ([]config.Node, error) {
	return loadList[config.Node](path, "metadata nodes")
}

// MetaMembers convierte los nodos de metadata en miembros de replica-set.
func MetaMembers(nodes []config.Node) []repository.Member {
	out := make([]repository.Member, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, repository.Member{
			Host:     n.HostAddr(),
			Port:     n.Port,
			User:     n.User,
			Password: n.Password,
			Primary:  n.IsPrimary,
		})
	}
	return out
}

// ─── --targets ───

// SelectShards filtra por nombre. Sin targets retorna todos; un nombre
// desconocido es error.
func SelectShards(specs []topology.ShardSpec, targets []string) ([]topology.ShardSpec, error) {
	if len(targets) == 0 {
		return specs, nil
	}
	byName := make(map[string]topology.ShardSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	out := make([]topology.ShardSpec, 0, len(targets))
	for _, t := range targets {
		s, ok := byName[strings.TrimSpace(t)]
		if !ok {
			return nil, fmt.Errorf("target shard %q is not in the shards file", t)
		}
		out = append(out, s)
	}
	return out, nil
}

// SelectComputeNodes filtra por id. targets es "all" (o vacío) o "1,2,3".
func SelectComputeNodes(specs []topology.ComputeNodeSpec, targets string) ([]topology.ComputeNodeSpec, error) {
	targets = strings.TrimSpace(targets)
	if targets == "" || strings.EqualFold(targets, "all") {
		return specs, nil
	}
	byID := make(map[int64]topology.ComputeNodeSpec, len(specs))
	for _, s := range specs {
		byID[s.ID] = s
	}
	var out []topology.ComputeNodeSpec
	for _, part := range strings.Split(targets, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("target %q is not a compute node id", part)
		}
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("target compute node %d is not in the compute nodes file", id)
		}
		out = append(out, s)
	}
	return out, nil
}

// ─── add-comp-self ───

// SelfDescriptor es lo que add-comp-self deja escrito para el nodo que se registró.
type SelfDescriptor struct {
	Cluster     string                   `yaml:"cluster"`
	ClusterID   int64                    `yaml:"cluster_id"`
	ComputeNode topology.ComputeNodeSpec `yaml:"compute_node"`
	MetaNodes   []config.Node            `yaml:"meta_nodes"`
}

// WriteSelfDescriptor escribe el descriptor de forma atómica con permisos 0600.
func WriteSelfDescriptor(path string, d SelfDescriptor) error {
	return atomicwrite.YAML(path, d, 0o600)
}
