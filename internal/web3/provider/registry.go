// Package provider resolves which ledger cluster the relay talks to and
// dials fresh clients for it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"LLM-Oracle-Chain/internal/config"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/web3"
	"LLM-Oracle-Chain/internal/web3/ledgerrpc"
)

// Cluster is a resolved endpoint set.
type Cluster struct {
	Name      string
	RPCURL    string
	WSURL     string
	ProgramID ledger.Pubkey
}

// Registry manages a set of clusters keyed by human readable names.
type Registry struct {
	defaultCluster string
	clusters       map[string]Cluster
}

// NewRegistry loads cluster definitions. Endpoints given directly in the
// configuration (or via RPC_URL / WEBSOCKET_URL) override the default cluster.
func NewRegistry(cfg config.Web3Config, fallbackProgram ledger.Pubkey) (*Registry, error) {
	defs, err := web3.LoadClusterDefinitions(cfg.ClusterConfig)
	if err != nil {
		return nil, err
	}

	clusters := make(map[string]Cluster, len(defs.Clusters)+1)
	for name, def := range defs.Clusters {
		programID := fallbackProgram
		if strings.TrimSpace(def.ProgramID) != "" {
			programID, err = ledger.ParsePubkey(def.ProgramID)
			if err != nil {
				return nil, fmt.Errorf("集群 %s 的程序地址无效: %w", name, err)
			}
		}
		clusters[name] = Cluster{Name: name, RPCURL: def.RPCURL, WSURL: def.WSURL, ProgramID: programID}
	}

	defaultCluster := cfg.DefaultCluster
	if defaultCluster == "" {
		defaultCluster = defs.Default
	}
	if len(clusters) == 0 {
		if strings.TrimSpace(cfg.RPCURL) == "" {
			return nil, errors.New("未配置任何账本 RPC 端点")
		}
		defaultCluster = "default"
		clusters[defaultCluster] = Cluster{Name: defaultCluster, ProgramID: fallbackProgram}
	}
	if defaultCluster == "" {
		names := make([]string, 0, len(clusters))
		for name := range clusters {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultCluster = names[0]
	}
	def, ok := clusters[defaultCluster]
	if !ok {
		return nil, fmt.Errorf("默认集群 %s 未在配置中找到", defaultCluster)
	}
	if cfg.RPCURL != "" {
		def.RPCURL = cfg.RPCURL
	}
	if cfg.WSURL != "" {
		def.WSURL = cfg.WSURL
	}
	clusters[defaultCluster] = def

	return &Registry{defaultCluster: defaultCluster, clusters: clusters}, nil
}

// Default returns the cluster the relay should use.
func (r *Registry) Default() Cluster {
	return r.clusters[r.defaultCluster]
}

// Cluster returns the cluster identified by name.
func (r *Registry) Cluster(name string) (Cluster, bool) {
	if r == nil {
		return Cluster{}, false
	}
	c, ok := r.clusters[name]
	return c, ok
}

// Clusters returns the registered cluster names.
func (r *Registry) Clusters() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clusters))
	for name := range r.clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dial opens a new client to the default cluster. Each relay cycle dials
// afresh so a dropped connection is replaced on restart.
func (r *Registry) Dial(ctx context.Context) (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的集群注册表")
	}
	c := r.Default()
	return ledgerrpc.Dial(ctx, ledgerrpc.Config{Name: c.Name, RPCURL: c.RPCURL, WSURL: c.WSURL})
}
