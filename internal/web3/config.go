package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClusterDefinitions models the structure of configs/clusters.yaml.
type ClusterDefinitions struct {
	Default  string                       `yaml:"default"`
	Clusters map[string]ClusterDefinition `yaml:"clusters"`
}

// ClusterDefinition describes one ledger node.
type ClusterDefinition struct {
	RPCURL      string `yaml:"rpc_url"`
	WSURL       string `yaml:"ws_url"`
	ProgramID   string `yaml:"program_id"`
	Description string `yaml:"description"`
}

// LoadClusterDefinitions parses the YAML file containing cluster metadata.
// An empty path yields an empty set.
func LoadClusterDefinitions(path string) (ClusterDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ClusterDefinitions{Clusters: map[string]ClusterDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ClusterDefinitions{}, fmt.Errorf("读取集群配置失败: %w", err)
	}

	var defs ClusterDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ClusterDefinitions{}, fmt.Errorf("解析集群配置失败: %w", err)
	}
	if defs.Clusters == nil {
		defs.Clusters = map[string]ClusterDefinition{}
	}
	for name, def := range defs.Clusters {
		if strings.TrimSpace(def.RPCURL) == "" {
			return ClusterDefinitions{}, fmt.Errorf("集群 %s 缺少 rpc_url", name)
		}
	}
	if defs.Default != "" {
		if _, ok := defs.Clusters[defs.Default]; !ok {
			return ClusterDefinitions{}, fmt.Errorf("默认集群 %s 未定义", defs.Default)
		}
	}
	return defs, nil
}
