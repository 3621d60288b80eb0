// Package config 负责加载预言机守护进程与本地账本节点的配置：
// JSON 配置文件、.env 文件与环境变量覆盖，最后补齐默认值。
package config
