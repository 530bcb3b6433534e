// Package config 提供 ModelGate 的统一配置加载：
// 默认值、YAML 文件与 MODELGATE_* 环境变量三层覆盖，
// 外加文件变更监听以支持允许清单等配置的热更新。
package config
