// Package factory 将配置装配为可用的 Provider 注册中心，
// 打破 llm 包与各 provider 子包之间的循环依赖。
package factory
