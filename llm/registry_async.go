package llm

import (
	"context"
	"sync"

	"github.com/BaSui01/modelgate/internal/gate"
	"github.com/BaSui01/modelgate/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AsyncRegistry 在 Registry 之上提供并发感知的调度：
// 单请求走共享并发门，批量请求按提供商分组调度并保序重组，
// 关闭时并发清理所有已初始化的提供商。
type AsyncRegistry struct {
	*Registry

	gates     *gate.Registry
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewAsyncRegistry 创建并发注册中心。collector 可以为 nil。
func NewAsyncRegistry(reg *Registry, gates *gate.Registry, collector *metrics.Collector, logger *zap.Logger) *AsyncRegistry {
	if gates == nil {
		gates = gate.NewRegistry(gate.DefaultLimit, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncRegistry{
		Registry:  reg,
		gates:     gates,
		collector: collector,
		logger:    logger,
	}
}

// Gates 返回共享并发门注册表。
func (ar *AsyncRegistry) Gates() *gate.Registry { return ar.gates }

// GenerateContent 解析模型并经共享并发门发起一次生成调用。
// 单请求路径的失败直接向调用方传播 —— 与批量路径的
// "单项失败不影响兄弟项" 语义刻意不同，两者暴露在不同的 API 层。
func (ar *AsyncRegistry) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	p, err := ar.GetProviderForModel(req.Model)
	if err != nil {
		return nil, err
	}
	return ar.generateGated(ctx, p, ar.gates.For(p.Type().String()), req)
}

// generateGated 在并发门许可内执行一次生成调用。
// 许可在包括取消在内的所有退出路径上都会释放。
func (ar *AsyncRegistry) generateGated(ctx context.Context, p ModelProvider, g *gate.Gate, req *GenerateRequest) (*GenerateResponse, error) {
	release, err := g.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	backend := p.Type().String()
	if ar.collector != nil {
		ar.collector.GateAcquired(backend)
		defer ar.collector.GateReleased(backend)
	}

	return p.GenerateContent(ctx, req)
}

// BatchOptions 配置一次批量调度。
type BatchOptions struct {
	// Concurrency > 0 时为本批次创建独立的并发门；
	// 否则复用各提供商的共享门。
	Concurrency int
}

// BatchResult 是批量调度中单项的结果。
// Response 与 Err 恰有一个非 nil。
type BatchResult struct {
	Index     int               `json:"index"`
	RequestID string            `json:"request_id"`
	Response  *GenerateResponse `json:"response,omitempty"`
	Err       error             `json:"-"`
}

// BatchGenerateContent 调度一批异构请求：
// 按解析出的提供商分组以最大化连接复用，各组经自己的并发门并行执行，
// 结果按原始请求下标重组，乱序完成不影响顺序保证。
// 单项失败只记录在该项的结果里，不会取消兄弟项。
func (ar *AsyncRegistry) BatchGenerateContent(ctx context.Context, reqs []*GenerateRequest, opts *BatchOptions) []BatchResult {
	results := make([]BatchResult, len(reqs))

	// 本批次私有门（可选）
	var batchGate *gate.Gate
	if opts != nil && opts.Concurrency > 0 {
		batchGate = gate.New(opts.Concurrency)
	}

	// 按提供商分组，解析失败的项立即落结果
	groups := make(map[ProviderType][]int)
	providers := make(map[ProviderType]ModelProvider)
	for i, req := range reqs {
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		results[i] = BatchResult{Index: i, RequestID: req.RequestID}

		p, err := ar.GetProviderForModel(req.Model)
		if err != nil {
			results[i].Err = err
			continue
		}
		t := p.Type()
		providers[t] = p
		groups[t] = append(groups[t], i)
	}

	// 各提供商的子批次并行执行；goroutine 只写自己的下标槽位
	var wg sync.WaitGroup
	for t, indices := range groups {
		p := providers[t]
		g := batchGate
		if g == nil {
			g = ar.gates.For(t.String())
		}

		for _, i := range indices {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, err := ar.generateGated(ctx, p, g, reqs[i])
				if err != nil {
					results[i].Err = err
					return
				}
				results[i].Response = resp
			}(i)
		}
	}
	wg.Wait()

	return results
}

// Shutdown 并发关闭所有已初始化的提供商。
// 单个提供商关闭失败不会阻塞其他提供商的清理；
// 返回遇到的第一个错误。
func (ar *AsyncRegistry) Shutdown(ctx context.Context) error {
	ar.Registry.mu.Lock()
	instances := make(map[ProviderType]ModelProvider, len(ar.Registry.instances))
	for t, p := range ar.Registry.instances {
		instances[t] = p
	}
	ar.Registry.instances = make(map[ProviderType]ModelProvider)
	ar.Registry.mu.Unlock()

	var g errgroup.Group
	for t, p := range instances {
		t, p := t, p
		g.Go(func() error {
			if err := p.Close(); err != nil {
				ar.logger.Warn("provider close failed during shutdown",
					zap.String("provider", t.String()), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
