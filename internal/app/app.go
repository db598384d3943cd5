package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	brcfg "github.com/m3n89t-max/-chatbot/internal/config"
	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/market"
	"github.com/m3n89t-max/-chatbot/internal/monitor"
	"github.com/m3n89t-max/-chatbot/internal/store/decisionlog"
	"github.com/m3n89t-max/-chatbot/internal/store/gormstore"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
	httpapi "github.com/m3n89t-max/-chatbot/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务、
// 失效监控与冷却恢复任务。
type App struct {
	cfg     *brcfg.Config
	store   *gormstore.GormStore
	cycles  *decisionlog.CycleLogStore
	source  market.Source
	engine  *decision.Engine
	monitor *monitor.Monitor
	sweeper *tradestate.ResetSweeper
	httpSrv *httpapi.Server
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动全部后台任务，阻塞到 ctx 取消或任一任务出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	if a.monitor != nil {
		group.Go(func() error {
			return a.monitor.Run(ctx)
		})
	}
	if a.sweeper != nil {
		group.Go(func() error {
			if err := a.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return group.Wait()
}

// Close 释放存储与行情连接，重复调用无害。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cycles != nil {
		if err := a.cycles.Close(); err != nil {
			logger.Warnf("关闭审计存储失败: %v", err)
		}
		a.cycles = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭主存储失败: %v", err)
		}
		a.store = nil
	}
	if a.source != nil {
		_ = a.source.Close()
		a.source = nil
	}
}

// Engine 暴露决策引擎实例（回放与联调用）。
func (a *App) Engine() *decision.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}
