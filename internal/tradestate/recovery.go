package tradestate

import (
	"context"
	"time"

	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// 中文说明：冷却恢复后台任务。周期性扫描冷却到期的
// INVALIDATED_RESET 记录写回 WAITING。读路径上另有懒恢复兜底，
// 进程重启丢失定时器也不会让状态卡死。

type ResetSweeper struct {
	Store    Store
	Machine  *Machine
	Interval time.Duration
	NowFn    func() time.Time
}

func NewResetSweeper(store Store, machine *Machine, interval time.Duration) *ResetSweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &ResetSweeper{Store: store, Machine: machine, Interval: interval}
}

func (s *ResetSweeper) now() time.Time {
	if s.NowFn != nil {
		return s.NowFn()
	}
	return time.Now()
}

func (s *ResetSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	logger.Infof("冷却恢复任务启动 interval=%s", s.Interval)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("冷却恢复任务退出")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ResetSweeper) sweep(ctx context.Context) {
	due, err := s.Store.ListResetDue(ctx, s.now())
	if err != nil {
		logger.Warnf("扫描冷却到期状态失败: %v", err)
		return
	}
	for i := range due {
		rec := due[i]
		if !s.Machine.RecoverIfDue(&rec) {
			continue
		}
		if err := s.Store.UpsertTradingState(ctx, rec); err != nil {
			logger.Warnf("冷却恢复写回失败 conversation=%s symbol=%s timeframe=%s: %v",
				rec.ConversationID, rec.Symbol, rec.Timeframe, err)
			continue
		}
		logger.Infof("冷却恢复 %s/%s/%s -> %s", rec.ConversationID, rec.Symbol, rec.Timeframe, rec.State)
	}
}
