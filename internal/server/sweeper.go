package server

import (
	"context"
	"sync"
	"time"

	"citylayers/internal/biz"
	"citylayers/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
)

var _ transport.Server = (*SessionSweeper)(nil)

// SessionSweeper 周期性删除过期会话，作为 kratos.Server 随应用启停。
type SessionSweeper struct {
	repo     biz.SessionRepo
	interval time.Duration
	log      *log.Helper

	once sync.Once
	stop chan struct{}
}

// NewSessionSweeper .
func NewSessionSweeper(repo biz.SessionRepo, c *conf.Pipeline, logger log.Logger) *SessionSweeper {
	return &SessionSweeper{
		repo:     repo,
		interval: c.SessionSweep.AsDuration(),
		log:      log.NewHelper(logger),
		stop:     make(chan struct{}),
	}
}

// Start 阻塞直到 Stop 或 ctx 结束。
func (s *SessionSweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		<-s.stop
		return nil
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-t.C:
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *SessionSweeper) Stop(context.Context) error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		s.log.WithContext(ctx).Errorf("sweep expired sessions: %v", err)
		return
	}
	if n > 0 {
		s.log.WithContext(ctx).Debugf("swept %d expired sessions", n)
	}
}
