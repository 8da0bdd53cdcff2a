package api

import (
	"context"
	"edgetrade/conf"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/validator"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	// 引擎后台任务收尾的最长等待
	engineStopTimeout = 10 * time.Second
)

// Router 加载路由，使用侧提供接口，实现侧需要实现该接口
type Router interface {
	Load(engine *gin.Engine)
}

// Server 同时承载交易接口和引擎后台任务。
// 退出顺序：停止接收请求，停止引擎循环并关闭事件总线和 kafka，最后释放数据库等外部连接
type Server struct {
	config  *conf.Config
	app     *App
	stopped []func()
}

func NewServer(c *conf.Config, app *App) *Server {
	return &Server{config: c, app: app}
}

// OnStopped 引擎完全停止后按注册顺序执行
func (s *Server) OnStopped(fns ...func()) {
	s.stopped = append(s.stopped, fns...)
}

// ListenAndServe 监听配置端口，收到 SIGINT/SIGTERM 或 ctx 结束时退出
func (s *Server) ListenAndServe(ctx context.Context, rs ...Router) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ln, err := net.Listen("tcp", listenAddr(s.config.Listen))
	if err != nil {
		s.runStopped()
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln, rs...)
}

// Serve 在 ln 上提供接口并运行引擎，ctx 结束后依次收尾
func (s *Server) Serve(ctx context.Context, ln net.Listener, rs ...Router) error {
	// 设置gin启动模式，必须在创建gin实例之前
	gin.SetMode(s.config.Mode)
	g := gin.New()
	for _, r := range append(rs, s.app.Router) {
		r.Load(g)
	}
	validator.LazyInitGinValidator(s.config.Language)
	srv := &http.Server{Handler: g}

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		s.app.Run(engineCtx)
	}()

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", ln.Addr(), err)
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		logger.Infof("[Server] shutting down %s", ln.Addr())
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	grp.Go(func() error {
		if err := awaitReady(gctx, ln.Addr().String(), s.config.MaxPingCount); err != nil {
			return err
		}
		logger.Infof("[Server] ready on %s", ln.Addr())
		return nil
	})
	err := grp.Wait()

	cancelEngine()
	select {
	case <-engineDone:
		logger.Infof("[Server] engine stopped")
	case <-time.After(engineStopTimeout):
		logger.Warnf("[Server] engine did not stop within %s", engineStopTimeout)
	}
	s.runStopped()
	return err
}

func (s *Server) runStopped() {
	for _, f := range s.stopped {
		f()
	}
	s.stopped = nil
}

// listenAddr 兼容只写端口号的配置
func listenAddr(port string) string {
	if port != "" && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

// awaitReady 轮询 /ping 直到服务在线，maxCount 秒内无响应视为启动失败
func awaitReady(ctx context.Context, addr string, maxCount int) error {
	if maxCount <= 0 {
		maxCount = 1
	}
	url := fmt.Sprintf("http://%s/ping", addr)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for i := 1; ; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if i >= maxCount {
			return fmt.Errorf("server on %s not ready after %d attempts", addr, maxCount)
		}
		logger.Infof("[Server] waiting for %s, attempt %d/%d", addr, i, maxCount)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
