package worker

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"modelkeeper/internal/config"
	"modelkeeper/internal/logger"
	"modelkeeper/internal/metrics"
	"modelkeeper/internal/service"
	"modelkeeper/internal/topology"
)

/**
 * NewAPIApp 构造API服务器worker的HTTP应用
 * @param {string} component - 组件名(含worker身份)
 * @param {*service.Descriptor} svc - 已加载的服务描述
 * @param {topology.RunnerAddressMap} runnerMap - runner地址表(开发模式为nil)
 * @param {bool} development - 开发模式，runner在进程内应答
 * @returns {*gin.Engine} 应用
 * @description
 * - /v1/runners 暴露runner地址表
 * - /v1/invoke/:runner 生产模式按地址表反向代理到runner worker，
 *   开发模式由进程内执行器直接应答
 */
func NewAPIApp(component string, svc *service.Descriptor, runnerMap topology.RunnerAddressMap, development bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	app := gin.New()
	app.Use(gin.Recovery())
	app.Use(metrics.Middleware(component))

	app.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "component": component})
	})
	app.GET("/readyz", func(c *gin.Context) {
		name, version := Service()
		c.JSON(http.StatusOK, gin.H{"service": name, "version": version})
	})
	app.GET("/metrics", gin.WrapH(metrics.Handler()))

	app.GET("/v1/runners", func(c *gin.Context) {
		if development {
			c.JSON(http.StatusOK, gin.H{"mode": "development", "runners": svc.RunnerNames()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mode": "production", "runners": runnerMap})
	})

	app.Any("/v1/invoke/:runner/*path", func(c *gin.Context) {
		runnerName := c.Param("runner")
		if development {
			invokeInProcess(c, svc, runnerName)
			return
		}
		address, ok := runnerMap[runnerName]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown runner " + runnerName})
			return
		}
		proxyToRunner(c, address)
	})

	return app
}

// invokeInProcess answers a runner call directly, the development-mode
// replacement for a remote runner worker.
func invokeInProcess(c *gin.Context, svc *service.Descriptor, runnerName string) {
	for _, r := range svc.Runners {
		if r.Name == runnerName {
			body, _ := io.ReadAll(c.Request.Body)
			c.JSON(http.StatusOK, gin.H{
				"runner":   runnerName,
				"worker":   Component(),
				"received": len(body),
			})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown runner " + runnerName})
}

/**
 * proxyToRunner 把请求按runner地址表转发给runner worker
 * @param {*gin.Context} c - 请求上下文
 * @param {string} address - "unix:///path.sock"或"tcp://host:port"
 * @description
 * - unix地址通过自定义DialContext走domain socket
 * - 转发路径为/v1/invoke/:runner之后的剩余路径
 */
func proxyToRunner(c *gin.Context, address string) {
	u, err := url.Parse(address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad runner address"})
		return
	}

	target := &url.URL{Scheme: "http", Host: u.Host}
	proxy := &httputil.ReverseProxy{}
	if u.Scheme == "unix" {
		socketPath := u.Path
		target = &url.URL{Scheme: "http", Host: "runner"}
		proxy.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
			},
		}
	}
	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = c.Param("path")
		if req.URL.Path == "" {
			req.URL.Path = "/call"
		}
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Errorf("Runner proxy to %s failed: %v", address, err)
		w.WriteHeader(http.StatusBadGateway)
	}
	proxy.ServeHTTP(c.Writer, c.Request)
}

/**
 * NewRunnerApp 构造runner worker的HTTP应用
 * @param {string} component - 组件名
 * @param {string} runnerName - runner名
 * @param {int} workerID - worker身份
 * @returns {*gin.Engine} 应用
 */
func NewRunnerApp(component, runnerName string, workerID int) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	app := gin.New()
	app.Use(gin.Recovery())
	app.Use(metrics.Middleware(component))

	app.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "runner": runnerName, "worker": workerID})
	})
	app.GET("/metrics", gin.WrapH(metrics.Handler()))
	app.POST("/call", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{
			"runner":   runnerName,
			"worker":   workerID,
			"received": len(body),
		})
	})
	return app
}

/**
 * Serve 在继承的监听器上提供HTTP服务
 * @param {context.Context} ctx - 取消上下文，取消时优雅停机
 * @param {net.Listener} ln - 从supervisor继承的已绑定监听器
 * @param {*gin.Engine} app - HTTP应用
 * @param {config.TLSOptions} tlsOpts - 转发的TLS参数，零值时明文服务
 * @returns {error} 服务异常退出时返回错误
 * @description
 * - 绝不自行bind，绑定已经在supervisor内完成
 */
func Serve(ctx context.Context, ln net.Listener, app *gin.Engine, tlsOpts config.TLSOptions) error {
	srv := &http.Server{Handler: app}

	tlsConfig, err := BuildTLSConfig(tlsOpts)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			srv.TLSConfig = tlsConfig
			errCh <- srv.ServeTLS(ln, "", "")
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
