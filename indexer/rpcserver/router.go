package rpcserver

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/sat20-labs/cohortd/indexer/common"
	cindexer "github.com/sat20-labs/cohortd/indexer/rpcserver/indexer"
	shareIndexer "github.com/sat20-labs/cohortd/indexer/share/indexer"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	STRICT_TRANSPORT_SECURITY   = "strict-transport-security"
	CONTENT_SECURITY_POLICY     = "content-security-policy"
	VARY                        = "vary"
	ACCESS_CONTROL_ALLOW_ORIGIN = "access-control-allow-origin"
)

type Rpc struct {
	indexerService *cindexer.Service
}

func NewRpc(idx shareIndexer.Indexer) *Rpc {
	return &Rpc{
		indexerService: cindexer.NewService(idx),
	}
}

func (s *Rpc) Start(rpcUrl, rpcProxy, rpcLogFile string) error {
	var writers []io.Writer
	if rpcLogFile != "" {
		exePath, _ := os.Executable()
		executableName := filepath.Base(exePath)
		if strings.Contains(executableName, "debug") {
			executableName = "debug"
		}
		executableName += ".rpc"
		fileHook, err := rotatelogs.New(
			rpcLogFile+"/"+executableName+".%Y%m%d%H%M.log",
			rotatelogs.WithLinkName(rpcLogFile+"/"+executableName+".log"),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return fmt.Errorf("failed to create RotateFile hook, error %s", err)
		}
		writers = append(writers, fileHook)
	}
	writers = append(writers, os.Stdout)
	r := s.newEngine(rpcProxy, io.MultiWriter(writers...))

	parts := strings.Split(rpcUrl, ":")
	var port string
	if len(parts) < 2 || parts[len(parts)-1] == "" {
		rpcUrl = strings.TrimSuffix(rpcUrl, ":") + ":8005"
		port = "8005"
	} else {
		port = parts[len(parts)-1]
	}

	// 先检查端口
	if err := checkPort(port); err != nil {
		return err
	}

	go func() {
		if err := r.Run(rpcUrl); err != nil {
			common.Log.Errorf("rpc server on %s stopped: %v", rpcUrl, err)
		}
	}()
	common.Log.Infof("rpc server listening on %s%s", rpcUrl, rpcProxy)
	return nil
}

// newEngine builds the router. Access logs go to out through zerolog.
func (s *Rpc) newEngine(rpcProxy string, out io.Writer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = out
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.SetLogger(
		logger.WithWriter(out),
		logger.WithLogger(logger.Fn(func(c *gin.Context, l zerolog.Logger) zerolog.Logger {
			if c.Request.Header["Authorization"] == nil {
				return l
			}
			return l.With().
				Str("Authorization", c.Request.Header["Authorization"][0]).
				Logger()
		})),
	))

	// read only
	config := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	config.OptionsResponseStatusCode = 200
	r.Use(cors.New(config))

	// doc
	r.GET(rpcProxy+"/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// common header
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set(VARY, "Origin")
		c.Writer.Header().Add(VARY, "Access-Control-Request-Method")
		c.Writer.Header().Add(VARY, "Access-Control-Request-Headers")

		c.Writer.Header().Del(CONTENT_SECURITY_POLICY)
		c.Writer.Header().Set(
			CONTENT_SECURITY_POLICY,
			"default-src 'self'",
		)

		c.Writer.Header().Set(
			STRICT_TRANSPORT_SECURITY,
			"max-age=31536000; includeSubDomains; preload",
		)

		c.Writer.Header().Set(
			ACCESS_CONTROL_ALLOW_ORIGIN,
			"*",
		)

		c.Next()
	})

	// router
	s.indexerService.InitRouter(r, rpcProxy)
	return r
}

func checkPort(port string) error {
	// 方法1: 尝试监听该端口
	addr := fmt.Sprintf(":%s", port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %s is in use: %v", port, err)
	}
	l.Close()
	return nil
}
