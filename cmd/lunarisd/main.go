// cmd/lunarisd/main.go
//
// lunarisd is the lunaris database server: it listens on a TCP port and
// serves SQL statements framed per pkg/wire, against a single on-disk
// database file.
//
// Usage:
//
//	lunarisd
//
// Configuration is read from the environment; see pkg/config.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"lunaris/pkg/config"
	"lunaris/pkg/logging"
	"lunaris/pkg/session"
	"lunaris/pkg/vm"
	"lunaris/pkg/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := logging.New(os.Stderr, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("loading configuration", "err", err)
		return 1
	}
	if err := cfg.EnsureDataDir(); err != nil {
		logger.Error("creating data directory", "dir", cfg.DataDir, "err", err)
		return 1
	}

	srv, err := session.Open(cfg.DatabasePath(), logger)
	if err != nil {
		logger.Error("opening database", "path", cfg.DatabasePath(), "err", err)
		return 1
	}
	defer srv.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("binding listener", "addr", addr, "err", err)
		return 1
	}
	logger.Info("listening", "addr", addr, "database", cfg.DatabasePath())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return 0
			}
			logger.Error("accept", "err", err)
			continue
		}
		go serveConn(srv, conn)
	}
}

func serveConn(srv *session.Server, conn net.Conn) {
	defer conn.Close()
	sess := srv.NewSession()
	sess.Logger().Info("connection opened", "remote", conn.RemoteAddr())

	for {
		sql, err := wire.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				sess.Logger().Warn("reading request", "err", err)
			}
			return
		}

		res, sessErr := sess.Execute(sql)
		if sessErr != nil {
			if err := wire.WriteErrorResponse(conn, sessErr.Code(), sessErr.Message); err != nil {
				sess.Logger().Warn("writing error response", "err", err)
				return
			}
			if sessErr.Kind.Fatal() {
				sess.Logger().Error("closing connection after fatal error", "kind", sessErr.Kind)
				return
			}
			continue
		}

		if err := writeResult(conn, res); err != nil {
			sess.Logger().Warn("writing response", "err", err)
			return
		}
	}
}

func writeResult(conn net.Conn, res *vm.Result) error {
	if res.Kind == vm.KindRows {
		return wire.WriteRowsResponse(conn, res.ColumnNames, res.Rows)
	}
	return wire.WriteCountResponse(conn, res.RowCount)
}
