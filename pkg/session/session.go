// pkg/session/session.go
// Package session drives one SQL statement at a time against the shared
// pager and catalog, serializing statements behind a single exclusive
// lock per spec §5 and classifying every failure into a canonical kind
// at this boundary, per spec §7.
package session

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"lunaris/pkg/catalog"
	"lunaris/pkg/compiler"
	"lunaris/pkg/lunaris"
	"lunaris/pkg/pager"
	"lunaris/pkg/sql/parser"
	"lunaris/pkg/vm"

	"lunaris/pkg/logging"
)

// Server owns the single pager and catalog shared by every connection.
// Statement execution is serialized by mu: spec §5 requires one exclusive
// lock guarding both the pager and the catalog, held for a statement's
// entire duration, with suspension points only between statements.
type Server struct {
	mu      sync.Mutex
	pager   *pager.Pager
	catalog *catalog.Catalog
	logger  *slog.Logger

	// corrupted marks the database read-only for this server process,
	// per spec §7: InternalCorruption is fatal to the connection that
	// triggered it, and additionally poisons every later statement on
	// any connection that would mutate data.
	corrupted bool

	nextSessionID uint64
}

// Open opens (or creates) the database file at path and wraps it in a
// Server ready to accept sessions.
func Open(path string, logger *slog.Logger) (*Server, error) {
	p, err := pager.Open(path)
	if err != nil {
		return nil, err
	}

	var cat *catalog.Catalog
	if p.CatalogRoot() == 0 {
		cat, err = catalog.Create(p)
	} else {
		cat = catalog.Open(p)
	}
	if err != nil {
		p.Close()
		return nil, err
	}

	return &Server{pager: p, catalog: cat, logger: logger}, nil
}

// Close flushes and closes the underlying database file.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pager.Flush(); err != nil {
		s.pager.Close()
		return err
	}
	return s.pager.Close()
}

// Session is one client connection's view of the Server. It carries no
// state of its own beyond an identifier for logging: every statement is
// independent, per spec §5 (no implicit transactions spanning
// statements).
type Session struct {
	id     string
	server *Server
	logger *slog.Logger
}

// NewSession mints a Session with a fresh connection identifier: a
// process-local, monotonically increasing counter, in the same style as
// the teacher's own id generators (e.g. pkg/mvcc/manager.go's
// atomic.AddUint64-based transaction ids).
func (s *Server) NewSession() *Session {
	n := atomic.AddUint64(&s.nextSessionID, 1)
	id := strconv.FormatUint(n, 10)
	return &Session{id: id, server: s, logger: logging.Conn(s.logger, id)}
}

// ID returns the session's connection identifier.
func (sess *Session) ID() string {
	return sess.id
}

// Logger returns the session's connection-scoped logger.
func (sess *Session) Logger() *slog.Logger {
	return sess.logger
}

// Execute runs one SQL statement to completion and returns its result,
// or a classified *lunaris.Error. The caller (pkg/wire's session loop in
// cmd/lunarisd) should close the connection whenever the returned error's
// Kind.Fatal() is true.
func (sess *Session) Execute(sql string) (*vm.Result, *lunaris.Error) {
	stmt, err := parser.New(sql).Parse()
	if err != nil {
		return nil, lunaris.New(lunaris.KindParse, "%v", err)
	}

	srv := sess.server
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if ct, ok := stmt.(*parser.CreateTableStmt); ok {
		if srv.corrupted {
			return nil, lunaris.New(lunaris.KindInternalCorruption, "database is read-only after a prior internal corruption")
		}
		return sess.executeCreateTable(ct)
	}

	if srv.corrupted {
		if isMutating(stmt) {
			return nil, lunaris.New(lunaris.KindInternalCorruption, "database is read-only after a prior internal corruption")
		}
	}

	prog, err := compiler.NewCompiler(srv.catalog).Compile(stmt)
	if err != nil {
		return nil, sess.classify(err)
	}

	res, err := vm.NewVM(prog, srv.pager, srv.catalog).Run()
	if err != nil {
		return nil, sess.classify(err)
	}

	if isMutating(stmt) {
		if err := srv.pager.Flush(); err != nil {
			return nil, sess.classify(err)
		}
	}

	return res, nil
}

func (sess *Session) executeCreateTable(ct *parser.CreateTableStmt) (*vm.Result, *lunaris.Error) {
	srv := sess.server
	schema, err := compiler.BuildSchema(ct)
	if err != nil {
		return nil, lunaris.New(lunaris.KindParse, "%v", err)
	}
	if _, err := srv.catalog.CreateTable(ct.TableName, schema); err != nil {
		return nil, sess.classify(err)
	}
	if err := srv.pager.Flush(); err != nil {
		return nil, sess.classify(err)
	}
	return &vm.Result{Kind: vm.KindRowCount, RowCount: 0}, nil
}

// classify converts err into a canonical *lunaris.Error and, if it is
// fatal, poisons the server so later mutating statements on any
// connection are refused rather than risking further damage.
func (sess *Session) classify(err error) *lunaris.Error {
	classified := lunaris.Classify(err)
	if classified.Kind.Fatal() {
		sess.server.corrupted = true
		sess.logger.Error("internal corruption detected, database marked read-only", "err", classified.Message)
	}
	return classified
}

func isMutating(stmt parser.Statement) bool {
	switch stmt.(type) {
	case *parser.CreateTableStmt, *parser.InsertStmt, *parser.DeleteStmt:
		return true
	default:
		return false
	}
}
