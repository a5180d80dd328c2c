// ABOUTME: Line-framed socket server exposing the table operation surface
// ABOUTME: One connection per client; one goroutine per connection

package socket

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/nainya/pagestore/internal/logger"
	"github.com/nainya/pagestore/internal/metrics"
	"github.com/nainya/pagestore/pkg/database"
	"github.com/nainya/pagestore/pkg/errs"
	"github.com/nainya/pagestore/pkg/schema"
	"github.com/nainya/pagestore/pkg/table"
)

// Server wraps a database.Database behind a newline-delimited JSON
// request/response protocol: one request object per line in, one
// response object per line out, one goroutine per connection.
type Server struct {
	db *database.Database

	mu       sync.Mutex
	opCounts map[string]int64

	startTime time.Time
	log       *logger.Logger
	metrics   *metrics.Metrics

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer wraps an already-connected Database.
func NewServer(db *database.Database, log *logger.Logger, m *metrics.Metrics) *Server {
	return &Server{
		db:        db,
		opCounts:  make(map[string]int64),
		startTime: time.Now(),
		log:       log,
		metrics:   m,
	}
}

// Serve accepts connections on lis until Close is called. Each connection
// is handled by its own goroutine; Serve itself blocks until the listener
// is closed.
func (s *Server) Serve(lis net.Listener) error {
	s.listener = lis
	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections, waits for in-flight ones to
// finish, and closes every open table in the wrapped Database.
func (s *Server) Close() error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	return s.db.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.dispatch(line)
		if err := writeLine(writer, resp); err != nil {
			return
		}
	}
}

func writeLine(w *bufio.Writer, resp Response) error {
	enc, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := w.Write(enc); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) dispatch(line []byte) Response {
	start := time.Now()
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(errs.New(errs.InvalidRecord, "socket.dispatch"))
	}

	s.mu.Lock()
	s.opCounts[req.Op]++
	s.mu.Unlock()

	resp := s.handle(req)

	duration := time.Since(start)
	status := "ok"
	if !resp.OK {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordSocketRequest(req.Op, status, duration)
	}
	if s.log != nil {
		var logErr error
		if !resp.OK {
			logErr = errors.New(resp.Error)
		}
		s.log.SocketLogger(req.Op).LogSocketRequest(req.Op, duration, logErr)
	}
	return resp
}

func (s *Server) handle(req Request) Response {
	switch req.Op {
	case "create_table":
		return s.createTable(req)
	case "open_table":
		return s.openTable(req)
	case "drop_table":
		return s.dropTable(req)
	case "list_tables":
		return s.listTables()
	case "insert":
		return s.insert(req)
	case "lookup":
		return s.lookup(req)
	case "range":
		return s.rangeRead(req)
	case "scan":
		return s.scan(req)
	case "update":
		return s.update(req)
	case "delete":
		return s.delete(req)
	case "count":
		return s.count(req)
	case "close_table":
		return s.closeTable(req)
	default:
		return errorResponse(errs.New(errs.InvalidRecord, "socket.dispatch: unknown op "+req.Op))
	}
}

func (s *Server) createTable(req Request) Response {
	fields, err := fieldsFromWire(req.Fields)
	if err != nil {
		return errorResponse(errs.Wrap(errs.InvalidSchema, "socket.create_table", err))
	}
	sch, err := schema.New(fields)
	if err != nil {
		return errorResponse(err)
	}
	if _, err := s.db.CreateTable(req.Table, sch, table.Options{}); err != nil {
		return errorResponse(err)
	}
	return Response{OK: true}
}

func (s *Server) openTable(req Request) Response {
	fields, err := fieldsFromWire(req.Fields)
	if err != nil {
		return errorResponse(errs.Wrap(errs.InvalidSchema, "socket.open_table", err))
	}
	sch, err := schema.New(fields)
	if err != nil {
		return errorResponse(err)
	}
	if _, err := s.db.OpenTable(req.Table, sch, table.Options{}); err != nil {
		return errorResponse(err)
	}
	return Response{OK: true}
}

func (s *Server) dropTable(req Request) Response {
	if err := s.db.DropTable(req.Table); err != nil {
		return errorResponse(err)
	}
	return Response{OK: true}
}

func (s *Server) listTables() Response {
	names, err := s.db.ListTables()
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Tables: names}
}

func (s *Server) closeTable(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	if err := t.Close(); err != nil {
		return errorResponse(err)
	}
	return Response{OK: true}
}

func (s *Server) openTableHandle(name string) (*database.Table, error) {
	t, ok := s.db.Table(name)
	if !ok {
		return nil, errs.New(errs.NotFound, "socket: table "+name+" is not open")
	}
	return t, nil
}

func (s *Server) insert(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	if err := t.Create(req.Record); err != nil {
		return errorResponse(err)
	}
	return Response{OK: true}
}

func (s *Server) lookup(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	if req.Key == nil {
		return errorResponse(errs.New(errs.InvalidRecord, "socket.lookup: key required"))
	}
	recs, err := t.Read(table.Criteria{Mode: table.Point, Key: *req.Key})
	if err != nil {
		return errorResponse(err)
	}
	if len(recs) == 0 {
		return Response{OK: true}
	}
	return Response{OK: true, Record: recs[0]}
}

func (s *Server) rangeRead(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	recs, err := t.Read(table.Criteria{
		Mode: table.Range, GTE: req.GTE, LTE: req.LTE,
		Equals: req.Equals, Limit: req.Limit, Offset: req.Offset,
	})
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Records: recs}
}

func (s *Server) scan(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	recs, err := t.Read(table.Criteria{
		Mode: table.Scan, Equals: req.Equals, Limit: req.Limit, Offset: req.Offset,
	})
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Records: recs}
}

func (s *Server) update(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	if req.Key == nil {
		return errorResponse(errs.New(errs.InvalidRecord, "socket.update: key required"))
	}
	old, updated, err := t.Update(*req.Key, req.Delta)
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Old: old, New: updated}
}

func (s *Server) delete(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	if req.Key == nil {
		return errorResponse(errs.New(errs.InvalidRecord, "socket.delete: key required"))
	}
	rec, err := t.Delete(*req.Key)
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Record: rec}
}

func (s *Server) count(req Request) Response {
	t, err := s.openTableHandle(req.Table)
	if err != nil {
		return errorResponse(err)
	}
	n, err := t.Count()
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Count: n}
}

func errorResponse(err error) Response {
	resp := Response{OK: false, Error: err.Error()}
	var e *errs.Error
	if errors.As(err, &e) {
		resp.ErrorKind = e.Kind.String()
	}
	return resp
}
