package server

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/joeandaverde/litedb/internal/backend"
)

// Config contains settings for serving database connections.
type Config struct {
	// MaxConns caps concurrently served connections. Zero means unlimited.
	MaxConns int
}

// Server accepts TCP connections and executes semicolon delimited
// statements against a shared backend.
type Server struct {
	config Config
	log    *logrus.Logger

	// mu serializes statement execution so result streaming from one
	// connection never interleaves with a write from another.
	mu sync.Mutex
}

// NewServer creates a server to service connections for the database backend.
func NewServer(log *logrus.Logger, config Config) *Server {
	return &Server{
		config: config,
		log:    log,
	}
}

// Serve accepts connections on ln until the listener is closed.
func (s *Server) Serve(ln net.Listener, db *backend.Backend) error {
	if s.config.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConns)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		s.log.WithField("addr", conn.RemoteAddr().String()).Info("connection accepted")
		go s.handleConnection(conn, db)
	}
}

func (s *Server) handleConnection(conn net.Conn, db *backend.Backend) {
	defer func() {
		s.log.WithField("addr", conn.RemoteAddr().String()).Info("connection closed")
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Split(onSemicolon)

	writer := bufio.NewWriter(conn)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if err := s.execute(db, text, writer); err != nil {
			fmt.Fprintf(writer, "error: %s\n", err.Error())
		}

		if err := writer.Flush(); err != nil {
			s.log.WithError(err).Error("unable to flush response")
			return
		}
	}
}

// execute runs a single statement and writes its response. Selects
// stream one pipe separated line per row followed by "ok". Mutations
// respond with "ok <affected>".
func (s *Server) execute(db *backend.Backend, text string, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.WithField("statement", text).Debug("executing statement")

	stmt, err := db.Prepare(text)
	if err != nil {
		return err
	}

	result, err := db.Exec(context.Background(), stmt)
	if err != nil {
		return err
	}

	if !stmt.ReturnsRows() {
		_, err := fmt.Fprintf(w, "ok %d\n", result.RowsAffected)
		return err
	}

	for {
		fields, err := result.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		var line bytes.Buffer
		for i, f := range fields {
			if i > 0 {
				line.WriteByte('|')
			}
			line.WriteString(backend.FormatField(f))
		}
		line.WriteByte('\n')

		if _, err := w.Write(line.Bytes()); err != nil {
			return err
		}
	}

	_, err = io.WriteString(w, "ok\n")
	return err
}

// onSemicolon splits the inbound stream into statements terminated by
// a semicolon. A trailing unterminated statement is delivered at EOF.
func onSemicolon(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, ';'); i >= 0 {
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}
