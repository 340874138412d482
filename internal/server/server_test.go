package server

import (
	"bufio"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/litedb/internal/backend"
)

func startTestServer(t *testing.T) net.Addr {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := backend.Open(log, backend.Config{
		Path:     filepath.Join(t.TempDir(), "server_test.db"),
		PageSize: 4096,
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go NewServer(log, Config{MaxConns: 4}).Serve(ln, db)

	return ln.Addr()
}

func Test_Server_ExecutesStatements(t *testing.T) {
	assert := require.New(t)
	addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr.String())
	assert.NoError(err)
	defer conn.Close()

	_, err = conn.Write([]byte(
		"CREATE TABLE points (id INTEGER PRIMARY KEY, label TEXT, score INTEGER);" +
			"INSERT INTO points (label, score) VALUES ('a', 10), ('b', 20), ('c', 30);" +
			"SELECT label, score FROM points WHERE score > 10 ORDER BY score DESC;",
	))
	assert.NoError(err)

	reader := bufio.NewReader(conn)
	readLine := func() string {
		line, err := reader.ReadString('\n')
		assert.NoError(err)
		return line
	}

	assert.Equal("ok 0\n", readLine())
	assert.Equal("ok 3\n", readLine())
	assert.Equal("c|30\n", readLine())
	assert.Equal("b|20\n", readLine())
	assert.Equal("ok\n", readLine())
}

func Test_Server_ReportsErrors(t *testing.T) {
	assert := require.New(t)
	addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr.String())
	assert.NoError(err)
	defer conn.Close()

	_, err = conn.Write([]byte("SELECT nope FROM missing;SELECT 1 + 1 AS two;"))
	assert.NoError(err)

	reader := bufio.NewReader(conn)

	line, err := reader.ReadString('\n')
	assert.NoError(err)
	assert.Contains(line, "error:")

	line, err = reader.ReadString('\n')
	assert.NoError(err)
	assert.Equal("2\n", line)

	line, err = reader.ReadString('\n')
	assert.NoError(err)
	assert.Equal("ok\n", line)
}
