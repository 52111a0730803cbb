package sheet

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestServer(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()

	srv := NewServer()
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return srv, conn
}

func readResponse(t *testing.T, conn *websocket.Conn) UpdateResponse {
	t.Helper()
	var resp UpdateResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestServerSetAndPropagate(t *testing.T) {
	_, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "set_cell", ID: "A1", Text: "5"}))
	resp := readResponse(t, conn)
	assert.Equal(t, "cell_updated", resp.Type)
	assert.Equal(t, "A1", resp.ID)
	assert.Equal(t, "5", resp.Display)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "set_cell", ID: "B1", Text: "=A1+1"}))
	resp = readResponse(t, conn)
	assert.Equal(t, "B1", resp.ID)
	assert.Equal(t, "6", resp.Display)
	assert.Equal(t, "=A1+1", resp.Text)

	// Editing A1 pushes updates for A1 and its dependent B1.
	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "set_cell", ID: "A1", Text: "10"}))
	got := map[string]UpdateResponse{}
	for i := 0; i < 2; i++ {
		resp := readResponse(t, conn)
		got[resp.ID] = resp
	}
	require.Len(t, got, 2)
	assert.Equal(t, "10", got["A1"].Display)
	assert.Equal(t, "11", got["B1"].Display)
}

func TestServerStructuralErrors(t *testing.T) {
	_, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "set_cell", ID: "a1", Text: "5"}))
	resp := readResponse(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "invalid position")

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "set_cell", ID: "A1", Text: "=A1"}))
	resp = readResponse(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "circular dependency")
}

func TestServerFormulaErrorDisplay(t *testing.T) {
	_, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "set_cell", ID: "A1", Text: "=1/0"}))
	resp := readResponse(t, conn)
	assert.Equal(t, "cell_updated", resp.Type)
	assert.Equal(t, "#DIV/0!", resp.Display)
	assert.Equal(t, "#DIV/0!", resp.Error)
}

func TestServerClearCell(t *testing.T) {
	_, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "set_cell", ID: "A1", Text: "5"}))
	readResponse(t, conn)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "clear_cell", ID: "A1"}))
	resp := readResponse(t, conn)
	assert.Equal(t, "cell_updated", resp.Type)
	assert.Equal(t, "A1", resp.ID)
	assert.Empty(t, resp.Display)
	assert.Empty(t, resp.Text)
}

func TestServerInitialState(t *testing.T) {
	srv := NewServer()
	require.NoError(t, srv.sheet.SetCell(pos(t, "A1"), "hello"))

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	first := readResponse(t, conn)
	assert.Equal(t, "cell_updated", first.Type)
	assert.Equal(t, "A1", first.ID)
	assert.Equal(t, "hello", first.Display)
}

func TestServerValuesEndpoint(t *testing.T) {
	srv := NewServer()
	require.NoError(t, srv.sheet.SetCell(pos(t, "A1"), "1"))
	require.NoError(t, srv.sheet.SetCell(pos(t, "B1"), "=A1+1"))

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleValues))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "1\t2\n", string(body))
}
