package sheet

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tabula/grid"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tooling only
	},
}

// Server exposes a Sheet over a websocket. Clients send cell edits and
// receive cell_updated messages for every cell whose value may have
// changed (the target and its transitive dependents).
type Server struct {
	sheet   *Sheet
	sheetMu sync.Mutex

	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

func NewServer() *Server {
	return &Server{
		sheet:   New(),
		clients: make(map[*websocket.Conn]bool),
	}
}

type UpdateRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

type UpdateResponse struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Text    string `json:"text,omitempty"`
	Display string `json:"display,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade error:", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	s.sendInitialState(conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var req UpdateRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			log.Println("json error:", err)
			continue
		}

		switch req.Type {
		case "set_cell":
			s.handleSet(conn, req)
		case "clear_cell":
			s.handleClear(conn, req)
		case "reset":
			s.handleReset()
		}
	}
}

func (s *Server) handleSet(conn *websocket.Conn, req UpdateRequest) {
	pos, ok := grid.Parse(req.ID)
	if !ok {
		s.sendError(conn, req.ID, "invalid position "+req.ID)
		return
	}

	s.sheetMu.Lock()
	err := s.sheet.SetCell(pos, req.Text)
	var affected map[grid.Position]struct{}
	if err == nil {
		affected = s.collectAffected(pos)
	}
	s.sheetMu.Unlock()

	if err != nil {
		// Structural errors answer the requesting client only; the
		// sheet is unchanged, so there is nothing to broadcast.
		s.sendError(conn, req.ID, err.Error())
		return
	}
	s.broadcastUpdates(affected)
}

func (s *Server) handleClear(conn *websocket.Conn, req UpdateRequest) {
	pos, ok := grid.Parse(req.ID)
	if !ok {
		s.sendError(conn, req.ID, "invalid position "+req.ID)
		return
	}

	s.sheetMu.Lock()
	affected := s.collectAffected(pos)
	err := s.sheet.ClearCell(pos)
	s.sheetMu.Unlock()

	if err != nil {
		s.sendError(conn, req.ID, err.Error())
		return
	}
	s.broadcastUpdates(affected)
}

func (s *Server) handleReset() {
	s.sheetMu.Lock()
	s.sheet = New()
	s.sheetMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	resetMsg := UpdateResponse{Type: "reset"}
	for client := range s.clients {
		if err := client.WriteJSON(resetMsg); err != nil {
			log.Printf("reset write failed: %v", err)
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

// collectAffected gathers pos and every transitive dependent. Caller
// holds sheetMu.
func (s *Server) collectAffected(pos grid.Position) map[grid.Position]struct{} {
	affected := make(map[grid.Position]struct{})
	worklist := []grid.Position{pos}
	affected[pos] = struct{}{}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		cell := s.sheet.at(cur)
		if cell == nil {
			continue
		}
		for q := range cell.refsIn {
			if _, seen := affected[q]; !seen {
				affected[q] = struct{}{}
				worklist = append(worklist, q)
			}
		}
	}
	return affected
}

func (s *Server) sendInitialState(conn *websocket.Conn) {
	s.sheetMu.Lock()
	var responses []UpdateResponse
	size := s.sheet.PrintableSize()
	for row := 0; row < size.Rows; row++ {
		for col := 0; col < size.Cols; col++ {
			pos := grid.Position{Row: row, Col: col}
			cell := s.sheet.at(pos)
			if cell == nil || cell.Text() == "" {
				continue
			}
			responses = append(responses, s.updateResponse(pos, cell))
		}
	}
	s.sheetMu.Unlock()

	for _, resp := range responses {
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("initial state write failed: %v", err)
			return
		}
	}
}

func (s *Server) broadcastUpdates(affected map[grid.Position]struct{}) {
	s.sheetMu.Lock()
	responses := make([]UpdateResponse, 0, len(affected))
	for pos := range affected {
		responses = append(responses, s.updateResponse(pos, s.sheet.at(pos)))
	}
	s.sheetMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, resp := range responses {
		for client := range s.clients {
			if err := client.WriteJSON(resp); err != nil {
				log.Printf("update write failed: %v", err)
				_ = client.Close()
				delete(s.clients, client)
			}
		}
	}
}

func (s *Server) updateResponse(pos grid.Position, cell *Cell) UpdateResponse {
	resp := UpdateResponse{Type: "cell_updated", ID: pos.String()}
	if cell == nil {
		return resp
	}
	resp.Text = cell.Text()
	v := cell.Value()
	resp.Display = v.String()
	if v.Kind == ValueError {
		resp.Error = v.Err.Error()
	}
	return resp
}

func (s *Server) sendError(conn *websocket.Conn, id, message string) {
	resp := UpdateResponse{Type: "error", ID: id, Error: message}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("error write failed: %v", err)
	}
}

// HandleValues dumps the sheet's printable values as plain text.
func (s *Server) HandleValues(w http.ResponseWriter, r *http.Request) {
	s.sheetMu.Lock()
	defer s.sheetMu.Unlock()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.sheet.PrintValues(w); err != nil {
		log.Printf("print values failed: %v", err)
	}
}

// Start serves the websocket endpoint on /ws and a plain-text dump of
// the current values on /.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HandleValues)
	mux.HandleFunc("/ws", s.HandleWebSocket)

	log.Printf("starting sheet server at http://%s", addr)
	return http.ListenAndServe(addr, mux)
}
