// Package service exposes a sheet over a ZeroMQ REP socket. Requests
// and replies are single-frame JSON; one request mutates or reads the
// sheet and gets exactly one reply.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-zeromq/zmq4"

	"tabula/grid"
	"tabula/sheet"
)

// Request ops: "set", "clear", "get", "values", "texts", "size".
type Request struct {
	Op   string `json:"op"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

type Reply struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Display string `json:"display,omitempty"`
	Text    string `json:"text,omitempty"`
	Output  string `json:"output,omitempty"`
	Rows    int    `json:"rows,omitempty"`
	Cols    int    `json:"cols,omitempty"`
}

type Service struct {
	sheet *sheet.Sheet
	sock  zmq4.Socket
}

func New(ctx context.Context) *Service {
	return &Service{
		sheet: sheet.New(),
		sock:  zmq4.NewRep(ctx),
	}
}

// ListenAndServe binds the REP socket to endpoint (e.g.
// "tcp://127.0.0.1:5601") and serves requests until the socket fails or
// the context ends.
func (s *Service) ListenAndServe(endpoint string) error {
	if err := s.sock.Listen(endpoint); err != nil {
		return fmt.Errorf("failed to bind to %s: %w", endpoint, err)
	}
	log.Printf("sheet service listening on %s", endpoint)

	for {
		msg, err := s.sock.Recv()
		if err != nil {
			return err
		}

		reply := s.handle(msg.Bytes())
		payload, err := json.Marshal(reply)
		if err != nil {
			log.Printf("marshal reply: %v", err)
			continue
		}
		if err := s.sock.Send(zmq4.NewMsg(payload)); err != nil {
			log.Printf("send reply: %v", err)
		}
	}
}

func (s *Service) Close() error {
	return s.sock.Close()
}

func (s *Service) handle(raw []byte) Reply {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Reply{Error: fmt.Sprintf("bad request: %v", err)}
	}

	switch req.Op {
	case "set":
		pos, ok := grid.Parse(req.ID)
		if !ok {
			return Reply{Error: "invalid position " + req.ID}
		}
		if err := s.sheet.SetCell(pos, req.Text); err != nil {
			return Reply{Error: err.Error()}
		}
		return s.cellReply(pos)

	case "clear":
		pos, ok := grid.Parse(req.ID)
		if !ok {
			return Reply{Error: "invalid position " + req.ID}
		}
		if err := s.sheet.ClearCell(pos); err != nil {
			return Reply{Error: err.Error()}
		}
		return Reply{OK: true}

	case "get":
		pos, ok := grid.Parse(req.ID)
		if !ok {
			return Reply{Error: "invalid position " + req.ID}
		}
		return s.cellReply(pos)

	case "values":
		var buf bytes.Buffer
		_ = s.sheet.PrintValues(&buf)
		return Reply{OK: true, Output: buf.String()}

	case "texts":
		var buf bytes.Buffer
		_ = s.sheet.PrintTexts(&buf)
		return Reply{OK: true, Output: buf.String()}

	case "size":
		size := s.sheet.PrintableSize()
		return Reply{OK: true, Rows: size.Rows, Cols: size.Cols}

	default:
		return Reply{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (s *Service) cellReply(pos grid.Position) Reply {
	cell, err := s.sheet.GetCell(pos)
	if err != nil {
		return Reply{Error: err.Error()}
	}
	if cell == nil {
		return Reply{OK: true}
	}
	return Reply{OK: true, Display: cell.Value().String(), Text: cell.Text()}
}
