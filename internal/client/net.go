package client

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"arena-core/internal/protocol"
)

// WSTransport is the websocket implementation of Transport.
type WSTransport struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Dial connects to the server's game endpoint.
func Dial(addr string) (*WSTransport, error) {
	ws, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}
	t := &WSTransport{
		ws:   ws,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go t.writeLoop()
	return t, nil
}

// Send implements Transport.
func (t *WSTransport) Send(mt protocol.MsgType, ch protocol.Channel, payload any) {
	data, err := protocol.Encode(mt, ch, payload)
	if err != nil {
		log.Printf("encode %s: %v", mt, err)
		return
	}
	select {
	case t.send <- data:
	case <-t.done:
	}
}

// Close shuts the transport down.
func (t *WSTransport) Close() {
	close(t.done)
	t.ws.Close()
}

func (t *WSTransport) writeLoop() {
	for {
		select {
		case data := <-t.send:
			t.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// Receive reads and dispatches server messages until the connection drops.
// The client's methods are not synchronized, so every dispatch goes through
// exec; pass an executor that runs the closure on the game-loop goroutine,
// or nil to dispatch inline when Frame and Receive share a loop.
func (t *WSTransport) Receive(c *Client, exec func(func()), onChat func(protocol.MsgSvChat), onInfo func(protocol.MsgSvServerInfo)) error {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			return err
		}
		env, err := protocol.Decode(data)
		if err != nil {
			// Drop the message, keep the connection.
			log.Printf("client: %v", err)
			continue
		}
		switch env.Type {
		case protocol.TypeServerInfo, protocol.TypeLoad:
			var msg protocol.MsgSvServerInfo
			if json.Unmarshal(env.Payload, &msg) == nil && onInfo != nil {
				onInfo(msg)
			}
		case protocol.TypeReadyResponse:
			var msg protocol.MsgSvReadyResponse
			if json.Unmarshal(env.Payload, &msg) == nil {
				exec(func() { c.OnReadyResponse(&msg) })
			}
		case protocol.TypeSnapshot:
			var msg protocol.MsgSvSnapshot
			if json.Unmarshal(env.Payload, &msg) == nil {
				recv := time.Now()
				exec(func() { c.OnSnapshot(&msg, recv) })
			}
		case protocol.TypeChat:
			var msg protocol.MsgSvChat
			if json.Unmarshal(env.Payload, &msg) == nil && onChat != nil {
				onChat(msg)
			}
		case protocol.TypeQueueInfo:
			var msg protocol.MsgSvQueueInfo
			if json.Unmarshal(env.Payload, &msg) == nil {
				log.Printf("server: %s", msg.Text)
			}
		case protocol.TypeEvents, protocol.TypeVote, protocol.TypeStartVoteRes,
			protocol.TypeRconCommands, protocol.TypeRconExecResult, protocol.TypeLoadVote:
			// Consumed by the UI layer; the core loop has no handler.
		default:
			log.Printf("client: unhandled message type %q", env.Type)
		}
	}
}
