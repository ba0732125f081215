package tracker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"siashare-go/internal/share"
)

// peerConn owns one WebSocket. All writes go through writeLoop, which is the
// connection's only writer.
type peerConn struct {
	ws     *websocket.Conn
	logger share.Logger
	send   chan []byte
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	swarms map[string]string // info hash -> peer id announced on this connection
}

func newPeerConn(ws *websocket.Conn, logger share.Logger) *peerConn {
	pc := &peerConn{
		ws:     ws,
		logger: logger,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
		swarms: make(map[string]string),
	}
	go pc.writeLoop()
	return pc
}

func (pc *peerConn) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-pc.done:
			return
		case <-ping.C:
			if err := pc.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				pc.logger.Debug("tracker ping failed", "error", err)
				pc.Close()
				return
			}
		case data := <-pc.send:
			_ = pc.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := pc.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				pc.logger.Debug("tracker write failed", "error", err)
				pc.Close()
				return
			}
		}
	}
}

// sendJSON queues a message. A peer too slow to drain its queue is disconnected.
func (pc *peerConn) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		pc.logger.Error("encoding tracker message", "error", err)
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return
	}
	select {
	case pc.send <- data:
	default:
		pc.logger.Debug("tracker peer send queue full, disconnecting")
		pc.closeLocked()
	}
}

func (pc *peerConn) join(infoHash, peerID string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.swarms[infoHash] = peerID
}

func (pc *peerConn) forget(infoHash string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.swarms, infoHash)
}

func (pc *peerConn) memberships() map[string]string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	m := make(map[string]string, len(pc.swarms))
	for k, v := range pc.swarms {
		m[k] = v
	}
	return m
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (pc *peerConn) Close() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.closeLocked()
}

func (pc *peerConn) closeLocked() {
	if pc.closed {
		return
	}
	pc.closed = true
	close(pc.done)
	pc.ws.Close()
}
