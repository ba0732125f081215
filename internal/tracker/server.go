// Package tracker is a rendezvous point for browser peers: a WebSocket
// tracker speaking the WebTorrent protocol. It relays WebRTC offers and
// answers between peers of the same swarm and never sees file content.
package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"siashare-go/internal/share"
)

const (
	maxMessageSize = 64 << 10
	maxNumWant     = 10
	readTimeout    = 3 * time.Minute
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Options configures the tracker.
type Options struct {
	// AnnounceInterval is the re-announce interval sent to peers.
	AnnounceInterval time.Duration

	// PeersChanged, if set, is called with +1 or -1 as peers join and leave swarms.
	PeersChanged func(delta int)
}

// Server tracks swarms keyed by info hash.
type Server struct {
	logger   share.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.Mutex
	swarms map[string]*swarm
}

type swarm struct {
	peers      map[string]*peer
	downloaded int
}

type peer struct {
	id       string
	conn     *peerConn
	complete bool
}

func NewServer(logger share.Logger, opts Options) *Server {
	if opts.AnnounceInterval <= 0 {
		opts.AnnounceInterval = 2 * time.Minute
	}
	return &Server{
		logger: logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers connect from the share page, which may be served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		swarms: make(map[string]*swarm),
	}
}

// ServeHTTP upgrades the request and serves one peer connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("tracker upgrade failed", "error", err)
		return
	}
	pc := newPeerConn(ws, s.logger)
	defer func() {
		s.removeConn(pc)
		pc.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("tracker read error", "error", err)
			}
			return
		}
		if err := s.handleMessage(pc, data); err != nil {
			s.logger.Debug("tracker request rejected", "error", err)
			pc.sendJSON(errorResponse{FailureReason: err.Error()})
		}
	}
}

func (s *Server) handleMessage(pc *peerConn, data []byte) error {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	switch req.Action {
	case actionAnnounce:
		return s.announce(pc, &req)
	case actionScrape:
		return s.scrape(pc, &req)
	default:
		return fmt.Errorf("invalid action %q", req.Action)
	}
}

func (s *Server) announce(pc *peerConn, req *request) error {
	hashes, err := req.infoHashes()
	if err != nil || len(hashes) != 1 || hashes[0] == "" {
		return errors.New("invalid info_hash")
	}
	if req.PeerID == "" {
		return errors.New("invalid peer_id")
	}
	infoHash := hashes[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	sw := s.swarms[infoHash]
	if req.Event == eventStopped {
		// Only the connection that announced a peer may remove it.
		if sw != nil {
			if p := sw.peers[req.PeerID]; p != nil && p.conn == pc {
				s.removePeerLocked(infoHash, sw, req.PeerID)
			}
		}
		return nil
	}
	if sw == nil {
		sw = &swarm{peers: make(map[string]*peer)}
		s.swarms[infoHash] = sw
	}

	p := sw.peers[req.PeerID]
	if p == nil {
		p = &peer{id: req.PeerID}
		sw.peers[req.PeerID] = p
		s.peersChanged(1)
	}
	if p.conn != nil && p.conn != pc {
		p.conn.forget(infoHash)
	}
	p.conn = pc
	pc.join(infoHash, req.PeerID)

	if req.Event == eventCompleted && !p.complete {
		sw.downloaded++
	}
	if req.Event == eventCompleted || (req.Left != nil && *req.Left == 0) {
		p.complete = true
	}

	complete, incomplete := sw.counts()
	pc.sendJSON(announceResponse{
		Action:     actionAnnounce,
		InfoHash:   infoHash,
		Interval:   int(s.opts.AnnounceInterval.Seconds()),
		Complete:   complete,
		Incomplete: incomplete,
	})

	if len(req.Offers) > 0 {
		s.relayOffersLocked(sw, infoHash, p, req)
	}

	if req.ToPeerID != "" && len(req.Answer) > 0 {
		target := sw.peers[req.ToPeerID]
		if target == nil {
			return fmt.Errorf("peer %q not in swarm", req.ToPeerID)
		}
		target.conn.sendJSON(relayMessage{
			Action:   actionAnnounce,
			InfoHash: infoHash,
			PeerID:   req.PeerID,
			OfferID:  req.OfferID,
			Answer:   req.Answer,
		})
	}
	return nil
}

// relayOffersLocked hands each offer to a different peer of the swarm. Seeders
// do not need offers from other seeders.
func (s *Server) relayOffersLocked(sw *swarm, infoHash string, from *peer, req *request) {
	numWant := min(len(req.Offers), maxNumWant)
	if req.NumWant > 0 {
		numWant = min(numWant, req.NumWant)
	}
	i := 0
	for _, other := range sw.peers {
		if i >= numWant {
			break
		}
		if other.id == from.id || (from.complete && other.complete) {
			continue
		}
		o := req.Offers[i]
		other.conn.sendJSON(relayMessage{
			Action:   actionAnnounce,
			InfoHash: infoHash,
			PeerID:   from.id,
			OfferID:  o.OfferID,
			Offer:    o.Offer,
		})
		i++
	}
}

func (s *Server) scrape(pc *peerConn, req *request) error {
	hashes, err := req.infoHashes()
	if err != nil {
		return errors.New("invalid info_hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(hashes) == 0 {
		for h := range s.swarms {
			hashes = append(hashes, h)
		}
	}
	resp := scrapeResponse{Action: actionScrape, Files: make(map[string]scrapeStats, len(hashes))}
	for _, h := range hashes {
		var stats scrapeStats
		if sw := s.swarms[h]; sw != nil {
			stats.Complete, stats.Incomplete = sw.counts()
			stats.Downloaded = sw.downloaded
		}
		resp.Files[h] = stats
	}
	pc.sendJSON(resp)
	return nil
}

// removeConn drops every swarm membership held by a closed connection.
func (s *Server) removeConn(pc *peerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for infoHash, peerID := range pc.memberships() {
		sw := s.swarms[infoHash]
		if sw == nil {
			continue
		}
		if p := sw.peers[peerID]; p != nil && p.conn == pc {
			s.removePeerLocked(infoHash, sw, peerID)
		}
	}
}

func (s *Server) removePeerLocked(infoHash string, sw *swarm, peerID string) {
	p := sw.peers[peerID]
	if p == nil {
		return
	}
	p.conn.forget(infoHash)
	delete(sw.peers, peerID)
	s.peersChanged(-1)
	if len(sw.peers) == 0 {
		delete(s.swarms, infoHash)
	}
}

func (s *Server) peersChanged(delta int) {
	if s.opts.PeersChanged != nil {
		s.opts.PeersChanged(delta)
	}
}

// Stats returns the number of swarms and connected peers.
func (s *Server) Stats() (swarms, peers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sw := range s.swarms {
		peers += len(sw.peers)
	}
	return len(s.swarms), peers
}

func (sw *swarm) counts() (complete, incomplete int) {
	for _, p := range sw.peers {
		if p.complete {
			complete++
		} else {
			incomplete++
		}
	}
	return complete, incomplete
}
