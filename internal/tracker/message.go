package tracker

import "encoding/json"

// Actions of the WebTorrent tracker protocol.
const (
	actionAnnounce = "announce"
	actionScrape   = "scrape"
)

// Announce events.
const (
	eventStarted   = "started"
	eventCompleted = "completed"
	eventStopped   = "stopped"
)

// request is any message a peer sends. info_hash is a string for announce
// and either a string or a list of strings for scrape.
type request struct {
	Action   string          `json:"action"`
	InfoHash json.RawMessage `json:"info_hash"`
	PeerID   string          `json:"peer_id"`
	Event    string          `json:"event,omitempty"`
	Left     *float64        `json:"left,omitempty"`
	NumWant  int             `json:"numwant,omitempty"`
	Offers   []offer         `json:"offers,omitempty"`
	ToPeerID string          `json:"to_peer_id,omitempty"`
	Answer   json.RawMessage `json:"answer,omitempty"`
	OfferID  string          `json:"offer_id,omitempty"`
}

type offer struct {
	Offer   json.RawMessage `json:"offer"`
	OfferID string          `json:"offer_id"`
}

// announceResponse acknowledges an announce with swarm counts.
type announceResponse struct {
	Action     string `json:"action"`
	InfoHash   string `json:"info_hash"`
	Interval   int    `json:"interval"`
	Complete   int    `json:"complete"`
	Incomplete int    `json:"incomplete"`
}

// relayMessage carries an offer or answer from one peer to another.
type relayMessage struct {
	Action   string          `json:"action"`
	InfoHash string          `json:"info_hash"`
	PeerID   string          `json:"peer_id"`
	OfferID  string          `json:"offer_id"`
	Offer    json.RawMessage `json:"offer,omitempty"`
	Answer   json.RawMessage `json:"answer,omitempty"`
}

type scrapeResponse struct {
	Action string                 `json:"action"`
	Files  map[string]scrapeStats `json:"files"`
}

type scrapeStats struct {
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
	Downloaded int `json:"downloaded"`
}

type errorResponse struct {
	Action        string `json:"action,omitempty"`
	InfoHash      string `json:"info_hash,omitempty"`
	FailureReason string `json:"failure reason"`
}

// infoHashes decodes the info_hash field as one or many hashes.
func (r *request) infoHashes() ([]string, error) {
	if len(r.InfoHash) == 0 {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(r.InfoHash, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(r.InfoHash, &many); err != nil {
		return nil, err
	}
	return many, nil
}
