package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"siashare-go/internal/model"
	"siashare-go/internal/share"
)

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if s.opts.UploadPassword != "" {
		got := r.Header.Get(headerUploadSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.UploadPassword)) != 1 {
			s.writeError(w, r, fmt.Errorf("upload password mismatch: %w", share.ErrForbidden))
			return
		}
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), s.clientIP(r))
		if err != nil {
			s.writeError(w, r, fmt.Errorf("rate limiter: %w", err))
			return
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, model.Error{Error: "too many requests"})
			return
		}
	}

	var req model.CreateRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	room, err := s.svc.CreateRoom(r.Context(), req.ReaderAuthToken, req.Salt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.CreateRoomResponse{
		ID:              room.ID,
		WriterAuthToken: room.WriterAuthToken,
		ExpiresAt:       room.ExpiresAt,
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req model.FinalizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Finalize(r.Context(), r.PathValue("id"), req.WriterAuthToken, req.Metadata); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetSalt(w http.ResponseWriter, r *http.Request) {
	salt, err := s.svc.GetSalt(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SaltResponse{Salt: salt})
}

// handleGetRoom returns the room to a reader and sets a session cookie scoped
// to the room so later downloads work without custom headers.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	token := s.resolveReaderToken(r, id)
	room, err := s.svc.GetRoom(r.Context(), id, token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cookie, err := s.sessions.issue(room.ID, token, room.ExpiresAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, cookie)

	resp := model.Room{
		ID:        room.ID,
		Salt:      room.Salt,
		CreatedAt: room.CreatedAt,
		ExpiresAt: room.ExpiresAt,
	}
	if room.Metadata.Valid {
		resp.Metadata = &room.Metadata.String
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFileStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file, err := s.svc.FileStatus(r.Context(), id, s.resolveReaderToken(r, id), r.PathValue("fileId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.FileStatus{
		TusID:    file.TusID,
		FileID:   file.FileID,
		Uploaded: file.Status,
		Promoted: file.PromotedAt.Valid,
		Size:     file.Size,
	})
}

// handleDownload streams a file from whichever tier has it. The trailing
// name segment is ignored by routing so the URL can serve as a web seed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.svc.OpenDownload(r.Context(), share.DownloadRequest{
		RoomID:      id,
		Ref:         r.PathValue("ref"),
		ReaderToken: s.resolveReaderToken(r, id),
		Range:       r.Header.Get("Range"),
	})
	if err != nil {
		var re *share.RangeError
		if errors.As(err, &re) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", re.Size))
		}
		s.writeError(w, r, err)
		return
	}
	defer d.Body.Close()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(d.Range.Length(), 10))
	h.Set("Cache-Control", "private, no-store")
	if name := r.PathValue("name"); name != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	status := http.StatusOK
	if d.Range.Partial {
		h.Set("Content-Range", d.Range.ContentRange())
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, d.Body)
	if err != nil {
		// Headers are gone; the client sees a short body and can resume with Range.
		s.logger.Warn("download interrupted", "room", id, "upload", d.TusID, "tier", d.Tier, "sent", n, "error", err)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := model.ServerConfig{
		PasswordRequired: s.opts.UploadPassword != "",
		MaxFileSize:      s.opts.MaxFileSize,
		MaxFiles:         s.opts.MaxFiles,
		RoomTTLSeconds:   int64(s.opts.RoomTTL.Seconds()),
		UploadPath:       UploadPath,
	}
	if s.tracker != nil {
		cfg.TrackerPath = trackerPath
	}
	writeJSON(w, http.StatusOK, cfg)
}
