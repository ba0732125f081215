package server

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tus/tusd/v2/pkg/filestore"
	"github.com/tus/tusd/v2/pkg/handler"
	"github.com/tus/tusd/v2/pkg/memorylocker"
)

// UploadPath is where the resumable-upload protocol is mounted.
const UploadPath = "/api/tus/upload/"

// newUploadHandler builds the resumable-upload handler. Uploads land in dir,
// which is also the cache tier, and the create and finish hooks call into
// the service.
func (s *Server) newUploadHandler(dir string, maxSize int64, logger *slog.Logger) (*handler.Handler, error) {
	store := filestore.New(dir)
	locker := memorylocker.New()
	composer := handler.NewStoreComposer()
	store.UseIn(composer)
	locker.UseIn(composer)

	h, err := handler.NewHandler(handler.Config{
		BasePath:                  UploadPath,
		StoreComposer:             composer,
		MaxSize:                   maxSize,
		Logger:                    logger,
		DisableDownload:           true,
		DisableTermination:        true,
		RespectForwardedHeaders:   s.opts.BehindProxy,
		PreUploadCreateCallback:   s.preUploadCreate,
		PreFinishResponseCallback: s.preFinishResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("creating upload handler: %w", err)
	}
	return h, nil
}

// preUploadCreate authorizes an upload and assigns its id before any bytes
// are accepted.
func (s *Server) preUploadCreate(hook handler.HookEvent) (handler.HTTPResponse, handler.FileInfoChanges, error) {
	tusID := s.uploadIDs.New()
	if err := s.svc.OnUploadCreate(hook.Context, hook.HTTPRequest.Header, tusID, hook.Upload.Size); err != nil {
		return handler.HTTPResponse{}, handler.FileInfoChanges{}, s.hookError(err)
	}
	return handler.HTTPResponse{}, handler.FileInfoChanges{ID: tusID}, nil
}

// preFinishResponse records a completed upload before the final PATCH is answered.
func (s *Server) preFinishResponse(hook handler.HookEvent) (handler.HTTPResponse, error) {
	if err := s.svc.OnUploadFinish(hook.Context, hook.HTTPRequest.Header, hook.Upload.ID, hook.Upload.Size); err != nil {
		return handler.HTTPResponse{}, s.hookError(err)
	}
	return handler.HTTPResponse{}, nil
}

// hookError turns a service error into a response the upload handler sends as is.
func (s *Server) hookError(err error) error {
	status, msg := errorStatus(err)
	if status >= 500 {
		s.logger.Error("upload hook failed", "error", err)
	}
	code := "ERR_" + strings.ToUpper(strings.ReplaceAll(msg, " ", "_"))
	return handler.NewError(code, msg, status)
}
