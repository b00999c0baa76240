// Package server - HTTP front end for uploading images and viewing detections.
package server

import (
	"context"
	"html/template"
	"image"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"goji.io"
	"goji.io/pat"

	"github.com/nvr-ai/go-yolox/config"
	"github.com/nvr-ai/go-yolox/detector"
	"github.com/nvr-ai/go-yolox/images"
)

// Detector is the part of detector.Detector the server uses.
type Detector interface {
	DetectAndAnnotate(ctx context.Context, img image.Image) (image.Image, []detector.Detection, error)
}

// Server serves the upload form, runs detection on uploads and serves the
// annotated results.
type Server struct {
	detector  Detector
	uploadDir string
	maxUpload int64
	logger    *zap.Logger
	mux       *goji.Mux
}

// page is the data rendered into the index template.
type page struct {
	Msg        string
	FileName   string
	Detections []detector.Detection
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>YOLOX detection</title></head>
<body>
<form action="/fileUpload" method="post" enctype="multipart/form-data">
  <input type="file" name="fileName" accept="image/*">
  <input type="submit" value="Detect">
</form>
{{if .Msg}}<p>{{.Msg}}</p>{{end}}
{{if .FileName}}
<ul>{{range .Detections}}<li>{{.Label}}</li>{{end}}</ul>
<img src="/show?fileName={{.FileName}}" alt="{{.FileName}}">
{{end}}
</body>
</html>
`))

// New creates a server writing into cfg.UploadDir, which is created if needed.
//
// Arguments:
//   - d: The detector run on every upload.
//   - cfg: The server configuration.
//   - logger: Receives request errors. Nil discards them.
//
// Returns:
//   - *Server: The server.
//   - error: An error if the upload directory cannot be created.
func New(d Detector, cfg config.ServerConfig, logger *zap.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("server requires a detector")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UploadDir == "" {
		return nil, errors.New("server requires an upload directory")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create upload directory %s", cfg.UploadDir)
	}

	s := &Server{
		detector:  d,
		uploadDir: cfg.UploadDir,
		maxUpload: cfg.MaxUploadBytes,
		logger:    logger,
		mux:       goji.NewMux(),
	}
	if s.maxUpload == 0 {
		s.maxUpload = config.Default().Server.MaxUploadBytes
	}

	s.mux.HandleFunc(pat.Get("/"), s.handleIndex)
	s.mux.HandleFunc(pat.Get("/index"), s.handleIndex)
	s.mux.HandleFunc(pat.Post("/fileUpload"), s.handleUpload)
	s.mux.HandleFunc(pat.Get("/show"), s.handleShow)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	httpServer := &http.Server{
		Handler:        s,
		ReadTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20,
		BaseContext:    func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down", zap.Error(err))
		}
	}()

	s.logger.Info("serving", zap.String("url", "http://"+listener.Addr().String()+"/index"))
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, page{})
}

// handleUpload decodes the uploaded image, stores it under a generated
// <uuid>.<format> name, runs detection and writes the annotated result as
// <uuid>.png next to it. Uploads that do not decode are never written.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	file, header, err := r.FormFile("fileName")
	if err != nil {
		s.logger.Debug("upload rejected", zap.Error(err))
		s.render(w, http.StatusBadRequest, page{Msg: "Upload failed: no image received."})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.render(w, http.StatusBadRequest, page{Msg: "Upload failed: " + err.Error()})
		return
	}

	record := &images.Image{Data: data}
	img, err := images.Decode(record)
	if err != nil {
		s.logger.Debug("upload is not an image", zap.String("file", header.Filename), zap.Error(err))
		s.render(w, http.StatusBadRequest, page{Msg: "Upload failed: not a supported image."})
		return
	}

	name := storedName(record.Format)
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		s.logger.Error("failed to store upload", zap.String("file", name), zap.Error(err))
		s.render(w, http.StatusInternalServerError, page{Msg: "Upload failed."})
		return
	}

	annotated, detections, err := s.detector.DetectAndAnnotate(r.Context(), img)
	if err != nil {
		s.logger.Error("detection failed", zap.String("file", name), zap.Error(err))
		s.render(w, http.StatusInternalServerError, page{Msg: "Detection failed."})
		return
	}

	result := storedName(images.FormatPNG)
	if err := images.EncodeFile(filepath.Join(s.uploadDir, result), annotated); err != nil {
		s.logger.Error("failed to write result", zap.String("file", result), zap.Error(err))
		s.render(w, http.StatusInternalServerError, page{Msg: "Detection failed."})
		return
	}

	s.logger.Info("detected",
		zap.String("upload", header.Filename),
		zap.String("stored", name),
		zap.String("result", result),
		zap.Int("detections", len(detections)),
	)

	s.render(w, http.StatusOK, page{Msg: "Detection result:", FileName: result, Detections: detections})
}

// storedName returns a fresh "<uuid>.<format>" file name.
func storedName(format images.ImageFormat) string {
	return uuid.NewString() + "." + string(format)
}

// contentTypes maps the extensions of stored files to their media types.
var contentTypes = map[string]string{
	"." + string(images.FormatPNG):  "image/png",
	"." + string(images.FormatJPEG): "image/jpeg",
	"." + string(images.FormatWebP): "image/webp",
}

// parseStoredName accepts only names produced by storedName and returns the
// media type of the file.
func parseStoredName(name string) (string, bool) {
	ext := filepath.Ext(name)
	contentType, ok := contentTypes[ext]
	if !ok {
		return "", false
	}
	id, err := uuid.Parse(strings.TrimSuffix(name, ext))
	if err != nil || id.String() != strings.TrimSuffix(name, ext) {
		return "", false
	}
	return contentType, true
}

// handleShow serves an image this server stored. Any other name is not found.
func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("fileName")
	contentType, ok := parseStoredName(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(filepath.Join(s.uploadDir, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, p); err != nil {
		s.logger.Error("failed to render index", zap.Error(err))
	}
}
