package apiServer

import (
	"log/slog"
	"net/http"

	"github.com/i5heu/qrtile"
)

const (
	headerMessageID   = "X-Qrtile-Message-Id"
	headerTotalChunks = "X-Qrtile-Total-Chunks"
	headerSHA256      = "X-Qrtile-Sha256"
)

type Server struct {
	mux       *http.ServeMux
	codec     *qrtile.Codec
	log       *slog.Logger
	maxUpload int64
}

func New(codec *qrtile.Codec, opts ...Option) *Server { // A
	s := &Server{
		mux:       http.NewServeMux(),
		codec:     codec,
		log:       slog.Default(),
		maxUpload: int64(codec.Config().MaxUploadBytes),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() { // AC
	s.mux.HandleFunc("POST /api/encode", s.handleEncode)
	s.mux.HandleFunc("POST /api/decode", s.handleDecode)
	s.mux.HandleFunc("GET /api/estimate", s.handleEstimate)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // AC
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.Header().Set("Access-Control-Expose-Headers",
		"Content-Type, Content-Length, Content-Disposition, "+headerMessageID+", "+headerTotalChunks+", "+headerSHA256)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	s.mux.ServeHTTP(w, r)
}
