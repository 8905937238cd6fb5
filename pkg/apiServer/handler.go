package apiServer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/i5heu/qrtile"
)

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) { // PA
	var req encodeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "no data provided")
		return
	}

	var buf bytes.Buffer
	enc, err := s.codec.EncodePNG(r.Context(), &buf, *req.Data, qrtile.EncodeOptions{
		ChunkSize:   req.ChunkSize,
		Passphrase:  req.Passphrase,
		Compression: req.Compression,
		Labels:      req.Labels,
	})
	if err != nil {
		if errors.Is(err, qrtile.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("failed to encode", "error", err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="multi_qr.png"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set(headerMessageID, enc.MessageID)
	w.Header().Set(headerTotalChunks, strconv.Itoa(enc.TotalChunks))
	w.Header().Set(headerSHA256, enc.Digest)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Warn("failed to write png", "messageId", enc.MessageID, "error", err)
	}
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) { // PA
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data")
		return
	}
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	// FormValue also covers the query string
	passphrase := r.FormValue("passphrase")

	decoded, err := s.codec.DecodePNG(r.Context(), file, qrtile.DecodeOptions{Passphrase: passphrase})
	if err != nil {
		status, body := decodeFailure(err)
		if status == http.StatusInternalServerError {
			s.log.Error("failed to decode", "error", err)
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, decodeResponse{
		Data:        decoded.Text,
		SHA256:      decoded.Digest,
		MessageID:   decoded.MessageID,
		TotalChunks: decoded.TotalChunks,
		Encrypted:   decoded.Encrypted,
		Compression: string(decoded.Compression),
		IssuedHere:  decoded.Issued != nil,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) { // A
	q := r.URL.Query()
	length, err := strconv.Atoi(q.Get("length"))
	if err != nil || length < 0 {
		writeError(w, http.StatusBadRequest, "length must be a non-negative integer")
		return
	}

	var chunkSize int
	if raw := q.Get("chunk_size"); raw != "" {
		chunkSize, err = strconv.Atoi(raw)
		if err != nil || chunkSize < 1 {
			writeError(w, http.StatusBadRequest, "chunk_size must be a positive integer")
			return
		}
	}
	encrypted, _ := strconv.ParseBool(q.Get("encrypted"))

	est, err := s.codec.EstimateLength(length, chunkSize, encrypted)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{
		TotalChunks: est.TotalChunks,
		ChunkSize:   est.ChunkSize,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
