package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shelf/internal/keypath"
	"shelf/internal/move"
	"shelf/internal/notify"
	"shelf/internal/ui"
	"shelf/pkg/storage"
)

const (
	// maxJSONBody bounds request bodies of the JSON endpoints.
	maxJSONBody = 1 << 20

	// customMetaPrefix marks upload headers stored as custom metadata.
	customMetaPrefix = "X-Shelf-Meta-"
)

// HTTPMetadata mirrors the descriptive headers stored with an object.
type HTTPMetadata struct {
	ContentType        string `json:"contentType,omitempty"`
	CacheControl       string `json:"cacheControl,omitempty"`
	ContentDisposition string `json:"contentDisposition,omitempty"`
	ContentEncoding    string `json:"contentEncoding,omitempty"`
	ContentLanguage    string `json:"contentLanguage,omitempty"`
}

// ObjectEntry is one element of the /api/list response.
type ObjectEntry struct {
	Key            string            `json:"key"`
	Size           int64             `json:"size"`
	Uploaded       string            `json:"uploaded"`
	ETag           string            `json:"etag,omitempty"`
	HTTPMetadata   HTTPMetadata      `json:"httpMetadata"`
	CustomMetadata map[string]string `json:"customMetadata,omitempty"`
}

func newObjectEntry(info storage.ObjectInfo) ObjectEntry {
	return ObjectEntry{
		Key:      info.Key,
		Size:     info.Size,
		Uploaded: info.Uploaded.UTC().Format(time.RFC3339Nano),
		ETag:     info.ETag,
		HTTPMetadata: HTTPMetadata{
			ContentType:        info.ContentType,
			CacheControl:       info.CacheControl,
			ContentDisposition: info.ContentDisposition,
			ContentEncoding:    info.ContentEncoding,
			ContentLanguage:    info.ContentLanguage,
		},
		CustomMetadata: info.Custom,
	}
}

type deleteRequest struct {
	Keys []string `json:"keys"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

type createFolderRequest struct {
	FolderName string `json:"folderName"`
	// Prefix optionally nests the new folder inside an existing one.
	Prefix string `json:"prefix"`
}

type moveRequest struct {
	OldKey string `json:"oldKey"`
	NewKey string `json:"newKey"`
}

// isValidObjectKey enforces basic object key constraints: non-empty,
// at most 1024 bytes, and no control characters.
func isValidObjectKey(key string) bool {
	if len(key) == 0 || len(key) > 1024 {
		return false
	}

	return !strings.ContainsFunc(key, func(c rune) bool {
		return c < 0x20 || c == 0x7f
	})
}

// isRoutableKey reports whether key is valid and survives request path
// cleaning unchanged, so the object can later be fetched by its URL. Empty,
// "." and ".." segments are rejected; a trailing slash marks a folder.
func isRoutableKey(key string) bool {
	if !isValidObjectKey(key) {
		return false
	}

	for _, seg := range strings.Split(strings.TrimSuffix(key, keypath.Separator), keypath.Separator) {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// decodeJSON reads a single JSON document from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON document")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.FileManagerPage(ui.Page{Title: s.cfg.Title}).Render(r.Context(), w); err != nil {
		slog.Error("failed to render file manager page", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	writeAPIError(w, CodeNotFound, "API endpoint not found.", r.URL.Path, http.StatusNotFound)
}

// handleList returns every object under the optional prefix query
// parameter, following pagination to the end of the listing.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	objects, err := storage.ListAll(r.Context(), s.store, prefix, s.cfg.Move.PageSize)
	if err != nil {
		writeInternalError(w, r, "list objects", err)
		return
	}

	entries := make([]ObjectEntry, 0, len(objects))
	for _, obj := range objects {
		entries = append(entries, newObjectEntry(obj))
	}
	writeJSON(w, http.StatusOK, entries)
}

func uploadMetadata(h http.Header) storage.Metadata {
	meta := storage.Metadata{
		ContentType:        h.Get("Content-Type"),
		CacheControl:       h.Get("Cache-Control"),
		ContentDisposition: h.Get("Content-Disposition"),
		ContentEncoding:    h.Get("Content-Encoding"),
		ContentLanguage:    h.Get("Content-Language"),
	}

	for name, values := range h {
		if len(values) == 0 || !strings.HasPrefix(name, customMetaPrefix) {
			continue
		}
		if meta.Custom == nil {
			meta.Custom = make(map[string]string)
		}
		meta.Custom[strings.ToLower(strings.TrimPrefix(name, customMetaPrefix))] = values[0]
	}
	return meta
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeAPIError(w, CodeBadRequest, "Filename missing.", r.URL.Path, http.StatusBadRequest)
		return
	}
	if !isRoutableKey(key) {
		writeAPIError(w, CodeBadRequest, "The specified key is not valid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	// Reject on the declared length before reading or storing anything.
	limit := s.cfg.MaxUploadBytes
	if r.ContentLength > limit {
		writeAPIError(w, CodePayloadTooLarge,
			fmt.Sprintf("Upload of %d bytes exceeds the limit of %d bytes.", r.ContentLength, limit),
			r.URL.Path, http.StatusRequestEntityTooLarge)
		return
	}

	// Chunked bodies have an unknown length and cannot be proven empty.
	if keypath.IsFolder(key) && r.ContentLength != 0 {
		writeAPIError(w, CodeBadRequest, "Folder markers must be empty; use create-folder.", r.URL.Path, http.StatusBadRequest)
		return
	}

	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	info, err := s.store.Put(r.Context(), key, body, r.ContentLength, uploadMetadata(r.Header))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, CodePayloadTooLarge,
				fmt.Sprintf("Upload exceeds the limit of %d bytes.", limit),
				r.URL.Path, http.StatusRequestEntityTooLarge)
			return
		}
		writeInternalError(w, r, "put object", err)
		return
	}

	s.events.Publish(notify.NewEvent(notify.KindUpload, key, "", 1))
	writeJSON(w, http.StatusCreated, newObjectEntry(info))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, CodeBadRequest, "Invalid JSON format.", r.URL.Path, http.StatusBadRequest)
		return
	}
	if len(req.Keys) == 0 {
		writeAPIError(w, CodeBadRequest, "Keys array is required.", r.URL.Path, http.StatusBadRequest)
		return
	}
	for _, key := range req.Keys {
		if !isValidObjectKey(key) {
			writeAPIError(w, CodeBadRequest, fmt.Sprintf("Invalid key %q.", key), r.URL.Path, http.StatusBadRequest)
			return
		}
	}

	if err := s.store.Delete(r.Context(), req.Keys); err != nil {
		writeInternalError(w, r, "delete objects", err)
		return
	}

	s.events.Publish(notify.NewEvent(notify.KindDelete, req.Keys[0], "", len(req.Keys)))
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: len(req.Keys)})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, CodeBadRequest, "Invalid JSON format.", r.URL.Path, http.StatusBadRequest)
		return
	}

	if req.FolderName == "" || strings.Contains(req.FolderName, keypath.Separator) {
		writeAPIError(w, CodeBadRequest, "Folder name must be non-empty and must not contain '/'.", r.URL.Path, http.StatusBadRequest)
		return
	}
	if req.Prefix != "" && !keypath.IsFolder(req.Prefix) {
		writeAPIError(w, CodeBadRequest, "Prefix must end with '/'.", r.URL.Path, http.StatusBadRequest)
		return
	}

	key := req.Prefix + req.FolderName + keypath.Separator
	if !isRoutableKey(key) {
		writeAPIError(w, CodeBadRequest, "The specified folder name is not valid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	_, err := s.store.Head(ctx, key)
	switch {
	case err == nil:
		writeAPIError(w, CodeConflict, fmt.Sprintf("Folder %q already exists.", key), r.URL.Path, http.StatusConflict)
		return
	case !errors.Is(err, storage.ErrNotFound):
		writeInternalError(w, r, "check folder marker", err)
		return
	}

	info, err := s.store.Put(ctx, key, strings.NewReader(""), 0, storage.Metadata{ContentType: "application/x-directory"})
	if err != nil {
		writeInternalError(w, r, "create folder marker", err)
		return
	}

	s.events.Publish(notify.NewEvent(notify.KindCreateFolder, key, "", 1))
	writeJSON(w, http.StatusCreated, newObjectEntry(info))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, CodeBadRequest, "Invalid JSON format.", r.URL.Path, http.StatusBadRequest)
		return
	}
	if req.OldKey == "" || req.NewKey == "" {
		writeAPIError(w, CodeBadRequest, "Both oldKey and newKey are required.", r.URL.Path, http.StatusBadRequest)
		return
	}
	// Existing keys only need to be addressable by name; new keys must also
	// stay downloadable.
	if !isValidObjectKey(req.OldKey) {
		writeAPIError(w, CodeBadRequest, "The specified key is not valid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	newKey, err := move.Validate(req.OldKey, req.NewKey)
	if err != nil {
		writeAPIError(w, CodeBadRequest, err.Error(), r.URL.Path, http.StatusBadRequest)
		return
	}
	if !isRoutableKey(newKey) {
		writeAPIError(w, CodeBadRequest, "The specified key is not valid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	res, err := s.engine.Move(r.Context(), req.OldKey, newKey)
	if err != nil {
		var partial *move.PartialFailureError
		switch {
		case errors.Is(err, move.ErrInvalidArgument):
			writeAPIError(w, CodeBadRequest, err.Error(), r.URL.Path, http.StatusBadRequest)
		case errors.Is(err, move.ErrNotFound):
			writeAPIError(w, CodeNotFound, "Object not found", req.OldKey, http.StatusNotFound)
		case errors.As(err, &partial):
			writeJSON(w, http.StatusInternalServerError, APIError{
				Code:      CodePartialFailure,
				Message:   partial.Error(),
				Resource:  req.OldKey,
				Succeeded: partial.Succeeded,
				Failed:    partial.Failed,
			})
		default:
			writeInternalError(w, r, "move", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleDownload streams an object's payload with caching headers.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if keypath.IsFolder(key) {
		writeAPIError(w, CodeBadRequest, "Folders cannot be downloaded.", r.URL.Path, http.StatusBadRequest)
		return
	}

	obj, err := s.store.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		writeAPIError(w, CodeNotFound, "Object Not Found", r.URL.Path, http.StatusNotFound)
		return
	}
	if err != nil {
		writeInternalError(w, r, "get object", err)
		return
	}
	defer obj.Body.Close()

	info := obj.Info
	h := w.Header()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	cacheControl := info.CacheControl
	if cacheControl == "" {
		cacheControl = s.cfg.CacheControl
	}
	h.Set("Cache-Control", cacheControl)

	if info.ETag != "" {
		h.Set("ETag", fmt.Sprintf("\"%s\"", strings.Trim(info.ETag, "\"")))
	}
	if info.ContentDisposition != "" {
		h.Set("Content-Disposition", info.ContentDisposition)
	}
	if info.ContentEncoding != "" {
		h.Set("Content-Encoding", info.ContentEncoding)
	}
	if info.ContentLanguage != "" {
		h.Set("Content-Language", info.ContentLanguage)
	}

	// Seekable payloads get conditional and range request handling.
	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, keypath.BaseName(key), info.Uploaded, rs)
		return
	}

	if !info.Uploaded.IsZero() {
		h.Set("Last-Modified", info.Uploaded.UTC().Format(http.TimeFormat))
	}
	if info.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Error("stream object", "key", key, "err", err)
	}
}
