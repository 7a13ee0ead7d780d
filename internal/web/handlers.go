package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Overrides holds capture parameters that can override config defaults.
type Overrides struct {
	ExposureMs float64 `json:"exposure_ms"`
	FrameRate  float64 `json:"framerate"`
	ShiftBits  int     `json:"shift_bits"`
}

// RunCaptureFunc runs one capture with the given overrides.
// It is called from the POST /run handler in a goroutine.
type RunCaptureFunc func(ctx context.Context, overrides Overrides) error

// FormConfig holds default values for the capture form (from config).
type FormConfig struct {
	ExposureMs float64 `json:"exposure_ms"`
	FrameRate  float64 `json:"framerate"`
	ShiftBits  int     `json:"shift_bits"`
}

// LastFiles points at the most recent capture outputs on disk.
type LastFiles struct {
	PNG  string
	JPEG string
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	RunCapture   RunCaptureFunc
	FormDefaults FormConfig
	Last         LastFiles

	runningMu sync.Mutex
	running   bool
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If runCapture is nil, POST /run will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, runCapture RunCaptureFunc, formDefaults FormConfig, last LastFiles, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		RunCapture:   runCapture,
		FormDefaults: formDefaults,
		Last:         last,
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start a capture.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var overrides Overrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if overrides.ExposureMs <= 0 || overrides.ExposureMs > 10000 {
		http.Error(w, "exposure_ms must be between 0 and 10000", http.StatusBadRequest)
		return
	}
	if overrides.FrameRate <= 0 || overrides.FrameRate > 1000 {
		http.Error(w, "framerate must be between 0 and 1000", http.StatusBadRequest)
		return
	}
	if overrides.ShiftBits < 0 || overrides.ShiftBits > 15 {
		http.Error(w, "shift_bits must be between 0 and 15", http.StatusBadRequest)
		return
	}

	if h.RunCapture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	h.running = true
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		ctx := context.Background()
		if err := h.RunCapture(ctx, overrides); err != nil {
			h.Broadcaster.Broadcast("error", "Capture failed: "+err.Error())
			log.Printf("capture failed: %v", err)
		} else {
			h.Broadcaster.Broadcast("info", "Capture complete")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleLastPNG serves the most recent full-depth PNG capture.
func (h *Handlers) HandleLastPNG(w http.ResponseWriter, r *http.Request) {
	h.serveLast(w, r, h.Last.PNG)
}

// HandleLastJPEG serves the most recent 8-bit JPEG capture.
func (h *Handlers) HandleLastJPEG(w http.ResponseWriter, r *http.Request) {
	h.serveLast(w, r, h.Last.JPEG)
}

func (h *Handlers) serveLast(w http.ResponseWriter, r *http.Request, path string) {
	if path == "" {
		http.Error(w, "not configured", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "no capture yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
