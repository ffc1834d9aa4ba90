package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Handler exposes the monitor:
//
//	GET /status
//	GET /messages
//	GET /messages/{type}
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", m.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/messages", m.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{type}", m.handleMessage).Methods(http.MethodGet)
	return r
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Status())
}

func (m *Monitor) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Messages())
}

func (m *Monitor) handleMessage(w http.ResponseWriter, r *http.Request) {
	msgType := mux.Vars(r)["type"]
	snapshot, ok := m.Latest(msgType)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no recent " + msgType + " message"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to write response: %v", err)
	}
}

// Serve runs the HTTP API on address until ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "monitor listen on %s", address)
	}
	server := &http.Server{
		Handler:      m.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("monitor listening on %s", ln.Addr())
	if err := server.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}
