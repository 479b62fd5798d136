package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/metrics"
	"walletsync/pkg/models"
	"walletsync/pkg/stores"
	"walletsync/pkg/watcher"
)

const (
	writeTimeout = 5 * time.Second
	maxBodyBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	watcher *watcher.Watcher
	nfts    *stores.NFTRegistry
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
	log     *logrus.Entry
}

// NewServer builds the API. The NFT routes are served only when nfts is not
// nil.
func NewServer(w *watcher.Watcher, nfts *stores.NFTRegistry) *Server {
	s := &Server{
		watcher: w,
		nfts:    nfts,
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
		log:     logger.For("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/active", s.handleActive)
	s.mux.HandleFunc("/ws", s.handleWS)
	if s.nfts != nil {
		s.mux.HandleFunc("/api/nfts", s.handleNFTs)
		s.mux.HandleFunc("/api/nfts/visibility", s.handleVisibility)
	}
	s.mux.Handle("/metrics", metrics.Handler())
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	return metrics.InstrumentHandler(s.mux)
}

// Start serves on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	sub := s.watcher.Subscribe()
	go s.listenToWatcher(sub)
	defer s.watcher.Unsubscribe(sub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.log.WithField("port", port).Info("API server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.watcher.Status())
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := walletFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.watcher.SetActive(id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.WithField("wallet", id.String()).Info("active wallet switched over API")
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": id})
}

// handleNFTs returns the wallet's visible NFTs on GET and replaces its
// collection with the request body on PUT.
func (s *Server) handleNFTs(w http.ResponseWriter, r *http.Request) {
	id, err := walletFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	switch r.Method {
	case http.MethodGet:
		nfts, err := s.nfts.Visible(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"wallet": id, "nfts": nfts})
	case http.MethodPut:
		var nfts []models.NFT
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&nfts); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid NFT list: " + err.Error()})
			return
		}
		if err := s.nfts.SetNFTs(id, nfts); err != nil {
			writeStoreError(w, err)
			return
		}
		s.log.WithFields(logrus.Fields{"wallet": id.String(), "count": len(nfts)}).Info("NFT collection replaced over API")
		writeJSON(w, http.StatusOK, map[string]interface{}{"wallet": id, "count": len(nfts)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVisibility sets or resets the visibility of an NFT or collection.
// Query: item, scope=single|collection, state=visible|hidden|reset.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := walletFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	q := r.URL.Query()
	if q.Get("item") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item is required"})
		return
	}
	item := models.SingleItem(q.Get("item"))
	switch q.Get("scope") {
	case "", string(models.NFTItemSingle):
	case string(models.NFTItemCollection):
		item = models.CollectionItem(q.Get("item"))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scope must be single or collection"})
		return
	}
	var v models.VisibilityState
	switch q.Get("state") {
	case string(models.VisibilityVisible), string(models.VisibilityHidden):
		v = models.VisibilityState(q.Get("state"))
	case "reset":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "state must be visible, hidden or reset"})
		return
	}

	if err := s.nfts.SetVisibility(id, item, v); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wallet": id, "item": item, "state": q.Get("state")})
}

func walletFromQuery(r *http.Request) (models.WalletIdentity, error) {
	q := r.URL.Query()
	wallet, err := models.NewWallet(q.Get("address"), models.WalletKind(q.Get("kind")), models.Network(q.Get("network")), "")
	if err != nil {
		return models.WalletIdentity{}, err
	}
	return wallet.Identity(), nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, stores.ErrWalletNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Register and send the initial state under the same lock so no
	// broadcast can overtake it.
	s.mu.Lock()
	s.clients[conn] = true
	metrics.WebsocketClientConnected()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteJSON(watcher.Event{Type: "initial", Data: s.watcher.Status()})
	s.mu.Unlock()

	defer s.removeClient(conn)
	if err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[conn] {
		delete(s.clients, conn)
		metrics.WebsocketClientDisconnected()
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		_ = client.Close()
		delete(s.clients, client)
		metrics.WebsocketClientDisconnected()
	}
}

func (s *Server) listenToWatcher(sub watcher.Subscriber) {
	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteJSON(event); err != nil {
			s.log.WithError(err).Debug("dropping websocket client")
			_ = client.Close()
			delete(s.clients, client)
			metrics.WebsocketClientDisconnected()
		}
	}
}
