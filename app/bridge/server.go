package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"golang.org/x/crypto/bcrypt"
)

// ServiceType is the mDNS service type announced on the local network so POS
// clients can find the bridge without configuration.
const ServiceType = "_fiscalprint._tcp"

// Config holds the bridge's listen and announce settings.
type Config struct {
	// ListenAddr is the HTTP bind address, e.g. "127.0.0.1:5001".
	ListenAddr string `json:"listen_addr"`

	// TokenHash is the bcrypt hash of the bearer token clients must send.
	// Empty disables authentication (loopback-only deployments).
	TokenHash string `json:"token_hash"`

	// Announce enables mDNS announcement of the bridge on the LAN.
	Announce bool `json:"announce"`

	// InstanceName is the mDNS instance name. Defaults to the hostname.
	InstanceName string `json:"instance_name"`

	Printer PrinterConfig `json:"printer"`
}

// Server is the local print bridge: it accepts base64-encoded command
// streams over HTTP and writes them to the physical printer. One job prints
// at a time; concurrent requests queue on the job mutex.
type Server struct {
	config Config
	http   *http.Server
	mdns   *zeroconf.Server

	printMu sync.Mutex
}

type printRequest struct {
	Data string `json:"data"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewServer creates a bridge server for config.
func NewServer(config Config) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:5001"
	}
	s := &Server{config: config}

	mux := http.NewServeMux()
	mux.HandleFunc("/print", s.handlePrint)
	mux.HandleFunc("/health", s.handleHealth)

	s.http = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Start begins serving and, when configured, announces the bridge over mDNS.
// It blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("error binding bridge listener: %w", err)
	}

	if s.config.Announce {
		if err := s.announce(ln); err != nil {
			log.Printf("[WARNING] mDNS announce failed: %v", err)
		}
	}

	log.Printf("[INFO] Print bridge listening on %s", s.config.ListenAddr)
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("bridge server error: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and withdraws the mDNS announcement.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.mdns != nil {
		s.mdns.Shutdown()
		s.mdns = nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) announce(ln net.Listener) error {
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("unexpected listener address type %T", ln.Addr())
	}

	instance := s.config.InstanceName
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "fiscal-bridge"
		}
		instance = host
	}

	mdns, err := zeroconf.Register(instance, ServiceType, "local.", addr.Port,
		[]string{"version=1"}, nil)
	if err != nil {
		return err
	}
	s.mdns = mdns
	log.Printf("[INFO] Announced %s as %s on port %d", ServiceType, instance, addr.Port)
	return nil
}

// authorize validates the bearer token against the configured bcrypt hash.
func (s *Server) authorize(r *http.Request) bool {
	if s.config.TokenHash == "" {
		return true
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.config.TokenHash), []byte(token)) == nil
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "error", Error: "method not allowed"})
		return
	}
	if !s.authorize(r) {
		writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "error", Error: "unauthorized"})
		return
	}

	var req printRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: "invalid JSON body"})
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: "invalid base64 data"})
		return
	}
	if len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: "empty print job"})
		return
	}

	if err := s.print(raw); err != nil {
		log.Printf("[ERROR] Print job failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "error", Error: err.Error()})
		return
	}

	log.Printf("[INFO] Print job completed (%d bytes)", len(raw))
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// print writes one job to the printer. The mutex serializes jobs so two
// receipts never interleave on the wire.
func (s *Server) print(raw []byte) error {
	s.printMu.Lock()
	defer s.printMu.Unlock()

	conn, err := openPrinter(&s.config.Printer)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(raw); err != nil {
		return fmt.Errorf("error writing to printer: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body statusResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// HashToken produces the bcrypt hash to store in Config.TokenHash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("error hashing token: %w", err)
	}
	return string(hash), nil
}
