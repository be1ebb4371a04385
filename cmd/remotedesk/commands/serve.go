package commands

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remotedesk/remotedesk/internal/capture"
	"github.com/remotedesk/remotedesk/internal/config"
	"github.com/remotedesk/remotedesk/internal/deviceid"
	"github.com/remotedesk/remotedesk/internal/discovery"
	"github.com/remotedesk/remotedesk/internal/netconn"
	"github.com/remotedesk/remotedesk/internal/session"
	"github.com/remotedesk/remotedesk/internal/webrtcstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Share this machine's screen and accept remote input",
	Long: `Start the remotedesk server: capture the display at the configured
rate, stream compressed frames to connected viewers, and inject the
mouse/keyboard events they send back.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "TCP port to listen on (default from config, then 50000)")
	serveCmd.Flags().Int("fps", 0, "Capture rate, 1-60")
	serveCmd.Flags().Int("quality", 0, "JPEG quality, 1-100")
	serveCmd.Flags().Int("display", 0, "Display index to capture")
	serveCmd.Flags().String("region", "", "Capture region as x,y,w,h (default full display)")
	serveCmd.Flags().String("cert", "", "TLS certificate file (enables TLS with --key)")
	serveCmd.Flags().String("key", "", "TLS key file")
	serveCmd.Flags().Bool("announce", false, "Broadcast this server on the LAN via UDP")
	serveCmd.Flags().String("name", "", "Server name in discovery announcements (default hostname)")
	serveCmd.Flags().String("webrtc-addr", "", "Also expose a WebRTC signaling endpoint on this HTTP address")
	serveCmd.Flags().Bool("no-change-detection", false, "Send frames even when the screen is unchanged")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	source := &capture.DisplaySource{}
	source.Display, _ = cmd.Flags().GetInt("display")

	capturer := capture.New(source)
	capturer.SetFPS(cfg.FPS)
	capturer.SetQuality(cfg.Quality)
	if noDetect, _ := cmd.Flags().GetBool("no-change-detection"); noDetect {
		capturer.DetectChanges(false)
	}
	if regionSpec, _ := cmd.Flags().GetString("region"); regionSpec != "" {
		region, err := parseRegion(regionSpec)
		if err != nil {
			return err
		}
		capturer.SetRegion(&region)
	}

	manager := netconn.NewManager()
	if cfg.TLS != nil {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS keypair: %w", err)
		}
		manager.SetTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}})
	}

	var auth session.Authenticator
	if cfg.Credentials != nil {
		auth = session.StaticCredentials(cfg.Credentials.Username, cfg.Credentials.Password)
		log.Printf("[INFO] serve: static credential policy active for %q", cfg.Credentials.Username)
	} else {
		log.Printf("[WARN] serve: no credentials configured, accepting any peer")
	}

	server, err := session.NewServer(manager, capturer, session.LogInjector{}, &session.MemClipboard{}, auth)
	if err != nil {
		return err
	}
	if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		return err
	}
	defer server.Stop()

	if cfg.Announce {
		svc, err := startAnnounce(cmd, cfg)
		if err != nil {
			return err
		}
		defer svc.Stop()
	}

	if signalAddr, _ := cmd.Flags().GetString("webrtc-addr"); signalAddr != "" {
		streams := webrtcstream.NewManager(source)
		defer streams.StopAll()
		srv := startSignaling(signalAddr, streams, cfg)
		defer srv.Close()
	}

	// Block until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("[INFO] serve: shutting down")
	return nil
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}
	if fps, _ := cmd.Flags().GetInt("fps"); fps != 0 {
		cfg.FPS = fps
	}
	if quality, _ := cmd.Flags().GetInt("quality"); quality != 0 {
		cfg.Quality = quality
	}
	if announce, _ := cmd.Flags().GetBool("announce"); announce {
		cfg.Announce = true
	}
	cert, _ := cmd.Flags().GetString("cert")
	key, _ := cmd.Flags().GetString("key")
	if cert != "" && key != "" {
		cfg.TLS = &config.TLSConfig{CertFile: cert, KeyFile: key}
	}
}

func startAnnounce(cmd *cobra.Command, cfg *config.Config) (*discovery.Service, error) {
	id, err := deviceid.GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("device ID: %w", err)
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name, _ = os.Hostname()
	}

	announce := &discovery.ServerAnnounce{
		DeviceID: id,
		Name:     name,
		Addr:     fmt.Sprintf(":%d", cfg.Port),
		TLS:      cfg.TLS != nil,
	}
	svc := discovery.NewService(discovery.DefaultPort, announce, noopCallback{})
	if err := svc.Start(); err != nil {
		return nil, err
	}
	return svc, nil
}

// noopCallback satisfies discovery.Callback for announce-only servers.
type noopCallback struct{}

func (noopCallback) OnServerFound(*discovery.ServerAnnounce) {}
func (noopCallback) OnServerLost(string)                     {}

// startSignaling exposes the two-request WebRTC handshake: POST
// /webrtc/offer returns {stream_id, sdp}; POST /webrtc/answer with the
// browser's answer completes the stream.
func startSignaling(addr string, streams *webrtcstream.Manager, cfg *config.Config) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/webrtc/offer", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		streamID, sdp, err := streams.Start(cfg.FPS, cfg.Quality)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"stream_id": streamID, "sdp": sdp})
	})

	mux.HandleFunc("/webrtc/answer", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			StreamID string `json:"stream_id"`
			SDP      string `json:"sdp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := streams.Complete(req.StreamID, req.SDP); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("[INFO] serve: WebRTC signaling on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] serve: signaling server: %v", err)
		}
	}()
	return srv
}

func parseRegion(spec string) (image.Rectangle, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("region must be x,y,w,h, got %q", spec)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("region component %q is not a number", p)
		}
		vals[i] = v
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("region size must be positive, got %dx%d", vals[2], vals[3])
	}
	return image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]), nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}
