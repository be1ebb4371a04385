package commands

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/remotedesk/remotedesk/internal/deviceid"
	"github.com/remotedesk/remotedesk/internal/netconn"
	"github.com/remotedesk/remotedesk/internal/protocol"
	"github.com/remotedesk/remotedesk/internal/session"
	"github.com/remotedesk/remotedesk/internal/webview"
)

var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "View and control a remote machine",
	Long: `Connect to a remotedesk server, render its screen in a local
browser page, and forward mouse/keyboard input from that page back to
the server.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().String("user", "", "Username for authentication (default device ID)")
	connectCmd.Flags().String("password", "", "Password for authentication (prompted when omitted)")
	connectCmd.Flags().Bool("tls", false, "Wrap the connection in TLS")
	connectCmd.Flags().Bool("insecure", false, "Skip TLS certificate verification (testing only)")
	connectCmd.Flags().String("web", "", "Viewer listen address (default "+webview.DefaultAddr+" or $"+webview.EnvAddr+")")
}

func runConnect(cmd *cobra.Command, args []string) error {
	addr := args[0]

	username, _ := cmd.Flags().GetString("user")
	if username == "" {
		id, err := deviceid.GetOrCreate()
		if err != nil {
			return fmt.Errorf("device ID: %w", err)
		}
		username = id
	}

	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}

	manager := netconn.NewManager()
	if useTLS, _ := cmd.Flags().GetBool("tls"); useTLS {
		insecure, _ := cmd.Flags().GetBool("insecure")
		manager.SetTLSConfig(&tls.Config{InsecureSkipVerify: insecure})
	}

	webAddr, _ := cmd.Flags().GetString("web")
	viewer := webview.New(webview.ResolveAddr(webAddr))

	client, err := session.NewClient(manager, viewer, &session.MemClipboard{})
	if err != nil {
		return err
	}

	viewer.OnInput(func(e webview.InputEvent) {
		forwardInput(client, e)
	})
	if err := viewer.Start(); err != nil {
		return err
	}
	defer viewer.Stop()

	if err := client.Connect(addr, username, password); err != nil {
		return err
	}
	defer client.Stop()

	log.Printf("[INFO] connect: session open, press Ctrl-C to disconnect")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-client.Done():
		// Reconnect policy is the operator's call, not ours.
		return fmt.Errorf("disconnected from %s", addr)
	case <-sigCh:
		log.Printf("[INFO] connect: closing session")
		return nil
	}
}

// forwardInput translates browser events into protocol sends. Send
// failures here are per-event and already logged by the lower layers.
func forwardInput(client *session.ClientController, e webview.InputEvent) {
	switch e.Type {
	case "move":
		client.SendMouseMove(e.X, e.Y)
	case "click":
		client.SendMouseClick(e.X, e.Y, e.Button, e.SubAction)
	case "scroll":
		client.SendMouseScroll(e.X, e.Y, e.Amount)
	case "key":
		action := e.Action
		if action == "" {
			action = protocol.KeyPress
		}
		client.SendKey(e.Key, action)
	default:
		log.Printf("[DEBUG] connect: unknown input event type %q", e.Type)
	}
}
