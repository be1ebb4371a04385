package commands

import (
	"fmt"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/remotedesk/remotedesk/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List remotedesk servers announcing on the LAN",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().Duration("wait", 6*time.Second, "How long to listen for announcements")
	discoverCmd.Flags().Int("port", discovery.DefaultPort, "UDP discovery port")
}

// collectingCallback accumulates announcements, newest wins.
type collectingCallback struct {
	mu      sync.Mutex
	servers map[string]discovery.ServerAnnounce
}

func (c *collectingCallback) OnServerFound(s *discovery.ServerAnnounce) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[s.DeviceID] = *s
}

func (c *collectingCallback) OnServerLost(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.servers, id)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	wait, _ := cmd.Flags().GetDuration("wait")
	port, _ := cmd.Flags().GetInt("port")

	cb := &collectingCallback{servers: make(map[string]discovery.ServerAnnounce)}
	svc := discovery.NewService(port, nil, cb)
	if err := svc.Start(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Listening for servers for %s...\n", wait)
	time.Sleep(wait)
	svc.Stop()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if len(cb.servers) == 0 {
		fmt.Println("No servers found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tTLS\tDEVICE")
	for _, s := range cb.servers {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", s.Name, s.Addr, s.TLS, discovery.ShortID(s.DeviceID))
	}
	return w.Flush()
}
