// Command dyscypliner-watch is an interactive observer client for the hub.
//
// It connects to a running hub over WebSocket, prints every status
// announcement as it arrives, and offers a small command prompt for
// registering new devices. Lost connections are re-dialed automatically
// with exponential backoff.
//
// Usage:
//
//	dyscypliner-watch [flags]
//
// Flags:
//
//	-addr string      Hub address (default "127.0.0.1:8080")
//	-login string     Observer login (default "admin")
//	-password string  Observer password (default "admin")
//
// Commands at the prompt:
//
//	devices           Print the current device roster
//	adddev <name>     Register a new device
//	help              Show help
//	exit              Quit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dyscypliner/dyscypliner-go/pkg/client"
	"github.com/dyscypliner/dyscypliner-go/pkg/wire"
)

var (
	addr     = flag.String("addr", "127.0.0.1:8080", "Hub address")
	login    = flag.String("login", "admin", "Observer login")
	password = flag.String("password", "admin", "Observer password")
)

func main() {
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "watch> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("Failed to create readline: %v", err)
	}
	defer rl.Close()

	// Route log output through readline so it does not clobber the prompt.
	log.SetOutput(rl.Stdout())
	log.SetFlags(log.Ltime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var c *client.Client
	c, err = client.New(client.Config{
		Addr:          *addr,
		Login:         *login,
		Password:      *password,
		AutoReconnect: true,
		OnAnnouncement: func(ann wire.Announcement) {
			printAnnouncement(rl.Stdout(), c, ann)
		},
		OnStateChange: func(oldState, newState client.State) {
			if newState == client.StateReconnecting || oldState == client.StateReconnecting {
				fmt.Fprintf(rl.Stdout(), "Connection %s\n", newState)
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	if err := c.Open(ctx); err != nil {
		log.Fatalf("Failed to connect to hub at %s: %v", *addr, err)
	}
	defer c.Close()

	fmt.Fprintf(rl.Stdout(), "Connected to %s\n", *addr)
	printHelp(rl.Stdout())

	runPrompt(ctx, cancel, c, rl)
}

func printAnnouncement(out io.Writer, c *client.Client, ann wire.Announcement) {
	switch ann.Kind {
	case wire.AnnounceInit:
		fmt.Fprintf(out, "Hub roster: %d device(s)\n", len(ann.Devices))
	case wire.AnnounceNewDevice:
		fmt.Fprintf(out, "New device %q key=%s status=%s\n",
			ann.Device.Name, ann.Device.ID, ann.Device.Status)
	case wire.AnnounceNewStatus:
		name := ann.Device.ID
		if d, ok := c.Find(ann.Device.ID); ok {
			name = d.Name
		}
		fmt.Fprintf(out, "Device %q is now %s\n", name, ann.Device.Status)
	}
}

// runPrompt is the interactive command loop.
func runPrompt(ctx context.Context, cancel context.CancelFunc, c *client.Client, rl *readline.Instance) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		cmd, args, _ := strings.Cut(input, " ")
		switch strings.ToLower(cmd) {
		case "help", "?":
			printHelp(rl.Stdout())

		case "devices", "list", "ls":
			cmdDevices(c, rl.Stdout())

		case "adddev", "add":
			cmdAddDev(ctx, c, args, rl.Stdout())

		case "exit", "quit", "q":
			cancel()
			return

		default:
			fmt.Fprintf(rl.Stdout(), "Unknown command %q (try help)\n", cmd)
		}
	}
}

func cmdDevices(c *client.Client, out io.Writer) {
	devices := c.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices registered")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(out, "%-16s  %-24s  %s\n", d.ID, d.Name, d.Status)
	}
}

func cmdAddDev(ctx context.Context, c *client.Client, name string, out io.Writer) {
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Fprintln(out, "Usage: adddev <name>")
		return
	}
	if err := c.AddDevice(ctx, name); err != nil {
		fmt.Fprintf(out, "Failed to send: %v\n", err)
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  devices           Print the current device roster")
	fmt.Fprintln(out, "  adddev <name>     Register a new device")
	fmt.Fprintln(out, "  help              Show this help")
	fmt.Fprintln(out, "  exit              Quit")
}
