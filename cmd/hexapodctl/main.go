package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hexapodctl/config"
	"hexapodctl/control"
	"hexapodctl/logbuf"
	"hexapodctl/network"
	"hexapodctl/protocol"
	"hexapodctl/radio"
	"hexapodctl/storage"
)

// responseWindow is how long one-shot commands wait for acknowledgments
// before printing the log and disconnecting.
const responseWindow = 750 * time.Millisecond

var (
	flagAddress string
	flagPort    int
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hexapodctl",
	Short: "Discover and drive a hexapod robot over network or radio",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Locate the robot on the configured transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, cleanup, err := buildController()
		if err != nil {
			return err
		}
		defer cleanup()

		device, ok := controller.DiscoverRobot(cmd.Context())
		if !ok {
			fmt.Println(controller.LastError())
			return nil
		}

		fmt.Printf("Found %s at %s", device.DisplayName, device.Address)
		if device.Port > 0 {
			fmt.Printf(":%d", device.Port)
		}
		fmt.Println()
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <init|forward|backward|left|right>",
	Short: "Connect, send one command, print the responses, disconnect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := protocol.ParseCommand(args[0])
		if err != nil {
			return err
		}

		controller, cleanup, err := buildController()
		if err != nil {
			return err
		}
		defer cleanup()

		if !connectTarget(cmd.Context(), controller) {
			return fmt.Errorf("%s", controller.LastError())
		}

		// init was already sent by connect; don't repeat it.
		if command != protocol.CommandInit {
			controller.SendCommand(command)
		}
		time.Sleep(responseWindow)

		printEntries(controller.LogSnapshot())
		controller.Disconnect()
		return nil
	},
}

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Connect and drive interactively (w/s/a/d, i=init, l=log, c=clear log, q=quit)",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, cleanup, err := buildController()
		if err != nil {
			return err
		}
		defer cleanup()

		if !connectTarget(cmd.Context(), controller) {
			return fmt.Errorf("%s", controller.LastError())
		}
		fmt.Println("Connected. w/s/a/d to move, i=init, l=log, c=clear log, q=quit.")

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			switch strings.TrimSpace(scanner.Text()) {
			case "w":
				controller.Forward()
			case "s":
				controller.Backward()
			case "a":
				controller.Left()
			case "d":
				controller.Right()
			case "i":
				controller.SendCommand(protocol.CommandInit)
			case "l":
				printEntries(controller.LogSnapshot())
			case "c":
				controller.ClearLog()
			case "q":
				controller.Disconnect()
				return nil
			case "":
			default:
				fmt.Println("unknown key (w/s/a/d, i, l, c, q)")
			}
			if msg := controller.LastError(); msg != "" {
				fmt.Println(msg)
			}
		}

		controller.Disconnect()
		return scanner.Err()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent connection sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfgPath, err := config.LoadOrCreate()
		if err != nil {
			return err
		}

		store, _, err := storage.Open(filepath.Dir(cfgPath))
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.RecentSessions(20)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions recorded")
			return nil
		}

		for _, session := range sessions {
			end := "open"
			if !session.EndedAt.IsZero() {
				end = session.EndedAt.Format(time.TimeOnly)
			}
			fmt.Printf("%s  %-7s %-20s %s  %s - %s\n",
				session.StartedAt.Format(time.DateTime), session.Transport,
				session.DeviceName, session.DeviceAddress,
				session.StartedAt.Format(time.TimeOnly), end)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	for _, cmd := range []*cobra.Command{sendCmd, driveCmd} {
		cmd.Flags().StringVar(&flagAddress, "address", "", "connect to this address instead of discovering")
		cmd.Flags().IntVar(&flagPort, "port", network.DefaultPort, "port for --address (network transport)")
	}
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildController assembles the transport fixed by configuration, the
// optional history store, and the controller over them.
func buildController() (*control.Controller, func(), error) {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return nil, nil, err
	}

	var store *storage.Store

	controlCfg := control.Config{
		TransportLabel: cfg.Transport,
		LogCapacity:    cfg.LogCapacity,
	}

	switch cfg.Transport {
	case config.TransportRadio:
		adapter, err := radio.NewSystemAdapter(radio.AdapterConfig{
			AdapterPath: cfg.AdapterPath,
			Channel:     cfg.RFCOMMChannel,
		})
		if err != nil {
			return nil, nil, err
		}
		radioDiscovery, err := radio.NewDiscovery(radio.DiscoveryConfig{
			NameFilter: cfg.DeviceNameFilter,
			Adapter:    adapter,
		})
		if err != nil {
			return nil, nil, err
		}
		radioConn, err := radio.NewConn(radio.ConnConfig{
			Adapter:        adapter,
			SerialPortPath: cfg.SerialPortPath,
		})
		if err != nil {
			return nil, nil, err
		}
		controlCfg.Discovery = radioDiscovery
		controlCfg.Connection = radioConn
	default:
		networkDiscovery, err := network.NewDiscovery(network.DiscoveryConfig{
			Service:  cfg.ServiceName,
			Domain:   cfg.Domain,
			Hostname: cfg.Hostname,
			Port:     cfg.Port,
		})
		if err != nil {
			return nil, nil, err
		}
		controlCfg.Discovery = networkDiscovery
		controlCfg.Connection = network.NewConn(network.ConnConfig{})
	}

	if cfg.HistoryEnabled {
		store, _, err = storage.Open(filepath.Dir(cfgPath))
		if err != nil {
			slog.Warn("history store unavailable", "error", err)
			store = nil
		}
		controlCfg.History = store
	}

	controller, err := control.New(controlCfg)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		controller.Close()
		if store != nil {
			_ = store.Close()
		}
	}
	return controller, cleanup, nil
}

// connectTarget connects to --address when given, otherwise discovers first.
func connectTarget(ctx context.Context, controller *control.Controller) bool {
	if flagAddress != "" {
		return controller.ConnectToManualAddress(ctx, flagAddress, flagPort)
	}

	device, ok := controller.DiscoverRobot(ctx)
	if !ok {
		return false
	}
	return controller.ConnectToDevice(ctx, device)
}

func printEntries(entries []logbuf.Entry) {
	if len(entries) == 0 {
		fmt.Println("log is empty")
		return
	}
	for _, entry := range entries {
		fmt.Printf("[%s] %-7s %s\n",
			entry.Timestamp.Format("15:04:05.000"), entry.Level, entry.Message)
	}
}
