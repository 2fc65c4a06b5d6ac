package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hpetrik/chatproto/internal/client"
	"github.com/hpetrik/chatproto/internal/logging"
)

var (
	flagHost      string
	flagPort      int
	flagTransport string
	flagConfig    string
	flagTimeoutMS int
	flagRetries   int
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "chatproto",
	Short: "Console chat client speaking the dual-transport chat protocol",
	Long: `chatproto connects to a chat server over TCP or UDP and runs an
interactive console session.

Over TCP messages travel as CRLF-terminated text lines. Over UDP each
message is a binary datagram that the client retransmits until the
server confirms it, with duplicate suppression on the inbound side.

Type /help inside a session for the command listing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.ConfigureRuntime(flagVerbose)

		cfg, err := loadRunConfig(flagConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("server") {
			cfg.Host = flagHost
		}
		if cmd.Flags().Changed("port") {
			if flagPort < 1 || flagPort > 65535 {
				return fmt.Errorf("port out of range: %d", flagPort)
			}
			cfg.Port = uint16(flagPort)
		}
		if cmd.Flags().Changed("transport") {
			t := strings.ToLower(flagTransport)
			if t != "tcp" && t != "udp" {
				return fmt.Errorf("unknown transport: %q", flagTransport)
			}
			cfg.Transport = t
		}
		if cmd.Flags().Changed("timeout") {
			if flagTimeoutMS < 1 {
				return fmt.Errorf("timeout must be positive: %d", flagTimeoutMS)
			}
			cfg.Client.ConfirmTimeout = time.Duration(flagTimeoutMS) * time.Millisecond
		}
		if cmd.Flags().Changed("retries") {
			if flagRetries < 0 {
				return fmt.Errorf("retries must not be negative: %d", flagRetries)
			}
			cfg.Client.MaxRetries = flagRetries
		}
		return run(cmd.Context(), cfg)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatproto: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&flagHost, "server", "s", "localhost", "server hostname or address")
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 4567, "server port")
	rootCmd.Flags().StringVarP(&flagTransport, "transport", "t", "tcp", "transport to use (tcp or udp)")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to a TOML config file")
	rootCmd.Flags().IntVarP(&flagTimeoutMS, "timeout", "d", 250, "UDP confirm timeout per attempt, in milliseconds")
	rootCmd.Flags().IntVarP(&flagRetries, "retries", "r", 3, "UDP retransmissions after the first attempt")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func run(ctx context.Context, cfg runConfig) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))
	log := logging.New("chatproto")

	var transport client.ProtocolTransport
	switch cfg.Transport {
	case "tcp":
		t, err := client.DialStream(ctx, addr, cfg.Client, logging.New("stream"))
		if err != nil {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		transport = t
	case "udp":
		t, err := client.DialDatagram(ctx, addr, cfg.Client, logging.New("datagram"))
		if err != nil {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		transport = t
	default:
		return fmt.Errorf("unknown transport: %q", cfg.Transport)
	}

	engine := client.New(transport, cfg.Client, log)
	log.Info().Str("addr", addr).Str("transport", cfg.Transport).Msg("connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		renderLoop(gctx, engine, os.Stdout)
		return nil
	})
	g.Go(func() error {
		inputLoop(gctx, engine, os.Stdin)
		return nil
	})
	return g.Wait()
}

// renderLoop prints normalized messages and faults until the engine is done.
func renderLoop(ctx context.Context, engine *client.Client, out *os.File) {
	for {
		select {
		case msg := <-engine.Events():
			fmt.Fprintln(out, renderMessage(msg))
		case fault := <-engine.Faults():
			fmt.Fprintln(out, errorStyle.Render("ERROR:"), fault.Error())
		case <-engine.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// inputLoop reads console lines and turns them into engine calls. The reader
// runs detached because stdin has no cancellation hook; the loop itself
// returns as soon as the engine or context finishes.
func inputLoop(ctx context.Context, engine *client.Client, src *os.File) {
	displayName := ""
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(src)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case line, ok = <-lines:
			if !ok {
				engine.Disconnect()
				return
			}
		case <-engine.Done():
			return
		case <-ctx.Done():
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		in, err := parseInput(line)
		if err != nil {
			fmt.Println(noticeStyle.Render(err.Error()))
			continue
		}
		switch in.Kind {
		case inputHelp:
			fmt.Println(helpText)
		case inputRename:
			displayName = in.DisplayName
			fmt.Println(noticeStyle.Render("display name set to " + displayName))
		case inputAuth:
			displayName = in.DisplayName
			err = engine.SendAuthenticate(ctx, in.Username, in.DisplayName, in.Secret)
		case inputJoin:
			err = engine.SendJoin(ctx, in.Channel, displayName)
		case inputMessage:
			err = engine.SendChatMessage(ctx, displayName, in.Content)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Println(noticeStyle.Render(err.Error()))
		}
	}
}
