package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var flagWhoAmI bool

var watchCmd = &cobra.Command{
	Use:   "watch <panel-id>",
	Short: "Join a panel and print every signaling event",
	Long: `Join a panel as the token's user and print every frame the relay sends.

Examples:
  panelctl watch demo --token alice-token
  panelctl watch demo -s https://relay.example.org --whoami`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()
		return watch(ctx, cmd.OutOrStdout(), args[0])
	},
}

func init() {
	watchCmd.Flags().BoolVar(&flagWhoAmI, "whoami", false, "ask the relay who we are after joining")
}

// wsURL maps the relay base URL to the panel's websocket endpoint.
func wsURL(server, panel, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	base := strings.TrimSuffix(u.Path, "/") + "/ws/voice/panel/"
	u.Path = base + panel + "/"
	u.RawPath = base + url.PathEscape(panel) + "/"
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func watch(ctx context.Context, out io.Writer, panel string) error {
	target, err := wsURL(flagServer, panel, flagToken)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if flagWhoAmI {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"whoami"}`)); err != nil {
			return fmt.Errorf("whoami: %w", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			fmt.Fprintf(out, "%s %s\n", time.Now().Format("15:04:05.000"), data)
		}
	}()

	select {
	case err := <-done:
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			fmt.Fprintf(out, "closed by relay: %d %s\n", ce.Code, ce.Text)
			return nil
		}
		return err
	case <-ctx.Done():
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}
}
