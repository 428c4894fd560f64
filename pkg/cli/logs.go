package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/getmockd/mocklane/pkg/cli/internal/output"
	"github.com/getmockd/mocklane/pkg/eventlog"
	"github.com/getmockd/mocklane/pkg/httputil"
	"github.com/getmockd/mocklane/pkg/logging"
)

// DefaultServerURL is the server queried by the logs command.
const DefaultServerURL = "http://localhost:4000"

// ErrServerNotRunning is returned when nothing listens at the server URL.
var ErrServerNotRunning = errors.New("server not running - start with: mocklane serve")

var logsFlagVals struct {
	server string
	limit  int
	follow bool
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the event log of a running server",
	Long: `Print the newest buffered events of a running mocklane server. With
--follow the command keeps the connection open and prints events as they
happen until interrupted.`,
	Example: `  # Show the last 100 events
  mocklane logs

  # Stream events as JSON lines
  mocklane logs --follow --json

  # Read from another server
  mocklane logs --server http://mocks.internal:4000 --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := &logsFlagVals
		if f.limit < 0 {
			return fmt.Errorf("--limit must be non-negative, got %d", f.limit)
		}
		if f.follow {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return followLogs(ctx, cmd.OutOrStdout(), f.server, f.limit, jsonOutput)
		}

		events, err := fetchLogs(cmd.Context(), http.DefaultClient, f.server, f.limit)
		if err != nil {
			return err
		}
		return printEvents(cmd.OutOrStdout(), events, jsonOutput)
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsFlagVals.server, "server", envOr(EnvServer, DefaultServerURL), "Server base URL (env "+EnvServer+")")
	logsCmd.Flags().IntVarP(&logsFlagVals.limit, "limit", "n", 100, "Number of events to show (0 shows the whole buffer)")
	logsCmd.Flags().BoolVarP(&logsFlagVals.follow, "follow", "f", false, "Stream events in real time (like tail -f)")
}

// fetchLogs reads the newest limit events from GET /__logs.
func fetchLogs(ctx context.Context, client *http.Client, server string, limit int) ([]*eventlog.Event, error) {
	u := strings.TrimRight(server, "/") + "/__logs?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if isConnRefused(err) {
			return nil, fmt.Errorf("%w at %s", ErrServerNotRunning, server)
		}
		return nil, fmt.Errorf("cannot connect to %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr httputil.ErrorBody
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var events []*eventlog.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// logStreamURL turns a server base URL into the /__logs/ws endpoint.
func logStreamURL(server string, replay int) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path += "/__logs/ws"
	u.RawQuery = "replay=" + strconv.Itoa(replay)
	return u.String(), nil
}

// followLogs prints the replayed events and then live events until ctx is
// cancelled or the server closes the stream.
func followLogs(ctx context.Context, w io.Writer, server string, replay int, asJSON bool) error {
	wsURL, err := logStreamURL(server, replay)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection failed: %v (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("error reading stream: %w", err)
		}
		if asJSON {
			fmt.Fprintf(w, "%s\n", data)
			continue
		}
		var e eventlog.Event
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		fmt.Fprintln(w, formatEvent(&e))
	}
}

// printEvents writes events as JSON lines or as an aligned table.
func printEvents(w io.Writer, events []*eventlog.Event, asJSON bool) error {
	if asJSON {
		for _, e := range events {
			line, err := e.MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", line)
		}
		return nil
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No events")
		return nil
	}

	tw := output.Table(w)
	fmt.Fprintln(tw, "TIME\tLEVEL\tEVENT\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Time.Local().Format(time.DateTime), strings.ToUpper(logging.LevelName(e.Level)), e.Name, eventDetail(e))
	}
	return tw.Flush()
}

// formatEvent renders one event on a single line.
func formatEvent(e *eventlog.Event) string {
	return fmt.Sprintf("%s  %-5s  %s  %s",
		e.Time.Local().Format(time.DateTime), strings.ToUpper(logging.LevelName(e.Level)), e.Name, eventDetail(e))
}

// eventDetail summarizes the fields of e. Request events read as
// "GET /users/42 -> 200 (1.2ms) [users]".
func eventDetail(e *eventlog.Event) string {
	f := e.Fields
	if method, ok := f["method"].(string); ok {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %v -> %v", method, f["url"], f["status"])
		if ms, ok := f["durationMs"].(float64); ok {
			fmt.Fprintf(&b, " (%.1fms)", ms)
		}
		if id, ok := f["mockId"].(string); ok {
			fmt.Fprintf(&b, " [%s]", id)
		} else {
			b.WriteString(" [no match]")
		}
		return b.String()
	}

	data, err := json.Marshal(f)
	if err != nil || len(f) == 0 {
		return ""
	}
	return string(data)
}

// isConnRefused reports whether err means nothing is listening at the server URL.
func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
