package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Station-Manager/serialplot"
)

// runPlain streams events as text lines until ctx is done or the session
// reaches a terminal state.
func runPlain(ctx context.Context, w io.Writer, svc *serialplot.Service, conn serialplot.ConnectionConfig) error {
	if conn.PortName == "" {
		ports, err := serialplot.PortChoices()
		if err != nil {
			return fmt.Errorf("detecting ports: %w", err)
		}
		conn.PortName = ports[0]
	}

	sub := svc.Subscribe(0)
	defer sub.Close()

	if err := svc.Start(conn); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return svc.Stop()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			fmt.Fprintln(w, formatEvent(ev))
			if ev.Kind == serialplot.EventStatusChanged && ev.Status.State.Terminal() {
				if ev.Status.State == serialplot.StateFailed {
					return fmt.Errorf("%s", ev.Status.Message)
				}
				return nil
			}
		}
	}
}

func formatEvent(ev serialplot.Event) string {
	switch ev.Kind {
	case serialplot.EventStatusChanged:
		return fmt.Sprintf("status %-12s %s", ev.Status.State, ev.Status.Message)
	case serialplot.EventChannelUpdated:
		values := ev.Channel.Snapshot.Values
		latest := ""
		if len(values) > 0 {
			latest = strconv.FormatFloat(values[len(values)-1], 'g', -1, 64)
		}
		return fmt.Sprintf("data   %-12s %s (%d points)", strings.ToLower(ev.Channel.Key.Name()), latest, len(values))
	case serialplot.EventNonNumericAppended:
		return "text   " + ev.NonNumeric.Entry.String()
	default:
		return fmt.Sprintf("event  %s", ev.Kind)
	}
}
