package commands

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/ipbus/uhal-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats
	Errors            int
	Start, End        time.Time
}

// ConnectionStats holds statistics for one connection.
type ConnectionStats struct {
	FirstSeen        time.Time
	LastSeen         time.Time
	Events           int
	DeviceID         string
	RemoteAddr       string
	PacketsOut       int
	PacketsIn        int
	BytesOut         int
	BytesIn          int
	Dispatches       int
	FailedDispatches int
	totalRTT         time.Duration
	MaxRTT           time.Duration
}

// MeanRTT is the average round trip over reply packets.
func (c *ConnectionStats) MeanRTT() time.Duration {
	if c.PacketsIn == 0 {
		return 0
	}
	return c.totalRTT / time.Duration(c.PacketsIn)
}

// CollectStats reads the whole file.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.Start.IsZero() || event.Timestamp.Before(s.Start) {
		s.Start = event.Timestamp
	}
	if event.Timestamp.After(s.End) {
		s.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.DeviceID == "" {
		conn.DeviceID = event.DeviceID
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}

	switch {
	case event.Frame != nil && event.Direction == log.DirectionOut:
		conn.BytesOut += event.Frame.Size
	case event.Frame != nil:
		conn.BytesIn += event.Frame.Size
	case event.Packet != nil && event.Direction == log.DirectionOut:
		conn.PacketsOut++
	case event.Packet != nil:
		conn.PacketsIn++
		if d := event.Packet.Duration; d != nil {
			conn.totalRTT += *d
			conn.MaxRTT = max(conn.MaxRTT, *d)
		}
	case event.StateChange != nil && event.StateChange.Entity == log.StateEntityDispatch:
		switch event.StateChange.NewState {
		case "COMPLETED":
			conn.Dispatches++
		case "FAILED":
			conn.Dispatches++
			conn.FailedDispatches++
		}
	case event.Error != nil:
		s.Errors++
	}
}

// RunStats prints statistics for a capture file.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== IPbus Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.Start.Format(time.RFC3339), stats.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.End.Sub(stats.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerPacking, log.LayerClient} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryPacket, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	ids := make([]string, 0, len(stats.Connections))
	for id := range stats.Connections {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return stats.Connections[a].FirstSeen.Compare(stats.Connections[b].FirstSeen)
	})
	for _, id := range ids {
		c := stats.Connections[id]
		fmt.Fprintf(w, "\n  [%s] %d events, duration %s\n", shortenConnID(id), c.Events,
			c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
		if c.DeviceID != "" {
			fmt.Fprintf(w, "           Device: %s\n", c.DeviceID)
		}
		if c.RemoteAddr != "" {
			fmt.Fprintf(w, "           Remote: %s\n", c.RemoteAddr)
		}
		if c.Dispatches > 0 {
			fmt.Fprintf(w, "           Dispatches: %d (%d failed)\n", c.Dispatches, c.FailedDispatches)
		}
		if c.PacketsOut > 0 || c.PacketsIn > 0 {
			fmt.Fprintf(w, "           Packets: %d out, %d in\n", c.PacketsOut, c.PacketsIn)
		}
		if c.BytesOut > 0 || c.BytesIn > 0 {
			fmt.Fprintf(w, "           Bytes: %d out, %d in\n", c.BytesOut, c.BytesIn)
		}
		if c.PacketsIn > 0 {
			fmt.Fprintf(w, "           RTT: mean %s, max %s\n", formatDuration(c.MeanRTT()), formatDuration(c.MaxRTT))
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
