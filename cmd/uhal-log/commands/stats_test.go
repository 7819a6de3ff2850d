package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ipbus/uhal-go/pkg/log"
)

func TestStatsCountsByLayer(t *testing.T) {
	path := createTestLogFile(t, dispatchEvents("conn-1", "board0", baseTime))

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 6",
		"TRANSPORT:   2",
		"PACKING:     2",
		"CLIENT:      2",
		"PACKET:      4",
		"STATE:       2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestStatsPerConnection(t *testing.T) {
	events := dispatchEvents("conn-aaaa-bbbb", "board0", baseTime)
	events = append(events, dispatchEvents("conn-aaaa-bbbb", "board0", baseTime.Add(time.Second))...)
	events = append(events, dispatchEvents("conn-cccc-dddd", "board1", baseTime)...)
	events[len(events)-1].StateChange.NewState = "FAILED"

	path := createTestLogFile(t, events)
	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}

	if len(stats.Connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(stats.Connections))
	}
	a := stats.Connections["conn-aaaa-bbbb"]
	if a.Dispatches != 2 || a.FailedDispatches != 0 {
		t.Errorf("conn a dispatches = %d/%d", a.Dispatches, a.FailedDispatches)
	}
	if a.PacketsOut != 2 || a.PacketsIn != 2 {
		t.Errorf("conn a packets = %d out, %d in", a.PacketsOut, a.PacketsIn)
	}
	if a.BytesOut != 16 || a.BytesIn != 24 {
		t.Errorf("conn a bytes = %d out, %d in", a.BytesOut, a.BytesIn)
	}
	if a.MeanRTT() != 150*time.Microsecond || a.MaxRTT != 150*time.Microsecond {
		t.Errorf("conn a rtt mean %s max %s", a.MeanRTT(), a.MaxRTT)
	}
	if a.RemoteAddr != "127.0.0.1:50001" {
		t.Errorf("conn a remote = %q", a.RemoteAddr)
	}

	b := stats.Connections["conn-cccc-dddd"]
	if b.DeviceID != "board1" || b.FailedDispatches != 1 {
		t.Errorf("conn b = %+v", b)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	output := buf.String()
	for _, want := range []string{"Connections: 2", "[conn-aaa", "Device: board0", "Dispatches: 1 (1 failed)", "RTT: mean 150.000us"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestStatsTimeRange(t *testing.T) {
	events := []log.Event{
		{Timestamp: baseTime, Category: log.CategoryPacket},
		{Timestamp: baseTime.Add(time.Hour), Category: log.CategoryPacket},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "1h0m0s") {
		t.Errorf("expected 1h0m0s duration in output, got:\n%s", buf.String())
	}
}

func TestStatsErrorCount(t *testing.T) {
	events := []log.Event{
		{Timestamp: baseTime, Category: log.CategoryPacket},
		{Timestamp: baseTime, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 1"}},
		{Timestamp: baseTime, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 2"}},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Errors: 2") {
		t.Errorf("expected 2 errors in output, got:\n%s", buf.String())
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("expected zero events, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Error("empty file should have no time range")
	}
}
