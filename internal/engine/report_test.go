package engine

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smatrader/internal/state"
)

func sampleReport() state.CycleReport {
	return state.CycleReport{
		RunID:     "run-1",
		Cycle:     3,
		Time:      time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC),
		Symbol:    testSymbol,
		Exposure:  0.2,
		LastClose: 1.2,
		SMA:       1.1955,
		Direction: "buy",
		Action:    ActionHold,
	}
}

func TestReporterText(t *testing.T) {
	var out bytes.Buffer
	NewReporter(&out, ReportText).Emit(sampleReport())

	want := "Time: 2026-01-02T10:30:00Z\n" +
		"Exposure: 0.2\n" +
		"Last Close: 1.2\n" +
		"SMA: 1.1955\n" +
		"Signal: buy\n" +
		"-------\n\n"
	assert.Equal(t, want, out.String())
}

func TestReporterJSONLines(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(&out, ReportJSON)
	r.Emit(sampleReport())
	r.Emit(sampleReport())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	assert.NotContains(t, lines[0], "stops_modified")

	var decoded state.CycleReport
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, uint64(3), decoded.Cycle)
	assert.Equal(t, "buy", decoded.Direction)
	assert.Equal(t, ActionHold, decoded.Action)
}

func TestReporterUnknownFormatFallsBackToText(t *testing.T) {
	var out bytes.Buffer
	NewReporter(&out, "yaml").Emit(sampleReport())
	assert.True(t, strings.HasPrefix(out.String(), "Time: "))
}
