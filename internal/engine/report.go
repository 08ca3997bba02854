package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"smatrader/internal/state"
)

const (
	ReportText = "text"
	ReportJSON = "json"
)

// Reporter writes one entry per cycle to the console.
type Reporter struct {
	format string
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewReporter(w io.Writer, format string) *Reporter {
	if format != ReportJSON {
		format = ReportText
	}
	return &Reporter{format: format, writer: bufio.NewWriter(w)}
}

func (r *Reporter) Emit(report state.CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.format == ReportJSON {
		err = r.writeJSON(report)
	} else {
		err = r.writeText(report)
	}
	if err == nil {
		err = r.writer.Flush()
	}
	if err != nil {
		logrus.WithError(err).Warn("failed to write cycle report")
	}
}

// consoleLine is the part of a cycle report known before trailing runs.
// Stop modifications land in the stored report and the cycle log entry.
type consoleLine struct {
	RunID     string    `json:"run_id"`
	Cycle     uint64    `json:"cycle"`
	Time      time.Time `json:"time"`
	Symbol    string    `json:"symbol"`
	Exposure  float64   `json:"exposure"`
	LastClose float64   `json:"last_close"`
	SMA       float64   `json:"sma"`
	Direction string    `json:"direction"`
	BarTime   time.Time `json:"bar_time,omitempty"`
	Action    string    `json:"action,omitempty"`
	Opened    []string  `json:"opened,omitempty"`
	Closed    []string  `json:"closed,omitempty"`
	Skipped   string    `json:"skipped,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
}

func (r *Reporter) writeJSON(report state.CycleReport) error {
	payload, err := json.Marshal(consoleLine{
		RunID:     report.RunID,
		Cycle:     report.Cycle,
		Time:      report.Time,
		Symbol:    report.Symbol,
		Exposure:  report.Exposure,
		LastClose: report.LastClose,
		SMA:       report.SMA,
		Direction: report.Direction,
		BarTime:   report.BarTime,
		Action:    report.Action,
		Opened:    report.Opened,
		Closed:    report.Closed,
		Skipped:   report.Skipped,
		Errors:    report.Errors,
	})
	if err != nil {
		return err
	}
	_, err = r.writer.Write(append(payload, '\n'))
	return err
}

func (r *Reporter) writeText(report state.CycleReport) error {
	fmt.Fprintf(r.writer, "Time: %s\n", report.Time.Format(time.RFC3339))
	fmt.Fprintf(r.writer, "Exposure: %g\n", report.Exposure)
	if report.Skipped != "" {
		fmt.Fprintf(r.writer, "Skipped: %s\n", report.Skipped)
	} else {
		fmt.Fprintf(r.writer, "Last Close: %g\n", report.LastClose)
		fmt.Fprintf(r.writer, "SMA: %g\n", report.SMA)
		fmt.Fprintf(r.writer, "Signal: %s\n", report.Direction)
	}
	_, err := r.writer.WriteString("-------\n\n")
	return err
}

func (r *Reporter) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Flush()
}
