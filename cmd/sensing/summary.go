package main

import (
	"fmt"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"

	"go.viam.com/sensing/sensor"
)

// summary accumulates every streamed reading per field.
type summary struct {
	mu     sync.Mutex
	fields []stats.Float64Data
}

func newSummary(fieldCount int) *summary {
	return &summary{fields: make([]stats.Float64Data, fieldCount)}
}

func (s *summary) add(sample sensor.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.fields) < len(sample.Readings) {
		s.fields = append(s.fields, nil)
	}
	for i := range sample.Readings {
		s.fields[i] = append(s.fields[i], sample.Float(i))
	}
}

func (s *summary) render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Samples", "Min", "Max", "Mean", "Std Dev"})
	for i, data := range s.fields {
		row := table.Row{i, data.Len()}
		for _, f := range []func(stats.Float64Data) (float64, error){
			stats.Min, stats.Max, stats.Mean, stats.StandardDeviation,
		} {
			v, err := f(data)
			if err != nil {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%.4f", v))
		}
		t.AppendRow(row)
	}
	return t.Render()
}
