package domain

import (
	"math"
	"time"
)

// Candle is a single OHLCV bar. Immutable once fetched; series are ordered
// ascending by Time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Finite reports whether all numeric fields are finite.
func (c Candle) Finite() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CleanCandles returns the series with non-finite bars dropped and bars
// sorted ascending by time. The input slice is not modified.
func CleanCandles(candles []Candle) []Candle {
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Finite() {
			out = append(out, c)
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i].Time.Before(out[i-1].Time) {
			sortCandles(out)
			break
		}
	}
	return out
}

func sortCandles(cs []Candle) {
	// Insertion sort: series arrive nearly ordered.
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].Time.Before(cs[j-1].Time); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
