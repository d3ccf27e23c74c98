// Package indicator provides pure technical indicator functions over
// OHLCV candle series. Every function is deterministic and reports a
// second return value that is false when the series is too short for the
// requested window; callers treat that as "no verdict", never as zero.
package indicator

import (
	"math"

	"trade-autopilot/internal/domain"
)

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average with span period, seeded from
// the first value (adjust=false convention).
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, true
}

// EMASeries returns the full EMA series for span period. Used where two
// averages must be compared bar by bar.
func EMASeries(values []float64, period int) ([]float64, bool) {
	if period <= 0 || len(values) < period {
		return nil, false
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out, true
}

// ATR returns the average true range over period, as a simple average of
// true ranges. Needs period+1 candles for the first previous close.
func ATR(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	sum := 0.0
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		tr := c.High - c.Low
		if d := math.Abs(c.High - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(c.Low - prevClose); d > tr {
			tr = d
		}
		sum += tr
	}
	return sum / float64(period), true
}

// Bollinger returns the middle, upper and lower bands for the given period
// and standard deviation multiple. Population standard deviation.
func Bollinger(values []float64, period int, mult float64) (mid, upper, lower float64, ok bool) {
	mid, ok = SMA(values, period)
	if !ok {
		return 0, 0, 0, false
	}
	varSum := 0.0
	for _, v := range values[len(values)-period:] {
		d := v - mid
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(period))
	return mid, mid + mult*std, mid - mult*std, true
}

// VWAP returns the volume weighted average price over the whole series,
// using the typical price (H+L+C)/3 per bar. False when total volume is
// zero.
func VWAP(candles []domain.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	var pv, vol float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol <= 0 {
		return 0, false
	}
	return pv / vol, true
}

// RollingHigh returns the highest high over the last period candles,
// excluding the final bar so a breakout of the current bar can be tested
// against prior structure.
func RollingHigh(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	hi := math.Inf(-1)
	for _, c := range candles[len(candles)-period-1 : len(candles)-1] {
		if c.High > hi {
			hi = c.High
		}
	}
	return hi, true
}

// RollingLow is the mirror of RollingHigh for downside breakouts.
func RollingLow(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	lo := math.Inf(1)
	for _, c := range candles[len(candles)-period-1 : len(candles)-1] {
		if c.Low < lo {
			lo = c.Low
		}
	}
	return lo, true
}

// AvgVolume returns the average volume of the last period bars excluding
// the final bar, so the current bar's expansion is measured against its
// trailing baseline.
func AvgVolume(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period-1 : len(candles)-1] {
		sum += c.Volume
	}
	return sum / float64(period), true
}

// RSI returns the Wilder-free simple-average RSI over period.
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}
	var gain, loss float64
	start := len(values) - period
	for i := start; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}
