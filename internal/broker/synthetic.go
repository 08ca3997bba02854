package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SyntheticFeed generates a deterministic oscillating price series for dry
// runs without market data credentials. Every timeframe bucket maps to one
// price, so repeated reads inside a bucket agree.
type SyntheticFeed struct {
	Base      float64
	Amplitude float64
	Spread    float64
	WaveBars  int
	Now       func() time.Time
}

func NewSyntheticFeed(base, amplitude, spread float64, waveBars int) *SyntheticFeed {
	return &SyntheticFeed{
		Base:      base,
		Amplitude: amplitude,
		Spread:    spread,
		WaveBars:  waveBars,
		Now:       time.Now,
	}
}

func (f *SyntheticFeed) Tick(ctx context.Context, symbol string) (Tick, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}
	now := f.Now().UTC()
	mid := f.price(now.Unix())
	half := f.Spread / 2
	return Tick{Symbol: symbol, Bid: mid - half, Ask: mid + half, Time: now}, nil
}

func (f *SyntheticFeed) Bars(ctx context.Context, symbol string, timeframe time.Duration, offset, count int) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeframe < time.Second {
		return nil, fmt.Errorf("synthetic bars %s: timeframe %s too small", symbol, timeframe)
	}
	if count <= 0 {
		return []Bar{}, nil
	}
	step := int64(timeframe / time.Second)
	current := f.Now().UTC().Unix() / step
	newest := current - int64(offset)
	bars := make([]Bar, 0, count)
	for k := newest - int64(count) + 1; k <= newest; k++ {
		open := f.price(k*step - 1)
		closePrice := f.price((k+1)*step - 1)
		wick := f.Amplitude * 0.05
		bars = append(bars, Bar{
			Time:   time.Unix(k*step, 0).UTC(),
			Open:   open,
			High:   math.Max(open, closePrice) + wick,
			Low:    math.Min(open, closePrice) - wick,
			Close:  closePrice,
			Volume: float64(100 + rand.New(rand.NewSource(k)).Intn(900)),
		})
	}
	return bars, nil
}

// price is the mid price at a unix second, a sine wave over WaveBars minutes
// plus seeded noise.
func (f *SyntheticFeed) price(sec int64) float64 {
	wave := f.WaveBars
	if wave <= 0 {
		wave = 30
	}
	minute := sec / 60
	phase := 2 * math.Pi * float64(minute%int64(wave)) / float64(wave)
	noise := (rand.New(rand.NewSource(minute)).Float64() - 0.5) * f.Amplitude * 0.5
	return round(f.Base+f.Amplitude*math.Sin(phase)+noise, 6)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
