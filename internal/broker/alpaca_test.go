package broker

import (
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeFrameMapping(t *testing.T) {
	tf, err := timeFrame(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, marketdata.OneMin, tf)

	tf, err = timeFrame(15 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, marketdata.NewTimeFrame(15, marketdata.Min), tf)

	tf, err = timeFrame(4 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, marketdata.NewTimeFrame(4, marketdata.Hour), tf)

	tf, err = timeFrame(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, marketdata.OneDay, tf)

	_, err = timeFrame(90 * time.Second)
	assert.Error(t, err)
	_, err = timeFrame(0)
	assert.Error(t, err)
}

func TestLimitPrice(t *testing.T) {
	limit, ok := limitPrice(Buy, 187.42, 20, 0.01)
	require.True(t, ok)
	assert.Equal(t, "187.62", limit.String())

	limit, ok = limitPrice(Sell, 187.42, 20, 0.01)
	require.True(t, ok)
	assert.Equal(t, "187.22", limit.String())

	limit, ok = limitPrice(Buy, 0.5123, 20, 0.0001)
	require.True(t, ok)
	assert.Equal(t, "0.5143", limit.String())

	_, ok = limitPrice(Buy, 187.42, 0, 0.01)
	assert.False(t, ok)
	_, ok = limitPrice(Buy, 187.42, 20, 0)
	assert.False(t, ok)
}

func TestAlpacaTimeInForce(t *testing.T) {
	assert.Equal(t, alpaca.FOK, alpacaTimeInForce(GTC, FillOrKill))
	assert.Equal(t, alpaca.IOC, alpacaTimeInForce(GTC, ImmediateOrCancel))
	assert.Equal(t, alpaca.Day, alpacaTimeInForce(Day, ""))
	assert.Equal(t, alpaca.GTC, alpacaTimeInForce(GTC, ""))
}

func TestAlpacaSideAndFeed(t *testing.T) {
	assert.Equal(t, alpaca.Buy, alpacaSide(Buy))
	assert.Equal(t, alpaca.Sell, alpacaSide(Sell))
	assert.Equal(t, marketdata.SIP, parseFeed("sip"))
	assert.Equal(t, marketdata.IEX, parseFeed("iex"))
	assert.Equal(t, marketdata.IEX, parseFeed(""))
}

func TestOrderTimeInForceFractional(t *testing.T) {
	assert.Equal(t, alpaca.Day, orderTimeInForce(decimal.NewFromFloat(0.2), alpaca.FOK))
	assert.Equal(t, alpaca.Day, orderTimeInForce(decimal.NewFromFloat(1.5), alpaca.GTC))
	assert.Equal(t, alpaca.FOK, orderTimeInForce(decimal.NewFromInt(3), alpaca.FOK))
	assert.Equal(t, alpaca.GTC, orderTimeInForce(decimal.NewFromInt(10), alpaca.GTC))
}
