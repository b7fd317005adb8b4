package strategy

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

type MACrossoverTestSuite struct {
	suite.Suite
}

func TestMACrossoverTestSuite(t *testing.T) {
	suite.Run(t, new(MACrossoverTestSuite))
}

func (suite *MACrossoverTestSuite) newStrategy(short, long int) *MovingAverageCrossover {
	s, err := NewMovingAverageCrossover(MovingAverageParams{
		ShortWindow:  short,
		LongWindow:   long,
		PositionSize: 1000,
	})
	suite.Require().NoError(err)

	return s
}

func (suite *MACrossoverTestSuite) TestSilentDuringWarmup() {
	s := suite.newStrategy(5, 20)

	// Strongly trending prices so only warm-up can explain the silence.
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)*5
	}

	emissions := replayPrices(suite.T(), s, prices)

	suite.Empty(emissions)
	suite.Equal(21, s.WarmupPeriod())
}

func (suite *MACrossoverTestSuite) TestBuysOnCrossUpAndSellsOnCrossDown() {
	s := suite.newStrategy(2, 3)

	// Bars 1-3 establish a flat baseline, bar 4 forces the short average
	// above the long one, bar 6 forces it back below.
	prices := []float64{10, 10, 10, 13, 13, 7, 7}

	emissions := replayPrices(suite.T(), s, prices)
	suite.Require().Len(emissions, 2)

	buy := emissions[0]
	suite.Equal(4, buy.barNumber)
	suite.Equal(types.SideBuy, buy.intent.Side)
	suite.InDelta(1000.0/13.0, buy.intent.Quantity, 1e-9)
	suite.Contains(buy.intent.Rationale, "crossed above")

	sell := emissions[1]
	suite.Equal(6, sell.barNumber)
	suite.Equal(types.SideSell, sell.intent.Side)
	suite.InDelta(1000.0/7.0, sell.intent.Quantity, 1e-9)
	suite.Contains(sell.intent.Rationale, "crossed below")
}

func (suite *MACrossoverTestSuite) TestHoldingRelationshipEmitsNothing() {
	s := suite.newStrategy(2, 3)

	// After the cross at bar 4 the short average stays above the long one;
	// no further intents may fire while the relationship merely holds.
	prices := []float64{10, 10, 10, 13, 14, 15, 16, 17}

	emissions := replayPrices(suite.T(), s, prices)
	suite.Require().Len(emissions, 1)
	suite.Equal(4, emissions[0].barNumber)
	suite.Equal(types.SideBuy, emissions[0].intent.Side)
}

func (suite *MACrossoverTestSuite) TestSellBeforeAnyBuyIsSuppressed() {
	s := suite.newStrategy(2, 3)

	// The first cross is downward; with no prior buy it must stay silent.
	prices := []float64{10, 10, 10, 7, 7}

	emissions := replayPrices(suite.T(), s, prices)

	suite.Empty(emissions)
}

func (suite *MACrossoverTestSuite) TestAlternatingCrossesEmitFullCycle() {
	s := suite.newStrategy(2, 3)

	// Up at bar 4, down at bar 6, up again at bar 8.
	prices := []float64{10, 10, 10, 13, 13, 7, 7, 13, 13}

	emissions := replayPrices(suite.T(), s, prices)
	suite.Require().Len(emissions, 3)

	suite.Equal(types.SideBuy, emissions[0].intent.Side)
	suite.Equal(types.SideSell, emissions[1].intent.Side)
	suite.Equal(types.SideBuy, emissions[2].intent.Side)
}

func (suite *MACrossoverTestSuite) TestRejectsShortWindowNotBelowLong() {
	_, err := NewMovingAverageCrossover(MovingAverageParams{
		ShortWindow:  20,
		LongWindow:   5,
		PositionSize: 1000,
	})

	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeStrategyConfig, errors.GetCode(err))
}

func (suite *MACrossoverTestSuite) TestName() {
	s := suite.newStrategy(5, 20)

	suite.Equal("MACrossover_5_20", s.Name())
}
