package strategy

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

type BollingerBandTestSuite struct {
	suite.Suite
}

func TestBollingerBandTestSuite(t *testing.T) {
	suite.Run(t, new(BollingerBandTestSuite))
}

func (suite *BollingerBandTestSuite) newStrategy(period int, stdDev float64) *BollingerBand {
	s, err := NewBollingerBand(BollingerParams{
		Period:       period,
		StdDev:       stdDev,
		PositionSize: 1000,
	})
	suite.Require().NoError(err)

	return s
}

func (suite *BollingerBandTestSuite) TestBuysOnLowerTouchAndSellsOnUpperTouch() {
	s := suite.newStrategy(3, 1.0)

	// Bar 3 closes inside the bands, bar 4 drops through the lower band
	// (9 < 10.667 - 1.528), bar 5 returns inside, bar 6 breaks the upper
	// band (12 > 10 + 1.732).
	prices := []float64{10, 12, 11, 9, 9, 12}

	emissions := replayPrices(suite.T(), s, prices)
	suite.Require().Len(emissions, 2)

	buy := emissions[0]
	suite.Equal(4, buy.barNumber)
	suite.Equal(types.SideBuy, buy.intent.Side)
	suite.InDelta(1000.0/9.0, buy.intent.Quantity, 1e-9)
	suite.Contains(buy.intent.Rationale, "lower band")

	sell := emissions[1]
	suite.Equal(6, sell.barNumber)
	suite.Equal(types.SideSell, sell.intent.Side)
	suite.InDelta(1000.0/12.0, sell.intent.Quantity, 1e-9)
	suite.Contains(sell.intent.Rationale, "upper band")
}

func (suite *BollingerBandTestSuite) TestUpperTouchBeforeAnyBuyIsSuppressed() {
	s := suite.newStrategy(3, 1.0)

	// Bar 4 closes exactly on the upper band (mean 12, deviation 1); with
	// no prior buy nothing may fire.
	prices := []float64{10, 12, 11, 13}

	emissions := replayPrices(suite.T(), s, prices)

	suite.Empty(emissions)
}

func (suite *BollingerBandTestSuite) TestFirstReadyBarRecordsRelationshipOnly() {
	s := suite.newStrategy(3, 1.0)

	// Bar 3 already closes below the lower band, but with no previous
	// relationship the variant only records it; the touch is not a
	// transition.
	prices := []float64{12, 14, 9}

	emissions := replayPrices(suite.T(), s, prices)

	suite.Empty(emissions)
	suite.Equal(4, s.WarmupPeriod())
}

func (suite *BollingerBandTestSuite) TestRejectsNonPositiveStdDev() {
	_, err := NewBollingerBand(BollingerParams{
		Period:       20,
		StdDev:       0,
		PositionSize: 1000,
	})

	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeStrategyConfig, errors.GetCode(err))
}

func (suite *BollingerBandTestSuite) TestName() {
	s := suite.newStrategy(20, 2.0)

	suite.Equal("Bollinger_20", s.Name())
}
