package indicator

import (
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/suite"

	"github.com/stratlab/backsim/pkg/errors"
)

type SMATestSuite struct {
	suite.Suite
}

func TestSMASuite(t *testing.T) {
	suite.Run(t, new(SMATestSuite))
}

func (suite *SMATestSuite) TestNewSMARejectsBadPeriod() {
	_, err := NewSMA(0)
	suite.Error(err)
	suite.Equal(errors.ErrCodeInvalidPeriod, errors.GetCode(err))

	_, err = NewSMA(-3)
	suite.Error(err)
}

func (suite *SMATestSuite) TestNotReadyBeforeWarmup() {
	sma, err := NewSMA(5)
	suite.Require().NoError(err)
	suite.Equal(5, sma.Warmup())

	for i := 0; i < 4; i++ {
		sma.Update(float64(i))
		suite.False(sma.Ready())
	}

	sma.Update(4)
	suite.True(sma.Ready())
}

func (suite *SMATestSuite) TestValueMatchesReference() {
	prices := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
		46.03, 46.41, 46.22, 45.64,
	}
	period := 5

	reference := talib.Sma(prices, period)

	sma, err := NewSMA(period)
	suite.Require().NoError(err)

	for i, price := range prices {
		sma.Update(price)

		if i >= period-1 {
			suite.True(sma.Ready())
			suite.InDelta(reference[i], sma.Value(), 1e-9, "index %d", i)
		}
	}
}

func (suite *SMATestSuite) TestWindowSlides() {
	sma, err := NewSMA(3)
	suite.Require().NoError(err)

	for _, v := range []float64{1, 2, 3} {
		sma.Update(v)
	}

	suite.InDelta(2.0, sma.Value(), 1e-9)

	sma.Update(10)
	suite.InDelta(5.0, sma.Value(), 1e-9)
}

func (suite *SMATestSuite) TestReset() {
	sma, err := NewSMA(2)
	suite.Require().NoError(err)

	sma.Update(1)
	sma.Update(2)
	suite.True(sma.Ready())

	sma.Reset()
	suite.False(sma.Ready())
}
