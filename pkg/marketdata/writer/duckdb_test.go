package writer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/stratlab/backsim/internal/datasource"
	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/types"
)

type ParquetBarWriterTestSuite struct {
	suite.Suite
}

func TestParquetBarWriterSuite(t *testing.T) {
	suite.Run(t, new(ParquetBarWriterTestSuite))
}

func (suite *ParquetBarWriterTestSuite) makeBar(symbol string, at time.Time, base float64) types.Bar {
	return types.Bar{
		Symbol: symbol,
		Time:   at,
		Open:   base,
		High:   base + 100,
		Low:    base - 100,
		Close:  base + 50,
		Volume: 1200,
	}
}

func (suite *ParquetBarWriterTestSuite) TestNewParquetBarWriter() {
	outputPath := filepath.Join(suite.T().TempDir(), "btcusdt.parquet")
	writer := NewParquetBarWriter(outputPath, nil)

	suite.Equal(outputPath, writer.OutputPath())
	suite.Nil(writer.db)
	suite.Nil(writer.tx)
	suite.Nil(writer.stmt)
}

func (suite *ParquetBarWriterTestSuite) TestWriteWithoutInitialize() {
	writer := NewParquetBarWriter(filepath.Join(suite.T().TempDir(), "out.parquet"), nil)

	bar := suite.makeBar("BTCUSDT", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 50000)

	err := writer.Write(bar)
	suite.Error(err)
	suite.Contains(err.Error(), "not initialized")
}

func (suite *ParquetBarWriterTestSuite) TestFinalizeWithoutInitialize() {
	writer := NewParquetBarWriter(filepath.Join(suite.T().TempDir(), "out.parquet"), nil)

	_, err := writer.Finalize()
	suite.Error(err)
	suite.Contains(err.Error(), "not initialized")
}

func (suite *ParquetBarWriterTestSuite) TestFinalizeProducesParquet() {
	outputPath := filepath.Join(suite.T().TempDir(), "btcusdt.parquet")
	writer := NewParquetBarWriter(outputPath, nil)

	suite.Require().NoError(writer.Initialize())
	defer writer.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		bar := suite.makeBar("BTCUSDT", start.AddDate(0, 0, i), 50000+float64(i)*100)
		suite.Require().NoError(writer.Write(bar))
	}

	path, err := writer.Finalize()
	suite.NoError(err)
	suite.Equal(outputPath, path)

	fileInfo, err := os.Stat(path)
	suite.NoError(err)
	suite.Greater(fileInfo.Size(), int64(0))
}

func (suite *ParquetBarWriterTestSuite) TestSimulationSourceReadsArchive() {
	outputPath := filepath.Join(suite.T().TempDir(), "mixed.parquet")
	writer := NewParquetBarWriter(outputPath, nil)

	suite.Require().NoError(writer.Initialize())
	defer writer.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := start.AddDate(0, 0, i)
		suite.Require().NoError(writer.Write(suite.makeBar("BTCUSDT", at, 50000+float64(i)*100)))
		suite.Require().NoError(writer.Write(suite.makeBar("ETHUSDT", at, 3000+float64(i)*10)))
	}

	_, err := writer.Finalize()
	suite.Require().NoError(err)

	source, err := datasource.NewDuckDBSource(":memory:", "BTCUSDT", logger.NewNopLogger())
	suite.Require().NoError(err)
	defer source.Close()

	suite.Require().NoError(source.Initialize(outputPath))

	first, last, err := source.Bounds()
	suite.Require().NoError(err)
	suite.Equal(start, first.UTC())
	suite.Equal(start.AddDate(0, 0, 2), last.UTC())

	count, err := source.Count(optional.None[time.Time](), optional.None[time.Time]())
	suite.Require().NoError(err)
	suite.Equal(3, count)

	bars, err := source.Range(start, start.AddDate(0, 0, 2))
	suite.Require().NoError(err)
	suite.Require().Len(bars, 3)
	suite.Equal("BTCUSDT", bars[0].Symbol)
	suite.Equal(50000.0, bars[0].Open)
	suite.Equal(50100.0, bars[0].High)
	suite.Equal(49900.0, bars[0].Low)
	suite.Equal(50050.0, bars[0].Close)
	suite.Equal(1200.0, bars[0].Volume)
	suite.Equal(50250.0, bars[2].Close)
}

func (suite *ParquetBarWriterTestSuite) TestCloseWithoutFinalizeDiscardsRows() {
	outputPath := filepath.Join(suite.T().TempDir(), "discarded.parquet")
	writer := NewParquetBarWriter(outputPath, nil)

	suite.Require().NoError(writer.Initialize())

	bar := suite.makeBar("BTCUSDT", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 50000)
	suite.Require().NoError(writer.Write(bar))

	suite.NoError(writer.Close())
	suite.Nil(writer.db)
	suite.Nil(writer.tx)
	suite.Nil(writer.stmt)

	_, err := os.Stat(outputPath)
	suite.True(os.IsNotExist(err))
}

func (suite *ParquetBarWriterTestSuite) TestDoubleFinalize() {
	writer := NewParquetBarWriter(filepath.Join(suite.T().TempDir(), "out.parquet"), nil)

	suite.Require().NoError(writer.Initialize())
	defer writer.Close()

	bar := suite.makeBar("BTCUSDT", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 50000)
	suite.Require().NoError(writer.Write(bar))

	_, err := writer.Finalize()
	suite.NoError(err)

	_, err = writer.Finalize()
	suite.Error(err)
	suite.Contains(err.Error(), "not initialized")
}

func (suite *ParquetBarWriterTestSuite) TestDoubleClose() {
	writer := NewParquetBarWriter(filepath.Join(suite.T().TempDir(), "out.parquet"), nil)

	suite.Require().NoError(writer.Initialize())

	suite.NoError(writer.Close())
	suite.NoError(writer.Close())
}

func (suite *ParquetBarWriterTestSuite) TestFinalizeExportError() {
	writer := NewParquetBarWriter("/nonexistent/directory/out.parquet", nil)

	suite.Require().NoError(writer.Initialize())
	defer writer.Close()

	bar := suite.makeBar("BTCUSDT", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 50000)
	suite.Require().NoError(writer.Write(bar))

	_, err := writer.Finalize()
	suite.Error(err)
	suite.Contains(err.Error(), "failed to export")
}
