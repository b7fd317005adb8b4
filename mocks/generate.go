package mocks

//go:generate mockgen -destination=./mock_datasource.go -package=mocks github.com/stratlab/backsim/internal/datasource BarSource
//go:generate mockgen -destination=./mock_fetcher.go -package=mocks github.com/stratlab/backsim/internal/datasource BarFetcher
