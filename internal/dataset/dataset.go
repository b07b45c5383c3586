// Package dataset loads the quarterly commercial-district sales data into
// the warehouse and produces parquet snapshots of it.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one row of the quarterly sales table.
type Record struct {
	YearQuarter         string `parquet:"year_quarter"`
	DistrictType        string `parquet:"district_type"`
	DistrictCode        string `parquet:"district_code"`
	DistrictName        string `parquet:"district_name"`
	ServiceCategoryCode string `parquet:"service_category_code"`
	ServiceCategoryName string `parquet:"service_category_name"`
	MonthlySalesAmount  int64  `parquet:"monthly_sales_amount"`
	MonthlySalesCount   int64  `parquet:"monthly_sales_count"`
	WeekdaySalesAmount  int64  `parquet:"weekday_sales_amount"`
	WeekendSalesAmount  int64  `parquet:"weekend_sales_amount"`
	SalesTime11To14     int64  `parquet:"sales_time_11_14"`
	SalesTime17To21     int64  `parquet:"sales_time_17_21"`
	MaleSalesAmount     int64  `parquet:"male_sales_amount"`
	FemaleSalesAmount   int64  `parquet:"female_sales_amount"`
	SalesByAge10s       int64  `parquet:"sales_by_age_10s"`
	SalesByAge20s       int64  `parquet:"sales_by_age_20s"`
	SalesByAge30s       int64  `parquet:"sales_by_age_30s"`
	SalesByAge40s       int64  `parquet:"sales_by_age_40s"`
	SalesByAge50s       int64  `parquet:"sales_by_age_50s"`
	SalesByAge60sAbove  int64  `parquet:"sales_by_age_60s_above"`
}

// Columns lists the table columns in load order.
var Columns = []string{
	"year_quarter",
	"district_type",
	"district_code",
	"district_name",
	"service_category_code",
	"service_category_name",
	"monthly_sales_amount",
	"monthly_sales_count",
	"weekday_sales_amount",
	"weekend_sales_amount",
	"sales_time_11_14",
	"sales_time_17_21",
	"male_sales_amount",
	"female_sales_amount",
	"sales_by_age_10s",
	"sales_by_age_20s",
	"sales_by_age_30s",
	"sales_by_age_40s",
	"sales_by_age_50s",
	"sales_by_age_60s_above",
}

// ParseCSV reads records from a CSV export with a header row matching
// Columns. Column order in the file may differ from load order; unknown
// header names are an error.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var records []Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line, err)
		}
		line++

		record, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", line, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.ToLower(name))
		index[name] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv header missing column %q", col)
		}
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (Record, error) {
	text := func(col string) string {
		return strings.TrimSpace(row[index[col]])
	}
	var firstErr error
	amount := func(col string) int64 {
		raw := text(col)
		if raw == "" {
			return 0
		}
		// Exports sometimes carry amounts with a decimal tail.
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("column %q: parse %q: %w", col, raw, err)
		}
		return int64(value)
	}

	record := Record{
		YearQuarter:         text("year_quarter"),
		DistrictType:        text("district_type"),
		DistrictCode:        text("district_code"),
		DistrictName:        text("district_name"),
		ServiceCategoryCode: text("service_category_code"),
		ServiceCategoryName: text("service_category_name"),
		MonthlySalesAmount:  amount("monthly_sales_amount"),
		MonthlySalesCount:   amount("monthly_sales_count"),
		WeekdaySalesAmount:  amount("weekday_sales_amount"),
		WeekendSalesAmount:  amount("weekend_sales_amount"),
		SalesTime11To14:     amount("sales_time_11_14"),
		SalesTime17To21:     amount("sales_time_17_21"),
		MaleSalesAmount:     amount("male_sales_amount"),
		FemaleSalesAmount:   amount("female_sales_amount"),
		SalesByAge10s:       amount("sales_by_age_10s"),
		SalesByAge20s:       amount("sales_by_age_20s"),
		SalesByAge30s:       amount("sales_by_age_30s"),
		SalesByAge40s:       amount("sales_by_age_40s"),
		SalesByAge50s:       amount("sales_by_age_50s"),
		SalesByAge60sAbove:  amount("sales_by_age_60s_above"),
	}
	if firstErr != nil {
		return Record{}, firstErr
	}
	if record.YearQuarter == "" {
		return Record{}, fmt.Errorf("year_quarter is required")
	}
	return record, nil
}
