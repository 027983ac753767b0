// Package reportexport renders an HTML heatmap of record density by
// time of week — the firewall-log analogue of the teacher's IP/16
// heatmap, bucketing by day-of-week and hour-of-day instead of by
// address octets.
package reportexport

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/opnsense-tools/fwlogstore/record"
)

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// PlotHourlyHeatmap writes an interactive HTML heatmap of records to
// filename, bucketed by weekday and hour-of-day. Records with a
// synthetic timestamp (logparser.Decode could not parse one from the
// line) still count toward their ingest-time bucket, since a missing
// timestamp is not a reason to drop a match from the density view.
func PlotHourlyHeatmap(records []record.Record, filename string) error {
	counts := bucketCounts(records)

	var heatmapData []opts.HeatMapData
	var maxCount uint32
	for day := 0; day < 7; day++ {
		for hour := 0; hour < 24; hour++ {
			count := counts[day][hour]
			if count > maxCount {
				maxCount = count
			}
			if count > 0 {
				heatmapData = append(heatmapData, opts.HeatMapData{
					Value: [3]interface{}{hour, day, count},
					Name:  fmt.Sprintf("%s %02d:00", weekdayNames[day], hour),
				})
			}
		}
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       "Firewall Log Density",
			Width:           "180vh",
			Height:          "60vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Matched Records by Day and Hour",
			Left:  "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "item",
			Formatter: opts.FuncOpts(`function (params) {
		return params.name + '<br />Count: ' + params.value[2];
	}`),
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show: opts.Bool(true),
			Min:  0,
			Max:  float32(maxCount),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#ffff8f", "#ff0000", "#000000"},
			},
			Orient: "vertical",
			Right:  "5%",
			Top:    "middle",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:        "Hour",
			Type:        "category",
			Data:        hourRange(),
			SplitNumber: 24,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Day",
			Type: "category",
			Data: weekdayNames,
		}),
	)
	heatmap.AddSeries("Records", heatmapData)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(heatmap)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("reportexport: creating %s: %w", filename, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("reportexport: rendering heatmap: %w", err)
	}
	return nil
}

// bucketCounts tallies records into a [weekday][hour] grid. Records
// with a synthetic timestamp still count toward their ingest-time
// bucket.
func bucketCounts(records []record.Record) [7][24]uint32 {
	var counts [7][24]uint32
	for _, r := range records {
		t := r.Timestamp.Instant
		counts[int(t.Weekday())][t.Hour()]++
	}
	return counts
}

func hourRange() []int {
	hours := make([]int, 24)
	for i := range hours {
		hours[i] = i
	}
	return hours
}
