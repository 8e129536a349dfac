package data

import (
	"context"
	"fmt"
	"time"

	"citylayers/internal/biz"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

const (
	openMeteoDaily   = "temperature_2m_max,temperature_2m_min,temperature_2m_mean,precipitation_sum,windspeed_10m_max"
	openMeteoCurrent = "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m,wind_direction_10m"
	weatherDays      = 7
)

// weatherSource Open-Meteo 近 7 天逐日天气与当前天气。
type weatherSource struct {
	conn *khttp.Client
	now  func() time.Time
}

type openMeteoReply struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Daily     struct {
		Time          []string   `json:"time"`
		TempMax       []*float64 `json:"temperature_2m_max"`
		TempMin       []*float64 `json:"temperature_2m_min"`
		TempMean      []*float64 `json:"temperature_2m_mean"`
		Precipitation []*float64 `json:"precipitation_sum"`
		WindSpeed     []*float64 `json:"windspeed_10m_max"`
	} `json:"daily"`
	Current *struct {
		Time                string   `json:"time"`
		Temperature         *float64 `json:"temperature_2m"`
		Humidity            *float64 `json:"relative_humidity_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		Precipitation       *float64 `json:"precipitation"`
		WeatherCode         *int     `json:"weather_code"`
		WindSpeed           *float64 `json:"wind_speed_10m"`
		WindDirection       *float64 `json:"wind_direction_10m"`
	} `json:"current"`
}

func (s *weatherSource) Name() string { return biz.SourceWeather }

func (s *weatherSource) Fetch(ctx context.Context, area biz.Area) biz.SourceResult {
	center, ok := area.Center()
	if !ok {
		return biz.SourceResult{Error: "no location given"}
	}
	end := s.now()
	start := end.AddDate(0, 0, -weatherDays)
	path := fmt.Sprintf("/v1/forecast?latitude=%f&longitude=%f&start_date=%s&end_date=%s&daily=%s&current=%s&timezone=auto",
		center.Lat, center.Lon, start.Format(time.DateOnly), end.Format(time.DateOnly), openMeteoDaily, openMeteoCurrent)
	var reply openMeteoReply
	if err := s.conn.Invoke(ctx, "GET", path, nil, &reply); err != nil {
		return biz.SourceResult{Error: fmt.Sprintf("open-meteo: %v", err)}
	}
	return biz.SourceResult{OK: true, Data: reply.report()}
}

func (r *openMeteoReply) report() *biz.WeatherReport {
	d := r.Daily
	report := &biz.WeatherReport{Records: make([]biz.WeatherRecord, 0, len(d.Time))}
	for i, date := range d.Time {
		report.Records = append(report.Records, biz.WeatherRecord{
			Date:          date,
			Latitude:      r.Latitude,
			Longitude:     r.Longitude,
			TempMax:       at(d.TempMax, i),
			TempMin:       at(d.TempMin, i),
			TempAvg:       at(d.TempMean, i),
			Precipitation: at(d.Precipitation, i),
			WindSpeed:     at(d.WindSpeed, i),
		})
	}
	if c := r.Current; c != nil {
		report.Current = &biz.CurrentWeather{
			Time:                c.Time,
			Temperature:         c.Temperature,
			ApparentTemperature: c.ApparentTemperature,
			Humidity:            c.Humidity,
			Precipitation:       c.Precipitation,
			WeatherCode:         c.WeatherCode,
			WindSpeed:           c.WindSpeed,
			WindDirection:       c.WindDirection,
		}
	}
	return report
}

// at 各数组长度可能不一致，越界视为缺失。
func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}
