package biz

// 外部数据源的数据结构，由 data 层填充到 SourceResult.Data。

// WeatherRecord 单日天气。
type WeatherRecord struct {
	Date          string   `json:"date"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	TempMax       *float64 `json:"tmax,omitempty"`
	TempMin       *float64 `json:"tmin,omitempty"`
	TempAvg       *float64 `json:"tavg,omitempty"`
	Precipitation *float64 `json:"prcp,omitempty"`
	WindSpeed     *float64 `json:"wspd,omitempty"`
}

// CurrentWeather 当前天气。
type CurrentWeather struct {
	Time                string   `json:"time"`
	Temperature         *float64 `json:"temperature,omitempty"`
	ApparentTemperature *float64 `json:"apparent_temperature,omitempty"`
	Humidity            *float64 `json:"humidity,omitempty"`
	Precipitation       *float64 `json:"precipitation,omitempty"`
	WeatherCode         *int     `json:"weather_code,omitempty"`
	WindSpeed           *float64 `json:"wind_speed,omitempty"`
	WindDirection       *float64 `json:"wind_direction,omitempty"`
}

// WeatherReport 天气数据源结果。
type WeatherReport struct {
	Records []WeatherRecord `json:"records"`
	Current *CurrentWeather `json:"current,omitempty"`
}

// TransitStation 公共交通站点。
type TransitStation struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Operator string  `json:"operator,omitempty"`
	Network  string  `json:"network,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Tree 树木登记记录。
type Tree struct {
	ID                 string  `json:"id"`
	Species            string  `json:"species"`
	Genus              string  `json:"genus,omitempty"`
	Height             float64 `json:"height,omitempty"`
	CrownDiameter      float64 `json:"crown_diameter,omitempty"`
	TrunkCircumference float64 `json:"trunk_circumference,omitempty"`
	PlantingYear       string  `json:"planting_year,omitempty"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
}

// Amenity OSM 中带 amenity 标签的设施；way 取中心点。
type Amenity struct {
	ID   int64   `json:"id"`
	Kind string  `json:"kind"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}
