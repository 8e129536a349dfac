package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap 为配置文件的根结构，由 kratos config 扫描填充。
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	Pipeline *Pipeline `json:"pipeline"`
}

// Server .
type Server struct {
	Http *Server_HTTP `json:"http"`
}

// Server_HTTP .
type Server_HTTP struct {
	Network   string   `json:"network"`
	Addr      string   `json:"addr"`
	Timeout   Duration `json:"timeout"`
	RateLimit float64  `json:"rate_limit"` // 每秒请求数，0 表示不限流
}

// Data 外部依赖配置。
type Data struct {
	Database   *Data_Database `json:"database"`
	Graph      *Data_Graph    `json:"graph"`
	LLM        *Data_LLM      `json:"llm"`
	Geocoder   *Data_Geocoder `json:"geocoder"`
	Weather    *Data_Endpoint `json:"weather"`
	Transport  *Data_Endpoint `json:"transport"`
	Vegetation *Data_Endpoint `json:"vegetation"`
	Amenities  *Data_Endpoint `json:"amenities"`
}

// Data_Database 会话存储数据库。
type Data_Database struct {
	Driver        string   `json:"driver"` // sqlite3 / postgres / mysql
	Source        string   `json:"source"`
	Debug         bool     `json:"debug"`
	SlowThreshold Duration `json:"slow_threshold"`
}

// Data_Graph 图数据库连接及 join 路径命名。
type Data_Graph struct {
	URI           string   `json:"uri"`
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	Database      string   `json:"database"`
	Timeout       Duration `json:"timeout"`
	SlowThreshold Duration `json:"slow_threshold"`
	SchemaTTL     Duration `json:"schema_ttl"`

	PlaceLabel      string `json:"place_label"`
	GradeLabel      string `json:"grade_label"`
	CategoryLabel   string `json:"category_label"`
	GradeToPlace    string `json:"grade_to_place"`
	GradeToCategory string `json:"grade_to_category"`
}

// Data_LLM 语言模型提供方。
type Data_LLM struct {
	Provider    string   `json:"provider"` // google / ollama
	Model       string   `json:"model"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	Temperature float64  `json:"temperature"`
	Timeout     Duration `json:"timeout"`
}

// Data_Geocoder 逆地理编码服务。
type Data_Geocoder struct {
	Provider    string   `json:"provider"` // mapbox / nominatim / postgis
	Endpoint    string   `json:"endpoint"`
	AccessToken string   `json:"access_token"`
	Timeout     Duration `json:"timeout"`
}

// Data_Endpoint 通用外部数据源配置。
type Data_Endpoint struct {
	Endpoint string   `json:"endpoint"`
	Timeout  Duration `json:"timeout"`
	Disabled bool     `json:"disabled"`
}

// Pipeline 查询流水线参数。
type Pipeline struct {
	WidenThreshold    int      `json:"widen_threshold"`
	TopComments       int      `json:"top_comments"`
	MaxGeocode        int      `json:"max_geocode"`
	GeocodeWorkers    int      `json:"geocode_workers"`
	GeocodeTimeout    Duration `json:"geocode_timeout"`
	MaxContextPlaces  int      `json:"max_context_places"`
	SessionTTL        Duration `json:"session_ttl"`
	SessionSweep      Duration `json:"session_sweep"` // 过期会话清理间隔
	HistoryPromptSize int      `json:"history_prompt_size"`
}

// SetDefaults 为缺省字段填充默认值。
func (b *Bootstrap) SetDefaults() {
	if b.Server == nil {
		b.Server = &Server{}
	}
	if b.Server.Http == nil {
		b.Server.Http = &Server_HTTP{}
	}
	if b.Server.Http.Addr == "" {
		b.Server.Http.Addr = "0.0.0.0:8000"
	}
	if b.Server.Http.Timeout == 0 {
		b.Server.Http.Timeout = Duration(120 * time.Second)
	}
	if b.Data == nil {
		b.Data = &Data{}
	}
	d := b.Data
	if d.Database == nil {
		d.Database = &Data_Database{Driver: "sqlite3", Source: "file:citylayers.db?cache=shared&_pragma=busy_timeout(5000)"}
	}
	if d.Graph == nil {
		d.Graph = &Data_Graph{}
	}
	defaultDuration(&d.Database.SlowThreshold, 500*time.Millisecond)
	g := d.Graph
	defaultString(&g.URI, "neo4j://localhost:7687")
	defaultString(&g.Username, "neo4j")
	defaultString(&g.PlaceLabel, "places")
	defaultString(&g.GradeLabel, "place_grades")
	defaultString(&g.CategoryLabel, "categories")
	defaultString(&g.GradeToPlace, "ASSOCIATED_WITH")
	defaultString(&g.GradeToCategory, "OF_CATEGORY")
	defaultDuration(&g.Timeout, 30*time.Second)
	defaultDuration(&g.SlowThreshold, 500*time.Millisecond)
	defaultDuration(&g.SchemaTTL, 10*time.Minute)
	if d.LLM == nil {
		d.LLM = &Data_LLM{}
	}
	defaultString(&d.LLM.Provider, "ollama")
	if d.LLM.Provider == "ollama" {
		defaultString(&d.LLM.BaseURL, "http://localhost:11434")
		defaultString(&d.LLM.Model, "llama3.1")
	} else {
		defaultString(&d.LLM.Model, "gemini-flash-latest")
	}
	defaultDuration(&d.LLM.Timeout, 90*time.Second)
	if d.Geocoder == nil {
		d.Geocoder = &Data_Geocoder{}
	}
	defaultString(&d.Geocoder.Provider, "mapbox")
	if d.Geocoder.Provider == "mapbox" {
		defaultString(&d.Geocoder.Endpoint, "https://api.mapbox.com")
	}
	if d.Geocoder.Provider == "nominatim" {
		defaultString(&d.Geocoder.Endpoint, "https://nominatim.openstreetmap.org")
	}
	defaultDuration(&d.Geocoder.Timeout, 3*time.Second)
	if d.Weather == nil {
		d.Weather = &Data_Endpoint{}
	}
	defaultString(&d.Weather.Endpoint, "https://api.open-meteo.com")
	defaultDuration(&d.Weather.Timeout, 10*time.Second)
	if d.Transport == nil {
		d.Transport = &Data_Endpoint{}
	}
	defaultString(&d.Transport.Endpoint, "https://overpass-api.de")
	defaultDuration(&d.Transport.Timeout, 30*time.Second)
	if d.Vegetation == nil {
		d.Vegetation = &Data_Endpoint{}
	}
	defaultString(&d.Vegetation.Endpoint, "https://data.wien.gv.at")
	defaultDuration(&d.Vegetation.Timeout, 15*time.Second)
	if d.Amenities == nil {
		d.Amenities = &Data_Endpoint{}
	}
	defaultString(&d.Amenities.Endpoint, "https://overpass-api.de")
	defaultDuration(&d.Amenities.Timeout, 30*time.Second)

	if b.Pipeline == nil {
		b.Pipeline = &Pipeline{}
	}
	p := b.Pipeline
	defaultInt(&p.WidenThreshold, 200)
	defaultInt(&p.TopComments, 5)
	defaultInt(&p.MaxGeocode, 50)
	defaultInt(&p.GeocodeWorkers, 10)
	defaultDuration(&p.GeocodeTimeout, 3*time.Second)
	defaultInt(&p.MaxContextPlaces, 50)
	defaultDuration(&p.SessionTTL, 6*time.Hour)
	defaultDuration(&p.SessionSweep, 15*time.Minute)
	defaultInt(&p.HistoryPromptSize, 2)
}

func defaultString(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

func defaultInt(i *int, v int) {
	if *i <= 0 {
		*i = v
	}
}

func defaultDuration(d *Duration, v time.Duration) {
	if *d <= 0 {
		*d = Duration(v)
	}
}

// Duration 支持 "3s" 形式或纳秒整数的 JSON 时长。
type Duration time.Duration

// AsDuration .
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*d = Duration(time.Duration(t))
	case string:
		if t == "" {
			*d = 0
			return nil
		}
		pd, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", t, err)
		}
		*d = Duration(pd)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
