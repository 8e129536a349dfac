package data

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"citylayers/internal/biz"
	"citylayers/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// NewReverseGeocoder 按配置选择逆地理编码服务。mapbox 未配置 token 时退回 nominatim。
func NewReverseGeocoder(c *conf.Data, d *Data, logger log.Logger) (biz.ReverseGeocoder, error) {
	g := c.Geocoder
	switch g.Provider {
	case "mapbox":
		if g.AccessToken != "" {
			conn, err := newHTTPClient(g.Endpoint, g.Timeout.AsDuration())
			if err != nil {
				return nil, err
			}
			return &mapboxGeocoder{conn: conn, token: g.AccessToken}, nil
		}
		log.NewHelper(logger).Warn("mapbox access token is empty, falling back to nominatim")
		return newNominatimGeocoder("https://nominatim.openstreetmap.org", g)
	case "nominatim":
		return newNominatimGeocoder(g.Endpoint, g)
	case "postgis":
		if !isPostgres(c.Database.Driver) {
			return nil, fmt.Errorf("postgis geocoder requires a postgres database, got %s", c.Database.Driver)
		}
		return &postgisGeocoder{data: d}, nil
	default:
		return nil, fmt.Errorf("unsupported geocoder: %s", g.Provider)
	}
}

func isPostgres(driver string) bool {
	return driver == "postgres" || driver == "postgresql" || driver == "pgx"
}

func checkCoordinate(lat, lon float64) error {
	if !biz.ValidCoordinate(lat, lon) {
		return biz.ErrInvalidCoordinate.WithMetadata(map[string]string{"lat": fmt.Sprint(lat), "lon": fmt.Sprint(lon)})
	}
	return nil
}

type mapboxGeocoder struct {
	conn  *khttp.Client
	token string
}

type mapboxReply struct {
	Features []struct {
		PlaceName string `json:"place_name"`
		Text      string `json:"text"`
		Address   string `json:"address"`
	} `json:"features"`
}

func (g *mapboxGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if err := checkCoordinate(lat, lon); err != nil {
		return "", err
	}
	path := fmt.Sprintf("/geocoding/v5/mapbox.places/%f,%f.json?types=address&limit=1&access_token=%s",
		lon, lat, url.QueryEscape(g.token))
	var reply mapboxReply
	if err := g.conn.Invoke(ctx, "GET", path, nil, &reply); err != nil {
		return "", err
	}
	if len(reply.Features) == 0 || reply.Features[0].PlaceName == "" {
		return "", fmt.Errorf("no address at %f,%f", lat, lon)
	}
	return reply.Features[0].PlaceName, nil
}

type nominatimGeocoder struct {
	conn *khttp.Client
}

func newNominatimGeocoder(endpoint string, g *conf.Data_Geocoder) (*nominatimGeocoder, error) {
	conn, err := newHTTPClient(endpoint, g.Timeout.AsDuration())
	if err != nil {
		return nil, err
	}
	return &nominatimGeocoder{conn: conn}, nil
}

type nominatimReply struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

func (g *nominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if err := checkCoordinate(lat, lon); err != nil {
		return "", err
	}
	path := fmt.Sprintf("/reverse?format=jsonv2&lat=%f&lon=%f&zoom=18&addressdetails=1", lat, lon)
	var reply nominatimReply
	if err := g.conn.Invoke(ctx, "GET", path, nil, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", fmt.Errorf("nominatim: %s", reply.Error)
	}
	if addr := formatStreetAddress(reply.Address["road"], reply.Address["house_number"], reply.Address["postcode"],
		firstNonEmpty(reply.Address["city"], reply.Address["town"], reply.Address["village"])); addr != "" {
		return addr, nil
	}
	if reply.DisplayName == "" {
		return "", fmt.Errorf("no address at %f,%f", lat, lon)
	}
	return reply.DisplayName, nil
}

// postgisGeocoder 直接查询本地 Nominatim 库的 placex 表，取最近的带名称对象。
type postgisGeocoder struct {
	data *Data
}

const reversePlacexQuery = `
SELECT COALESCE(address->'street', name->'name', '') AS street,
       COALESCE(housenumber, '') AS housenumber,
       COALESCE(postcode, '') AS postcode,
       COALESCE(address->'city', '') AS city
FROM placex
WHERE (name ? 'name' OR housenumber IS NOT NULL)
ORDER BY centroid <-> ST_SetSRID(ST_Point($1,$2), 4326)
LIMIT 1`

func (g *postgisGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if err := checkCoordinate(lat, lon); err != nil {
		return "", err
	}
	db := g.data.SQLDB()
	if db == nil {
		return "", fmt.Errorf("database is not available")
	}
	var street, number, postcode, city string
	row := db.QueryRowContext(ctx, reversePlacexQuery, lon, lat)
	if err := row.Scan(&street, &number, &postcode, &city); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no address at %f,%f", lat, lon)
		}
		return "", err
	}
	addr := formatStreetAddress(street, number, postcode, city)
	if addr == "" {
		return "", fmt.Errorf("no address at %f,%f", lat, lon)
	}
	return addr, nil
}

// formatStreetAddress 拼成 "Straße Nr, PLZ Ort"；没有街道名时返回空，单独的门牌号不构成地址。
func formatStreetAddress(street, number, postcode, city string) string {
	street = strings.TrimSpace(street)
	if street == "" {
		return ""
	}
	street = strings.TrimSpace(street + " " + strings.TrimSpace(number))
	locality := strings.TrimSpace(strings.TrimSpace(postcode) + " " + strings.TrimSpace(city))
	if locality == "" {
		return street
	}
	return street + ", " + locality
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
