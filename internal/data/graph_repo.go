package data

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"citylayers/internal/biz"
	"citylayers/internal/conf"
	"citylayers/internal/metrics"

	"github.com/eko/gocache/lib/v4/store"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const schemaCacheKey = "graph:schema"

const (
	nodePropertiesQuery = `CALL db.schema.nodeTypeProperties()
YIELD nodeLabels, propertyName, propertyTypes
RETURN nodeLabels, propertyName, propertyTypes`
	relPropertiesQuery = `CALL db.schema.relTypeProperties()
YIELD relType, propertyName, propertyTypes
RETURN relType, propertyName, propertyTypes`
	relPatternsQuery = `MATCH (a)-[r]->(b)
RETURN DISTINCT labels(a) AS start, type(r) AS rel, labels(b) AS end
LIMIT 100`
)

// NewGraphRepo .
func NewGraphRepo(d *Data, logger log.Logger) biz.GraphRepo {
	return &graphRepo{data: d, conf: d.conf.Graph, log: log.NewHelper(logger)}
}

type graphRepo struct {
	data *Data
	conf *conf.Data_Graph
	log  *log.Helper
}

// Schema 返回图结构的文本描述，按 schema_ttl 缓存。
func (r *graphRepo) Schema(ctx context.Context) (string, error) {
	if v, err := r.data.cache.Get(ctx, schemaCacheKey); err == nil {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	var sch graphSchema
	nodes, err := r.run(ctx, nodePropertiesQuery)
	if err != nil {
		return "", fmt.Errorf("load node properties: %w", err)
	}
	for _, rec := range nodes {
		labels := stringList(rec["nodeLabels"])
		if name, ok := rec["propertyName"].(string); ok && len(labels) > 0 {
			sch.nodeProps = append(sch.nodeProps, schemaProp{owner: strings.Join(labels, ":"), name: name, types: stringList(rec["propertyTypes"])})
		}
	}
	rels, err := r.run(ctx, relPropertiesQuery)
	if err != nil {
		return "", fmt.Errorf("load relationship properties: %w", err)
	}
	for _, rec := range rels {
		if name, ok := rec["propertyName"].(string); ok {
			owner := strings.Trim(fmt.Sprint(rec["relType"]), ":`")
			sch.relProps = append(sch.relProps, schemaProp{owner: owner, name: name, types: stringList(rec["propertyTypes"])})
		}
	}
	patterns, err := r.run(ctx, relPatternsQuery)
	if err != nil {
		return "", fmt.Errorf("load relationship patterns: %w", err)
	}
	for _, rec := range patterns {
		start, end := stringList(rec["start"]), stringList(rec["end"])
		rel, _ := rec["rel"].(string)
		if len(start) == 0 || len(end) == 0 || rel == "" {
			continue
		}
		sch.patterns = append(sch.patterns, fmt.Sprintf("(:%s)-[:%s]->(:%s)", start[0], rel, end[0]))
	}
	text := sch.String()
	if err := r.data.cache.Set(ctx, schemaCacheKey, text, store.WithExpiration(r.conf.SchemaTTL.AsDuration())); err != nil {
		r.log.WithContext(ctx).Warnf("cache graph schema: %v", err)
	}
	return text, nil
}

// Query 以只读路由执行查询，节点与关系转换为属性 map。
func (r *graphRepo) Query(ctx context.Context, cypher string) ([]biz.Row, error) {
	return r.run(ctx, cypher)
}

func (r *graphRepo) run(ctx context.Context, cypher string) ([]biz.Row, error) {
	if timeout := r.conf.Timeout.AsDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := neo4j.ExecuteQuery(ctx, r.data.graph, cypher, nil, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.conf.Database),
		neo4j.ExecuteQueryWithReadersRouting())
	d := time.Since(start)
	metrics.GraphQueryDuration.Observe(d.Seconds())
	reportQuery("cypher", cypher, nil, d, r.conf.SlowThreshold.AsDuration(), r.data.conf.Database.Debug)
	if err != nil {
		return nil, err
	}
	rows := make([]biz.Row, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, recordRow(rec.Keys, rec.Values))
	}
	return rows, nil
}

func recordRow(keys []string, values []any) biz.Row {
	row := make(biz.Row, len(keys))
	for i, k := range keys {
		if i < len(values) {
			row[k] = plainValue(values[i])
		}
	}
	return row
}

// plainValue 将驱动类型转换为 map、切片与标量。
func plainValue(v any) any {
	switch t := v.(type) {
	case dbtype.Node:
		return withIdentity(plainMap(t.Props), t.ElementId)
	case dbtype.Relationship:
		return withIdentity(plainMap(t.Props), t.ElementId)
	case dbtype.Path:
		nodes := make([]any, 0, len(t.Nodes))
		for _, n := range t.Nodes {
			nodes = append(nodes, withIdentity(plainMap(n.Props), n.ElementId))
		}
		return nodes
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = plainValue(x)
		}
		return out
	case map[string]any:
		return plainMap(t)
	case dbtype.Point2D:
		return map[string]any{"longitude": t.X, "latitude": t.Y, "srid": int64(t.SpatialRefId)}
	case dbtype.Point3D:
		return map[string]any{"longitude": t.X, "latitude": t.Y, "height": t.Z, "srid": int64(t.SpatialRefId)}
	case dbtype.Date:
		return t.Time().Format(time.DateOnly)
	case dbtype.LocalDateTime:
		return t.Time().Format("2006-01-02T15:04:05")
	case time.Time:
		return t.Format(time.RFC3339)
	case dbtype.Duration:
		return t.String()
	default:
		return v
	}
}

// withIdentity 保留节点/关系的 element id，聚合时据此区分属性相同的节点。
func withIdentity(m map[string]any, elementID string) map[string]any {
	if elementID != "" {
		m[biz.NodeIdentityKey] = elementID
	}
	return m
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

type schemaProp struct {
	owner string
	name  string
	types []string
}

type graphSchema struct {
	nodeProps []schemaProp
	relProps  []schemaProp
	patterns  []string
}

func (s graphSchema) String() string {
	var sb strings.Builder
	sb.WriteString("Node properties:\n")
	writeProps(&sb, s.nodeProps)
	sb.WriteString("Relationship properties:\n")
	writeProps(&sb, s.relProps)
	sb.WriteString("The relationships:\n")
	patterns := append([]string(nil), s.patterns...)
	sort.Strings(patterns)
	for _, p := range patterns {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeProps(sb *strings.Builder, props []schemaProp) {
	grouped := make(map[string][]string)
	var owners []string
	for _, p := range props {
		if _, ok := grouped[p.owner]; !ok {
			owners = append(owners, p.owner)
		}
		typ := "ANY"
		if len(p.types) > 0 {
			typ = strings.ToUpper(strings.Join(p.types, "|"))
		}
		grouped[p.owner] = append(grouped[p.owner], p.name+": "+typ)
	}
	sort.Strings(owners)
	for _, o := range owners {
		fmt.Fprintf(sb, "%s {%s}\n", o, strings.Join(grouped[o], ", "))
	}
}
