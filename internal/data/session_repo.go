package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"citylayers/internal/biz"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-kratos/kratos/v2/log"
)

const sessionTable = "chat_sessions"

var sessionColumns = []string{"id", "history", "last_places", "last_query", "created_at", "expires_at"}

// sessionDDL 只使用 sqlite、postgres 与 mysql 共有的列类型。
const sessionDDL = `CREATE TABLE IF NOT EXISTS ` + sessionTable + ` (
	id varchar(64) NOT NULL PRIMARY KEY,
	history text NOT NULL,
	last_places text NOT NULL,
	last_query text NOT NULL,
	created_at bigint NOT NULL,
	expires_at bigint NOT NULL
)`

func migrateSessions(ctx context.Context, drv *entsql.Driver) error {
	return drv.Exec(ctx, sessionDDL, []any{}, nil)
}

// NewSessionRepo .
func NewSessionRepo(d *Data, logger log.Logger) biz.SessionRepo {
	return &sessionRepo{data: d, log: log.NewHelper(logger)}
}

type sessionRepo struct {
	data *Data
	log  *log.Helper
}

func (r *sessionRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.data.sqlDrv.Dialect())
}

func (r *sessionRepo) Load(ctx context.Context, id string) (*biz.Session, error) {
	query, args := r.builder().
		Select(sessionColumns...).
		From(entsql.Table(sessionTable)).
		Where(entsql.EQ("id", id)).
		Query()
	rows := &entsql.Rows{}
	if err := r.data.sqlDrv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, biz.ErrSessionNotFound
	}
	var (
		s                    biz.Session
		history, places      string
		createdAt, expiresAt int64
	)
	if err := rows.Scan(&s.ID, &history, &places, &s.LastQuery, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(history), &s.History); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(places), &s.LastPlaces); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(createdAt)
	s.ExpiresAt = time.UnixMilli(expiresAt)
	return &s, nil
}

func (r *sessionRepo) Save(ctx context.Context, s *biz.Session) error {
	history, err := json.Marshal(nonNil(s.History))
	if err != nil {
		return err
	}
	places, err := json.Marshal(nonNil(s.LastPlaces))
	if err != nil {
		return err
	}
	query, args := r.builder().
		Insert(sessionTable).
		Columns(sessionColumns...).
		Values(s.ID, string(history), string(places), s.LastQuery, s.CreatedAt.UnixMilli(), s.ExpiresAt.UnixMilli()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	return r.data.sqlDrv.Exec(ctx, query, args, nil)
}

// DeleteExpired 清理过期会话，返回删除条数。
func (r *sessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	query, args := r.builder().
		Delete(sessionTable).
		Where(entsql.LT("expires_at", time.Now().UnixMilli())).
		Query()
	var res sql.Result
	if err := r.data.sqlDrv.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.WithContext(ctx).Infof("deleted %d expired sessions", n)
	}
	return int(n), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
