// Package sqlstore emulates the two subscription tables on an embedded SQL database so
// the store runs without a Cassandra cluster. It understands the store's statement
// catalog by name and ignores the CQL text.
package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/fiffu/substore/lib/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultFetchSize = 5000

type Session struct {
	db               *gorm.DB
	defaultFetchSize int
}

var _ store.Session = (*Session)(nil)

func NewSession(db *gorm.DB, defaultFetchSize int) (*Session, error) {
	if err := db.AutoMigrate(&subscriptionRow{}, &userSubscriptionRow{}); err != nil {
		return nil, err
	}
	if defaultFetchSize <= 0 {
		defaultFetchSize = DefaultFetchSize
	}
	return &Session{db, defaultFetchSize}, nil
}

func (s *Session) Execute(ctx context.Context, stmt store.Statement) ([]store.Row, error) {
	return s.run(s.db.WithContext(ctx), stmt)
}

// Batch applies every statement in one transaction.
func (s *Session) Batch(ctx context.Context, stmts []store.Statement) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			if _, err := s.run(tx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Paginate pages over the full ordered result. The page state is the decimal offset
// of the next row.
func (s *Session) Paginate(ctx context.Context, stmt store.Statement, pageState []byte, fetchSize int, fn func(store.Row) error) ([]byte, error) {
	if fetchSize <= 0 {
		fetchSize = s.defaultFetchSize
	}
	offset := 0
	if len(pageState) > 0 {
		n, err := strconv.Atoi(string(pageState))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("sqlstore: invalid page state %q", pageState)
		}
		offset = n
	}

	rows, err := s.Execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	end := min(offset+fetchSize, len(rows))
	for _, r := range rows[offset:end] {
		if err := fn(r); err != nil {
			return nil, err
		}
	}
	if end == len(rows) {
		return nil, nil
	}
	return []byte(strconv.Itoa(end)), nil
}

func (s *Session) run(tx *gorm.DB, stmt store.Statement) ([]store.Row, error) {
	h, ok := handlers[stmt.Name]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported statement %q", stmt.Name)
	}
	args := &argReader{name: stmt.Name, args: stmt.Args}
	rows, err := h(tx, args)
	if err == nil {
		err = args.err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %s: %w", stmt.Name, err)
	}
	return rows, nil
}

type handler func(tx *gorm.DB, args *argReader) ([]store.Row, error)

var handlers = map[string]handler{
	store.StmtSelectSubscription: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		return findSubscriptions(tx.Where("app_id = ? AND state = ? AND artifact_id = ? AND user_id = ?", a.str(), a.int(), a.ids(), a.str()))
	},
	store.StmtSelectSubscriptionJSON: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		rows, err := findSubscriptions(tx.Where("app_id = ? AND state = ? AND artifact_id = ? AND user_id = ?", a.str(), a.int(), a.ids(), a.str()))
		return asJSON(rows, err)
	},
	store.StmtSelectUserSubscriptionJSON: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		rows, err := findUserSubscriptions(tx.Where("user_id = ? AND state = ? AND app_id = ? AND artifact_id = ?", a.str(), a.int(), a.str(), a.ids()))
		return asJSON(rows, err)
	},
	store.StmtInsertSubscription: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		row := subscriptionRow{
			AppID: a.str(), ArtifactID: a.ids(), UserID: a.str(), State: a.int(),
			Artifact: a.json(), ChannelSettings: a.json(), Role: a.str(),
			CreatedDate: a.time(), UpdatedDate: a.time(), SubscriptionType: a.str(),
		}
		return nil, upsert(tx, a, &row)
	},
	store.StmtInsertUserSubscription: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		row := userSubscriptionRow{AppID: a.str(), ArtifactID: a.ids(), UserID: a.str(), State: a.int()}
		return nil, upsert(tx, a, &row)
	},
	store.StmtInsertSubscriptionJSON: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		doc, err := a.doc()
		if err != nil {
			return nil, err
		}
		row, err := doc.subscriptionRow()
		if err != nil {
			return nil, err
		}
		return nil, upsert(tx, a, &row)
	},
	store.StmtInsertUserSubscriptionJSON: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		doc, err := a.doc()
		if err != nil {
			return nil, err
		}
		row, err := doc.userSubscriptionRow()
		if err != nil {
			return nil, err
		}
		return nil, upsert(tx, a, &row)
	},
	store.StmtDeleteSubscription: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		q := tx.Where("app_id = ? AND state = ? AND artifact_id = ? AND user_id = ?", a.str(), a.int(), a.ids(), a.str())
		return nil, remove(q, a, &subscriptionRow{})
	},
	store.StmtDeleteUserSubscription: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		q := tx.Where("user_id = ? AND state = ? AND app_id = ? AND artifact_id = ?", a.str(), a.int(), a.str(), a.ids())
		return nil, remove(q, a, &userSubscriptionRow{})
	},
	store.StmtUpdateSubscription: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		values := map[string]any{
			"artifact": a.json(), "channelsettings": a.json(), "role": a.str(),
			"subscriptiontype": a.str(), "updated_date": a.time(),
		}
		q := tx.Model(&subscriptionRow{}).Where("app_id = ? AND state = ? AND artifact_id = ? AND user_id = ?", a.str(), a.int(), a.ids(), a.str())
		if a.err != nil {
			return nil, a.err
		}
		return nil, q.Updates(values).Error
	},
	store.StmtSelectByIDs: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		return findSubscriptions(tx.Where("app_id = ? AND state IN ? AND artifact_id IN ?", a.str(), a.ints(), a.idsList()))
	},
	store.StmtSelectByIDsForUser: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		return findSubscriptions(tx.Where("app_id = ? AND state IN ? AND artifact_id IN ? AND user_id = ?", a.str(), a.ints(), a.idsList(), a.str()))
	},
	store.StmtSelectByIDsForUsers: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		return findSubscriptions(tx.Where("app_id = ? AND state IN ? AND artifact_id IN ? AND user_id IN ?", a.str(), a.ints(), a.idsList(), a.strs()))
	},
	store.StmtSelectUserSubscriptionsByUser: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		return findUserSubscriptions(tx.Where("user_id = ? AND state IN ?", a.str(), a.ints()))
	},
	store.StmtCascadeDeleteSubscriptions: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		q := tx.Where("artifact_id IN ? AND app_id = ? AND state IN ? AND user_id IN ?", a.idsList(), a.str(), a.ints(), a.strs())
		return nil, remove(q, a, &subscriptionRow{})
	},
	store.StmtCascadeDeleteUserSubscriptions: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		q := tx.Where("artifact_id IN ? AND app_id = ? AND state IN ? AND user_id IN ?", a.idsList(), a.str(), a.ints(), a.strs())
		return nil, remove(q, a, &userSubscriptionRow{})
	},
	store.StmtCountByArtifact: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		rows, err := filterContains(tx, a)
		if err != nil {
			return nil, err
		}
		return []store.Row{{"count": int64(len(rows))}}, nil
	},
	store.StmtSelectByArtifactRole: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		rows, err := filterContains(tx, a)
		if err != nil {
			return nil, err
		}
		role := a.str()
		var out []store.Row
		for _, r := range rows {
			if r["role"] == role {
				out = append(out, r)
			}
		}
		return out, nil
	},
	store.StmtSelectByArtifact: func(tx *gorm.DB, a *argReader) ([]store.Row, error) {
		rows, err := filterContains(tx, a)
		if err != nil {
			return nil, err
		}
		if limit, ok := a.limit(); ok && limit < len(rows) {
			rows = rows[:limit]
		}
		return rows, nil
	},
}

func findSubscriptions(q *gorm.DB) ([]store.Row, error) {
	var found []subscriptionRow
	if err := q.Order("state, artifact_id, user_id").Find(&found).Error; err != nil {
		return nil, err
	}
	rows := make([]store.Row, len(found))
	for i, f := range found {
		r, err := f.row()
		if err != nil {
			return nil, err
		}
		rows[i] = r
	}
	return rows, nil
}

func findUserSubscriptions(q *gorm.DB) ([]store.Row, error) {
	var found []userSubscriptionRow
	if err := q.Order("state, app_id, artifact_id").Find(&found).Error; err != nil {
		return nil, err
	}
	rows := make([]store.Row, len(found))
	for i, f := range found {
		r, err := f.row()
		if err != nil {
			return nil, err
		}
		rows[i] = r
	}
	return rows, nil
}

func asJSON(rows []store.Row, err error) ([]store.Row, error) {
	if err != nil {
		return nil, err
	}
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		if out[i], err = jsonRow(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func upsert(tx *gorm.DB, a *argReader, row any) error {
	if a.err != nil {
		return a.err
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func remove(q *gorm.DB, a *argReader, model any) error {
	if a.err != nil {
		return a.err
	}
	return q.Delete(model).Error
}

// filterContains loads an app partition and keeps the rows whose artifact id list
// contains every bound element, as CONTAINS with ALLOW FILTERING would.
func filterContains(tx *gorm.DB, a *argReader) ([]store.Row, error) {
	appID := a.str()
	var want []string
	for a.peekElement() {
		want = append(want, a.element())
	}
	if a.err != nil {
		return nil, a.err
	}

	rows, err := findSubscriptions(tx.Where("app_id = ?", appID))
	if err != nil {
		return nil, err
	}
	var out []store.Row
	for _, r := range rows {
		var ids []string
		for _, e := range r["artifact_id"].([]map[string]any) {
			ids = append(ids, e["id"].(string))
		}
		matches := true
		for _, w := range want {
			if !slices.Contains(ids, w) {
				matches = false
				break
			}
		}
		if matches {
			out = append(out, r)
		}
	}
	return out, nil
}

// argReader consumes bound arguments in order. The first mismatch is kept in err and
// every later read returns a zero value.
type argReader struct {
	name string
	args []any
	i    int
	err  error
}

func (a *argReader) next() any {
	if a.err != nil {
		return nil
	}
	if a.i >= len(a.args) {
		a.err = fmt.Errorf("missing argument %d", a.i)
		return nil
	}
	v := a.args[a.i]
	a.i++
	return v
}

func (a *argReader) fail(want string, v any) {
	if a.err == nil {
		a.err = fmt.Errorf("argument %d: want %s, got %T", a.i-1, want, v)
	}
}

func (a *argReader) str() string {
	v := a.next()
	s, ok := v.(string)
	if !ok {
		a.fail("string", v)
	}
	return s
}

func (a *argReader) int() int {
	v := a.next()
	n, ok := v.(int)
	if !ok {
		a.fail("int", v)
	}
	return n
}

func (a *argReader) ints() []int {
	v := a.next()
	n, ok := v.([]int)
	if !ok {
		a.fail("[]int", v)
	}
	return n
}

func (a *argReader) strs() []string {
	v := a.next()
	s, ok := v.([]string)
	if !ok {
		a.fail("[]string", v)
	}
	return s
}

func (a *argReader) time() time.Time {
	v := a.next()
	t, ok := v.(time.Time)
	if !ok {
		a.fail("time.Time", v)
	}
	return t.UTC()
}

func (a *argReader) ids() string {
	v := a.next()
	if a.err != nil {
		return ""
	}
	s, err := encodeIDs(v)
	if err != nil {
		a.err = err
	}
	return s
}

func (a *argReader) idsList() []string {
	v := a.next()
	list, ok := v.([][]map[string]any)
	if !ok {
		a.fail("[][]map[string]any", v)
		return nil
	}
	out := make([]string, len(list))
	for i, ids := range list {
		s, err := encodeIDs(ids)
		if err != nil {
			a.err = err
			return nil
		}
		out[i] = s
	}
	return out
}

func (a *argReader) json() string {
	v := a.next()
	if a.err != nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		a.err = err
	}
	return string(b)
}

func (a *argReader) doc() (jsonDoc, error) {
	s := a.str()
	if a.err != nil {
		return nil, a.err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var doc jsonDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *argReader) peekElement() bool {
	if a.err != nil || a.i >= len(a.args) {
		return false
	}
	_, ok := a.args[a.i].(map[string]any)
	return ok
}

func (a *argReader) element() string {
	v := a.next()
	m, _ := v.(map[string]any)
	id, ok := m["id"].(string)
	if !ok {
		a.fail("artifact id element", v)
	}
	return id
}

func (a *argReader) limit() (int, bool) {
	if a.err != nil || a.i >= len(a.args) {
		return 0, false
	}
	return a.int(), true
}
