// Package backendtest is an in-memory stand-in for the hosted data service.
// It evaluates the same query descriptions the real client encodes and runs
// the three remote procedures the app relies on.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/backend"
)

// Row is a stored row after a JSON round trip.
type Row map[string]interface{}

// Call records one operation for assertions.
type Call struct {
	Caller string
	Op     string
	Table  string
	Query  backend.Query
	Body   Row
}

// RPCFunc implements a remote procedure. caller is the signed-in user id.
type RPCFunc func(db *DB, caller string, params Row) (interface{}, error)

// DB holds the tables. Use As to get a connection acting for a user.
type DB struct {
	mu     sync.Mutex
	tables map[string][]Row
	rpcs   map[string]RPCFunc
	fail   map[string]error
	subs   map[*subscriber]struct{}
	calls  []Call
	Now    func() time.Time
}

func New() *DB {
	db := &DB{
		tables: map[string][]Row{},
		rpcs:   map[string]RPCFunc{},
		fail:   map[string]error{},
		subs:   map[*subscriber]struct{}{},
		Now:    time.Now,
	}
	db.rpcs["find_or_create_conversation"] = findOrCreateConversation
	db.rpcs["get_conversation_peer"] = getConversationPeer
	db.rpcs["accept_contact"] = acceptContact
	return db
}

// As returns a connection whose calls run as userID.
func (db *DB) As(userID string) *Conn { return &Conn{db: db, caller: userID} }

// HandleRPC registers or replaces a procedure.
func (db *DB) HandleRPC(name string, fn RPCFunc) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rpcs[name] = fn
}

// Fail makes every later op ("select", "insert", "update", "upsert",
// "delete", "count", "rpc", "subscribe") on table (or procedure name) return
// err. A nil err clears it.
func (db *DB) Fail(op, table string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.fail, op+":"+table)
		return
	}
	db.fail[op+":"+table] = err
}

// Seed stores rows as given, without ids or timestamps being filled in.
func (db *DB) Seed(table string, rows ...interface{}) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, r := range rows {
		db.tables[table] = append(db.tables[table], toRow(r))
	}
}

// Rows returns a copy of table's rows.
func (db *DB) Rows(table string) []Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]Row, 0, len(db.tables[table]))
	for _, r := range db.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Calls returns the recorded operations in order.
func (db *DB) Calls() []Call {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]Call(nil), db.calls...)
}

// Timestamp formats t the way the service does.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

func toRow(v interface{}) Row {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		panic(err)
	}
	return r
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func decode(v interface{}, out interface{}) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (db *DB) record(c Call) error {
	db.calls = append(db.calls, c)
	if err, ok := db.fail[c.Op+":"+c.Table]; ok {
		return err
	}
	return nil
}

// match evaluates q's filters against r.
func match(r Row, q backend.Query) bool {
	for _, f := range q.Filters() {
		if !matchFilter(r, f) {
			return false
		}
	}
	for _, group := range q.Disjunctions() {
		hit := false
		for _, f := range group {
			if matchFilter(r, f) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func value(r Row, col string) (string, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

func matchFilter(r Row, f backend.Filter) bool {
	v, set := value(r, f.Column)
	switch f.Op {
	case backend.OpEq:
		return set && v == f.Value
	case backend.OpNeq:
		return set && v != f.Value
	case backend.OpIs:
		if f.Value == "null" {
			return !set
		}
		return set && v == f.Value
	case backend.OpILike:
		return set && likeMatch(strings.ToLower(v), strings.ToLower(f.Value))
	case backend.OpIn:
		for _, want := range f.Values {
			if set && v == want {
				return true
			}
		}
		return false
	}
	panic("backendtest: unsupported operator " + f.Op)
}

// likeMatch implements % wildcards.
func likeMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, last)
}

func less(a, b interface{}) bool {
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	if a == nil {
		as = ""
	}
	if b == nil {
		bs = ""
	}
	at, aerr := time.Parse(time.RFC3339Nano, as)
	bt, berr := time.Parse(time.RFC3339Nano, bs)
	if aerr == nil && berr == nil {
		return at.Before(bt)
	}
	return as < bs
}

func (db *DB) selectRows(table string, q backend.Query) []Row {
	var rows []Row
	for _, r := range db.tables[table] {
		if match(r, q) {
			rows = append(rows, copyRow(r))
		}
	}
	orders := q.Orders()
	if len(orders) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, o := range orders {
				a, b := rows[i][o.Column], rows[j][o.Column]
				if fmt.Sprint(a) == fmt.Sprint(b) {
					continue
				}
				if o.Ascending {
					return less(a, b)
				}
				return less(b, a)
			}
			return false
		})
	}
	if n := q.RowLimit(); n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	if cols := q.Columns(); cols != "" && cols != "*" {
		keep := strings.Split(cols, ",")
		for i, r := range rows {
			p := Row{}
			for _, c := range keep {
				c = strings.TrimSpace(c)
				if v, ok := r[c]; ok {
					p[c] = v
				}
			}
			rows[i] = p
		}
	}
	return rows
}

func notSingle() error {
	return &backend.ServiceError{
		Status:  http.StatusNotAcceptable,
		Code:    "PGRST116",
		Message: "JSON object requested, multiple (or no) rows returned",
	}
}

func (db *DB) publish(event, table string, rec Row) {
	for s := range db.subs {
		if !s.wants(event, table, rec) {
			continue
		}
		data, _ := json.Marshal(rec)
		ch := backend.Change{
			Type:            event,
			Schema:          "public",
			Table:           table,
			Record:          data,
			CommitTimestamp: Timestamp(db.Now()),
		}
		select {
		case s.out <- ch:
		default:
			// subscribers in tests read promptly; a full buffer means the
			// test stopped listening
		}
	}
}

type subscriber struct {
	filters []backend.ChangeFilter
	out     chan backend.Change
}

func (s *subscriber) wants(event, table string, rec Row) bool {
	for _, f := range s.filters {
		if f.Table != table || (f.Event != "*" && f.Event != event) {
			continue
		}
		if f.Filter == "" {
			return true
		}
		col, rest, ok := strings.Cut(f.Filter, "=")
		if !ok {
			continue
		}
		op, val, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		if matchFilter(rec, backend.Filter{Column: col, Op: op, Value: val}) {
			return true
		}
	}
	return false
}

var errUnauthenticated = &backend.ServiceError{Status: http.StatusUnauthorized, Message: "not authenticated"}

func findOrCreateConversation(db *DB, caller string, params Row) (interface{}, error) {
	other, _ := params["other_user"].(string)
	if caller == "" {
		return nil, errUnauthenticated
	}
	if other == "" || other == caller {
		return nil, &backend.ServiceError{Status: http.StatusBadRequest, Message: "invalid other_user"}
	}
	byConv := map[string]map[string]bool{}
	for _, m := range db.tables["conversation_members"] {
		cid, _ := value(m, "conversation_id")
		uid, _ := value(m, "user_id")
		if byConv[cid] == nil {
			byConv[cid] = map[string]bool{}
		}
		byConv[cid][uid] = true
	}
	for cid, users := range byConv {
		if len(users) == 2 && users[caller] && users[other] {
			return cid, nil
		}
	}
	id := uuid.NewString()
	db.tables["conversations"] = append(db.tables["conversations"], Row{"id": id, "created_at": Timestamp(db.Now())})
	db.tables["conversation_members"] = append(db.tables["conversation_members"],
		Row{"conversation_id": id, "user_id": caller},
		Row{"conversation_id": id, "user_id": other},
	)
	return id, nil
}

func getConversationPeer(db *DB, caller string, params Row) (interface{}, error) {
	conv, _ := params["conv_id"].(string)
	member := false
	var peer interface{}
	for _, m := range db.tables["conversation_members"] {
		cid, _ := value(m, "conversation_id")
		if cid != conv {
			continue
		}
		uid, _ := value(m, "user_id")
		if uid == caller {
			member = true
		} else {
			peer = uid
		}
	}
	if !member {
		return nil, nil
	}
	return peer, nil
}

func acceptContact(db *DB, caller string, params Row) (interface{}, error) {
	req, _ := params["req_id"].(string)
	for _, r := range db.tables["contacts"] {
		id, _ := value(r, "id")
		to, _ := value(r, "addressee_id")
		if id == req && to == caller {
			r["status"] = "accepted"
			return nil, nil
		}
	}
	return nil, &backend.ServiceError{Status: http.StatusBadRequest, Message: "contact request not found"}
}
