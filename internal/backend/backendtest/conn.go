package backendtest

import (
	"context"

	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/backend"
)

// Conn acts on a DB as one user. It has the same table, RPC and realtime
// methods as backend.Client.
type Conn struct {
	db     *DB
	caller string
}

// Caller is the user id this connection acts for.
func (c *Conn) Caller() string { return c.caller }

func (c *Conn) Select(ctx context.Context, table string, q backend.Query, out interface{}) error {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record(Call{Caller: c.caller, Op: "select", Table: table, Query: q}); err != nil {
		return err
	}
	rows := db.selectRows(table, q)
	switch {
	case q.IsSingle():
		if len(rows) != 1 {
			return notSingle()
		}
		return decode(rows[0], out)
	case q.IsMaybeSingle():
		if len(rows) == 0 {
			return nil
		}
		if len(rows) > 1 {
			return notSingle()
		}
		return decode(rows[0], out)
	}
	if rows == nil {
		rows = []Row{}
	}
	return decode(rows, out)
}

func (c *Conn) Count(ctx context.Context, table string, q backend.Query) (int, error) {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record(Call{Caller: c.caller, Op: "count", Table: table, Query: q}); err != nil {
		return 0, err
	}
	return len(db.selectRows(table, q.Limit(0))), nil
}

func (c *Conn) Insert(ctx context.Context, table string, row interface{}, out interface{}) error {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	r := toRow(row)
	if err := db.record(Call{Caller: c.caller, Op: "insert", Table: table, Body: copyRow(r)}); err != nil {
		return err
	}
	if _, ok := r["id"]; !ok {
		r["id"] = uuid.NewString()
	}
	if v, ok := r["created_at"]; !ok || v == nil {
		r["created_at"] = Timestamp(db.Now())
	}
	db.tables[table] = append(db.tables[table], r)
	db.publish(backend.EventInsert, table, copyRow(r))
	return decode(r, out)
}

func (c *Conn) Upsert(ctx context.Context, table string, row interface{}) error {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	r := toRow(row)
	if err := db.record(Call{Caller: c.caller, Op: "upsert", Table: table, Body: copyRow(r)}); err != nil {
		return err
	}
	id, _ := value(r, "id")
	for _, existing := range db.tables[table] {
		if eid, _ := value(existing, "id"); id != "" && eid == id {
			for k, v := range r {
				existing[k] = v
			}
			db.publish(backend.EventUpdate, table, copyRow(existing))
			return nil
		}
	}
	db.tables[table] = append(db.tables[table], r)
	db.publish(backend.EventInsert, table, copyRow(r))
	return nil
}

func (c *Conn) Update(ctx context.Context, table string, patch interface{}, q backend.Query) error {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	p := toRow(patch)
	if err := db.record(Call{Caller: c.caller, Op: "update", Table: table, Query: q, Body: copyRow(p)}); err != nil {
		return err
	}
	for _, r := range db.tables[table] {
		if !match(r, q) {
			continue
		}
		for k, v := range p {
			r[k] = v
		}
		db.publish(backend.EventUpdate, table, copyRow(r))
	}
	return nil
}

func (c *Conn) Delete(ctx context.Context, table string, q backend.Query) error {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record(Call{Caller: c.caller, Op: "delete", Table: table, Query: q}); err != nil {
		return err
	}
	kept := db.tables[table][:0]
	for _, r := range db.tables[table] {
		if match(r, q) {
			db.publish(backend.EventDelete, table, copyRow(r))
			continue
		}
		kept = append(kept, r)
	}
	db.tables[table] = kept
	return nil
}

func (c *Conn) RPC(ctx context.Context, fn string, params interface{}, out interface{}) error {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	p := toRow(params)
	if err := db.record(Call{Caller: c.caller, Op: "rpc", Table: fn, Body: copyRow(p)}); err != nil {
		return err
	}
	impl, ok := db.rpcs[fn]
	if !ok {
		return &backend.ServiceError{Status: 404, Code: "PGRST202", Message: "function " + fn + " not found"}
	}
	res, err := impl(db, c.caller, p)
	if err != nil || res == nil {
		return err
	}
	return decode(res, out)
}

// Subscribe registers a change listener. Changes are buffered; a listener
// that stops reading loses later changes.
func (c *Conn) Subscribe(ctx context.Context, ch backend.Channel) (*backend.Subscription, error) {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record(Call{Caller: c.caller, Op: "subscribe", Table: ch.Topic}); err != nil {
		return nil, err
	}
	s := &subscriber{filters: ch.Changes, out: make(chan backend.Change, 64)}
	db.subs[s] = struct{}{}
	done := make(chan struct{})
	stop := func() {
		db.mu.Lock()
		defer db.mu.Unlock()
		if _, ok := db.subs[s]; ok {
			delete(db.subs, s)
			close(s.out)
		}
		close(done)
	}
	sub := backend.NewSubscription(s.out, stop)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}
