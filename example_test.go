package nestdb_test

import (
	"context"
	"fmt"

	"github.com/nestdb/nestdb"
)

func ExampleNewStore() {
	// To create a new engine, [NewStore] should be called. It loads
	// default values and interface implementations; every behavior in
	// this package is controlled by interfaces that can be replaced
	// through options, or mocked to make testing easy.
	store, _ := nestdb.NewStore(
		// Caps reads and writes per table, in documents per second.
		// Exceeding a cap fails fast with [ErrResourceExhausted]
		// instead of queueing. Zero disables throttling.
		nestdb.WithReadUnits(0),
		nestdb.WithWriteUnits(0),
		// Size of the worker pool maintaining secondary indexes on
		// the write path. Zero means one worker per CPU.
		nestdb.WithBuildWorkers(0),
		// How many prepared queries to keep, keyed by query text.
		nestdb.WithPreparedCacheSize(128),
	)

	ctx := context.Background()

	// Tables declare which top-level fields form the primary key.
	_ = store.CreateTable(ctx, nestdb.TableDef{
		Name:      "users",
		KeyFields: []string{"acct_id", "user_id"},
	})

	// Index keys may traverse nested arrays. Such an index holds one
	// entry per combination of array elements, so a single document can
	// own many entries.
	_ = store.CreateIndex(ctx, "users", nestdb.IndexDef{
		Name: "idx_country_showid",
		Keys: []nestdb.IndexKeyPath{
			{Raw: "country"},
			{Raw: "shows[].showId"},
		},
	})

	users, _ := store.Table("users")
	_, _ = users.Put(ctx, map[string]any{
		"acct_id": 1, "user_id": 1, "country": "USA",
		"shows": []any{
			map[string]any{"showId": 15, "showName": "Orphan Black"},
			map[string]any{"showId": 16, "showName": "Halt and Catch Fire"},
		},
	})

	// Prepare parses and plans once; the result is cached by text and
	// reusable. =any succeeds when any element of the flattened path
	// matches.
	pq, _ := store.Prepare(ctx, `select count(*) as cnt from users $u
		where $u.country = 'USA' and $u.shows.showId =any 16`)

	cur, _ := store.Execute(ctx, pq)
	defer cur.Close()

	var out struct {
		Cnt int64 `nestdb:"cnt"`
	}
	for cur.Next() {
		_ = cur.Scan(&out)
		fmt.Println(out.Cnt)
	}
	// Output: 1
}
