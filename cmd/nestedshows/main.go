// Command nestedshows loads a small viewing-history dataset and runs a set
// of queries over nested show/season/episode arrays: quantified comparisons,
// correlated filter steps, unnesting, grouping and index hints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/nestdb/nestdb"
	"github.com/nestdb/nestdb/adapter/data"
)

var queries = []struct {
	label string
	src   string
}{
	{
		"USA users who watched show 16 and started some series after 2021-04-01",
		`select count(*) as cnt from users $u
		 where $u.country = 'USA' and $u.shows.showId =any 16 and $u.shows.seriesStartDate >any '2021-04-01'`,
	},
	{
		"same conditions correlated to a single show element",
		`select count(*) as cnt from users $u
		 where exists $u.shows[$element.showId = 16 and $element.seriesStartDate > '2021-04-01']`,
	},
	{
		"users with an episode of show 15 season 1 watched over 40 minutes",
		`select count(*) as cnt from users $u
		 where exists $u.shows[$element.showId = 15].seasons[$element.seasonNum = 1].episodes[$element.minWatched > 40]`,
	},
	{
		"users watching any of the featured shows",
		`select count(*) as cnt from users $u where exists $u.shows[$element.showId in (15, 16, 26)]`,
	},
	{
		"the same count forced through the show id index",
		`select /*+ FORCE_INDEX(users idx_showid) */ count(*) as cnt from users $u
		 where exists $u.shows[$element.showId in (15, 16, 26)]`,
	},
	{
		"crime watchers in the USA",
		`select count(*) as cnt from users $u where $u.country = 'USA' and $u.shows.genres =any 'crime'`,
	},
	{
		"minutes each user spent on show 26",
		`select $u.acct_id as acct, $u.user_id as user,
		        seq_sum($u.shows[$element.showId = 26].seasons.episodes.minWatched) as minutes
		 from users $u where $u.shows.showId =any 26`,
	},
	{
		"users who watched every episode of show 15 for at least 20 minutes",
		`select count(*) as cnt from users $u
		 where $u.shows.showId =any 15
		   and not seq_transform($u.shows[$element.showId = 15].seasons.episodes, $sq1.minWatched >= 20) =any false`,
	},
	{
		"per-user show cards",
		`select { 'acct': $u.acct_id, 'user': $u.user_id } as who,
		        [ $show.showId, $show.showName ] as card
		 from users $u, unnest($u.shows as $show)`,
	},
	{
		"audience per show",
		`select $show.showId as show, count(*) as cnt
		 from users $u, $u.shows as $show
		 group by $show.showId order by count(*) desc`,
	},
	{
		"total minutes per show",
		`select $show.showId as show,
		        sum(seq_transform($show.seasons, seq_transform($sq1.episodes, $sq2.minWatched))) as minutes
		 from users $u, unnest($u.shows as $show)
		 group by $show.showId order by sum(seq_transform($show.seasons, seq_transform($sq1.episodes, $sq2.minWatched))) desc`,
	},
	{
		"users whose every series started on or after 2021-01-01",
		`select count(*) as cnt from users $u
		 where not seq_transform($u.shows, '2021-01-01' <= $sq1.seriesStartDate) =any false`,
	},
	{
		"minutes per show and season",
		`select $show.showId as show, $season.seasonNum as season,
		        seq_sum($season.episodes.minWatched) as minutes
		 from users $u, unnest($u.shows as $show, $show.seasons as $season)
		 group by $show.showId, $season.seasonNum
		 order by $show.showId, $season.seasonNum`,
	},
}

func main() {
	qno := flag.Int("qno", 0, "run a single built-in query by number, 0 runs all")
	query := flag.String("query", "", "run this query text instead of the built-in set")
	showPlan := flag.Bool("showPlan", false, "print the plan before each query")
	dataDir := flag.String("data", "testdata", "directory of user JSON documents")
	writeUnits := flag.Int("writeUnits", 0, "write throttle in documents per second, 0 is unlimited")
	flag.Parse()

	if err := run(context.Background(), *qno, *query, *showPlan, *dataDir, *writeUnits); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, qno int, query string, showPlan bool, dataDir string, writeUnits int) error {
	store, err := nestdb.NewStore(nestdb.WithWriteUnits(writeUnits))
	if err != nil {
		return err
	}

	if err := setup(ctx, store); err != nil {
		return err
	}
	if err := load(ctx, store, dataDir); err != nil {
		return err
	}

	if query != "" {
		return runQuery(ctx, store, "ad hoc", query, showPlan)
	}
	for n, q := range queries {
		if qno != 0 && qno != n+1 {
			continue
		}
		if err := runQuery(ctx, store, fmt.Sprintf("Q%d %s", n+1, q.label), q.src, showPlan); err != nil {
			return err
		}
	}
	return nil
}

func setup(ctx context.Context, store nestdb.Store) error {
	if err := store.CreateTable(ctx, nestdb.TableDef{
		Name:      "users",
		KeyFields: []string{"acct_id", "user_id"},
	}); err != nil {
		return err
	}

	for _, def := range []nestdb.IndexDef{
		{Name: "idx_country_showid_date", Keys: []nestdb.IndexKeyPath{
			{Raw: "country"}, {Raw: "shows[].showId"}, {Raw: "shows[].seriesStartDate"},
		}},
		{Name: "idx_country_genre", Keys: []nestdb.IndexKeyPath{
			{Raw: "country"}, {Raw: "shows[].genres[]"},
		}},
		{Name: "idx_showid", Keys: []nestdb.IndexKeyPath{
			{Raw: "shows[].showId"},
		}, UniqueKeysPerRow: true},
		{Name: "idx_showid_minWatched", Keys: []nestdb.IndexKeyPath{
			{Raw: "shows[].showId"}, {Raw: "shows[].seasons[].episodes[].minWatched"},
		}, UniqueKeysPerRow: true},
		{Name: "idx_showid_seasonNum_minWatched", Keys: []nestdb.IndexKeyPath{
			{Raw: "shows[].showId"}, {Raw: "shows[].seasons[].seasonNum"}, {Raw: "shows[].seasons[].episodes[].minWatched"},
		}, UniqueKeysPerRow: true},
	} {
		if err := store.CreateIndex(ctx, "users", def); err != nil {
			return err
		}
	}
	return nil
}

// load reads every JSON document in dir concurrently and inserts it,
// backing off when the write throttle pushes back.
func load(ctx context.Context, store nestdb.Store, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no documents under %s", dir)
	}

	t, ok := store.Table("users")
	if !ok {
		return nestdb.ErrTableNotFound
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		g.Go(func() error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var doc data.M
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			for {
				_, err := t.Put(ctx, doc)
				if errors.Is(err, nestdb.ErrResourceExhausted) {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(50 * time.Millisecond):
					}
					continue
				}
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				return nil
			}
		})
	}
	return g.Wait()
}

func runQuery(ctx context.Context, store nestdb.Store, label, src string, showPlan bool) error {
	color.New(color.FgCyan, color.Bold).Println(label)

	pq, err := store.Prepare(ctx, src)
	if err != nil {
		return err
	}
	if showPlan {
		color.New(color.FgYellow).Print(store.Explain(pq))
	}

	cur, err := store.Execute(ctx, pq)
	if err != nil {
		return err
	}
	defer cur.Close()

	for cur.Next() {
		out, err := json.Marshal(cur.Doc())
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	if err := cur.Err(); err != nil {
		return err
	}
	fmt.Println()
	return nil
}
