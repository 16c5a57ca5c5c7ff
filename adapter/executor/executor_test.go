package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nestdb/nestdb/adapter/parser"
	"github.com/nestdb/nestdb/adapter/planner"
	"github.com/nestdb/nestdb/adapter/table"
	"github.com/nestdb/nestdb/domain"
)

func season(num int, minutes ...int) map[string]any {
	eps := make([]any, len(minutes))
	for n, m := range minutes {
		eps[n] = map[string]any{"episodeID": 100 + n, "minWatched": m}
	}
	return map[string]any{"seasonNum": num, "episodes": eps}
}

func show(id int, name, start string, seasons ...map[string]any) map[string]any {
	arr := make([]any, len(seasons))
	for n, s := range seasons {
		arr[n] = s
	}
	return map[string]any{"showId": id, "showName": name, "seriesStartDate": start, "seasons": arr}
}

type ExecutorTestSuite struct {
	suite.Suite
	executor domain.Executor
	planner  domain.Planner
	table    domain.Table
	bare     domain.Table
}

func (s *ExecutorTestSuite) SetupTest() {
	s.executor = NewExecutor()
	s.planner = planner.NewPlanner()

	users := []map[string]any{
		{
			"acct_id": 1, "user_id": 1, "country": "USA",
			"shows": []any{
				show(15, "Orphan Black", "2021-03-10", season(1, 45, 77), season(2, 60)),
				show(16, "Halt and Catch Fire", "2020-05-01", season(1, 80)),
			},
		},
		{
			"acct_id": 1, "user_id": 2, "country": "USA",
			"shows": []any{
				show(16, "Halt and Catch Fire", "2021-10-01", season(1, 50, 25)),
				show(26, "Rita", "2021-06-01", season(1, 10)),
			},
		},
		{
			"acct_id": 2, "user_id": 1, "country": "FRA",
			"shows": []any{
				show(15, "Orphan Black", "2021-03-10", season(1, 30)),
			},
		},
	}

	ctx := context.Background()
	def := domain.TableDef{Name: "users", KeyFields: []string{"acct_id", "user_id"}}
	for _, dst := range []*domain.Table{&s.table, &s.bare} {
		t, err := table.NewTable(def)
		s.Require().NoError(err)
		for _, u := range users {
			_, err := t.Put(ctx, u)
			s.Require().NoError(err)
		}
		*dst = t
	}

	for _, idef := range []domain.IndexDef{
		{Name: "idx_country", Keys: []domain.IndexKeyPath{{Raw: "country"}}},
		{Name: "idx_country_showid_date", Keys: []domain.IndexKeyPath{
			{Raw: "country"}, {Raw: "shows[].showId"}, {Raw: "shows[].seriesStartDate"},
		}},
		{Name: "idx_showid", Keys: []domain.IndexKeyPath{{Raw: "shows[].showId"}}},
	} {
		s.Require().NoError(s.table.CreateIndex(ctx, idef))
	}
}

// run executes src against t and drains the cursor.
func (s *ExecutorTestSuite) run(t domain.Table, src string) []domain.Document {
	q, err := parser.NewParser().Parse(src)
	s.Require().NoError(err)
	plan, err := s.planner.Plan(q, t)
	s.Require().NoError(err)
	cur, err := s.executor.Execute(context.Background(), t, plan)
	s.Require().NoError(err)
	defer cur.Close()

	var docs []domain.Document
	for cur.Next() {
		docs = append(docs, cur.Doc())
	}
	s.Require().NoError(cur.Err())
	return docs
}

func (s *ExecutorTestSuite) count(t domain.Table, src string) int64 {
	docs := s.run(t, src)
	s.Require().Len(docs, 1)
	cnt, ok := docs[0].Get("cnt").(int64)
	s.Require().True(ok)
	return cnt
}

func (s *ExecutorTestSuite) TestCount() {
	// Independently quantified conjuncts may be satisfied by different
	// array elements of the same document
	s.Run("Quantified", func() {
		cnt := s.count(s.table, `select count(*) as cnt from users $u
			where $u.country = 'USA' and $u.shows.showId =any 16 and $u.shows.seriesStartDate >any '2020-12-31'`)
		s.Equal(int64(2), cnt)
	})

	// A filter step correlates the conditions to one element
	s.Run("Correlated", func() {
		cnt := s.count(s.table, `select count(*) as cnt from users $u
			where exists $u.shows[$element.showId = 16 and $element.seriesStartDate > '2020-12-31']`)
		s.Equal(int64(1), cnt)
	})

	// A bare aggregate over an empty match still yields one row
	s.Run("EmptyInput", func() {
		cnt := s.count(s.table, `select count(*) as cnt from users $u where $u.country = 'JPN'`)
		s.Equal(int64(0), cnt)
	})
}

func (s *ExecutorTestSuite) TestUnnestGroupSort() {
	docs := s.run(s.table, `select $show.showId as id, count(*) as cnt from users $u,
		unnest($u.shows as $show) group by $show.showId order by count(*) desc`)
	s.Require().Len(docs, 3)

	// ties keep first-seen group order under the stable sort
	s.Equal(int64(15), docs[0].Get("id"))
	s.Equal(int64(2), docs[0].Get("cnt"))
	s.Equal(int64(16), docs[1].Get("id"))
	s.Equal(int64(2), docs[1].Get("cnt"))
	s.Equal(int64(26), docs[2].Get("id"))
	s.Equal(int64(1), docs[2].Get("cnt"))
}

func (s *ExecutorTestSuite) TestSumOfNestedMinutes() {
	docs := s.run(s.table, `select $show.showId as id,
		sum(seq_transform($show.seasons, seq_transform($sq1.episodes, $sq2.minWatched))) as total
		from users $u, unnest($u.shows as $show) group by $show.showId`)
	s.Require().Len(docs, 3)

	totals := map[any]any{}
	for _, doc := range docs {
		totals[doc.Get("id")] = doc.Get("total")
	}
	s.Equal(int64(212), totals[int64(15)])
	s.Equal(int64(155), totals[int64(16)])
	s.Equal(int64(10), totals[int64(26)])
}

func (s *ExecutorTestSuite) TestPerRowSeqSum() {
	docs := s.run(s.table, `select $u.user_id as uid,
		seq_sum($u.shows[$element.showId = 26].seasons.episodes.minWatched) as total
		from users $u where $u.shows.showId =any 26`)
	s.Require().Len(docs, 1)
	s.Equal(int64(2), docs[0].Get("uid"))
	s.Equal(int64(10), docs[0].Get("total"))
}

func (s *ExecutorTestSuite) TestProjection() {
	// Undefined expressions project as NULL, constructors build values
	docs := s.run(s.table, `select $u.nope as gone, [ $u.acct_id, $u.user_id ] as pair
		from users $u where $u.country = 'FRA'`)
	s.Require().Len(docs, 1)
	s.True(docs[0].Has("gone"))
	s.Nil(docs[0].Get("gone"))
	s.Equal([]any{int64(2), int64(1)}, docs[0].Get("pair"))
}

func (s *ExecutorTestSuite) TestScanIntoStruct() {
	q, err := parser.NewParser().Parse(`select $u.user_id as uid, $u.country as country from users $u where $u.country = 'FRA'`)
	s.Require().NoError(err)
	plan, err := s.planner.Plan(q, s.table)
	s.Require().NoError(err)
	cur, err := s.executor.Execute(context.Background(), s.table, plan)
	s.Require().NoError(err)
	defer cur.Close()

	var out struct {
		UID     int64  `nestdb:"uid"`
		Country string `nestdb:"country"`
	}
	s.Require().True(cur.Next())
	s.Require().NoError(cur.Scan(&out))
	s.Equal(int64(1), out.UID)
	s.Equal("FRA", out.Country)
	s.False(cur.Next())
}

// Index scans and full scans agree document for document. Entry
// deduplication keeps multi-entry documents from repeating.
func (s *ExecutorTestSuite) TestIndexScanEquivalence() {
	queries := []string{
		`select count(*) as cnt from users $u where $u.country = 'USA'`,
		`select count(*) as cnt from users $u where $u.country = 'USA' and $u.shows.showId =any 16`,
		`select $u.user_id as uid from users $u where exists $u.shows[$element.showId = 15] order by $u.acct_id`,
		`select count(*) as cnt from users $u where $u.country = 'USA' and $u.shows.showId >=any 16 and $u.shows.showId <=any 26`,
	}
	for _, src := range queries {
		indexed := s.run(s.table, src)
		full := s.run(s.bare, src)
		s.Equal(full, indexed, src)
	}
}

func (s *ExecutorTestSuite) TestForcedIndex() {
	cnt := s.count(s.table, `select /*+ FORCE_INDEX(users idx_showid) */ count(*) as cnt from users $u where $u.country = 'USA'`)
	s.Equal(int64(2), cnt)
}

func (s *ExecutorTestSuite) TestCloseStopsIteration() {
	q, err := parser.NewParser().Parse(`select $u.user_id as uid from users $u`)
	s.Require().NoError(err)
	plan, err := s.planner.Plan(q, s.table)
	s.Require().NoError(err)
	cur, err := s.executor.Execute(context.Background(), s.table, plan)
	s.Require().NoError(err)

	s.Require().True(cur.Next())
	s.Require().NoError(cur.Close())
	s.False(cur.Next())
	s.NoError(cur.Err())
	s.ErrorIs(cur.Scan(new(map[string]any)), domain.ErrCursorClosed)
}

func TestExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}
