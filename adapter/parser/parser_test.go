package parser

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nestdb/nestdb/domain"
)

type ParserTestSuite struct {
	suite.Suite
	parser domain.Parser
}

func (s *ParserTestSuite) SetupSuite() {
	s.parser = NewParser()
}

func (s *ParserTestSuite) TestSelect() {
	// The minimal shape: aggregate, alias, table alias, conjunctive
	// where with a quantified comparison
	s.Run("CountWithQuantifier", func() {
		q, err := s.parser.Parse(`select count(*) as cnt from users u where u.info.country = "USA" and u.info.shows.showId =any 16`)
		s.Require().NoError(err)

		s.Require().Len(q.Select, 1)
		call, ok := q.Select[0].Expr.(*domain.Call)
		s.Require().True(ok)
		s.True(call.Star)
		s.Equal("count", call.Name)
		s.Equal("cnt", q.Select[0].As)
		s.Equal("users", q.Table)
		s.Equal("u", q.TableVar)

		and, ok := q.Where.(*domain.And)
		s.Require().True(ok)
		s.Require().Len(and.Args, 2)
		eq := and.Args[0].(*domain.Compare)
		s.Equal(domain.OpEq, eq.Op)
		s.False(eq.Any)
		s.Equal("USA", eq.RHS.(*domain.Literal).Value)
		anyEq := and.Args[1].(*domain.Compare)
		s.True(anyEq.Any)
		s.Equal(int64(16), anyEq.RHS.(*domain.Literal).Value)
	})

	// Unaliased path items take their last field as output name
	s.Run("DefaultNames", func() {
		q, err := s.parser.Parse(`select u.acct_id, $show.showName, $episode.date from users u`)
		s.Require().NoError(err)
		s.Equal("acct_id", q.Select[0].As)
		s.Equal("showName", q.Select[1].As)
		s.Equal("date", q.Select[2].As)
	})

	// Single-quoted strings are accepted, as passed on a command line
	s.Run("SingleQuotes", func() {
		q, err := s.parser.Parse(`select count(*) as cnt from users u where u.info.country = 'USA'`)
		s.Require().NoError(err)
		cmp := q.Where.(*domain.Compare)
		s.Equal("USA", cmp.RHS.(*domain.Literal).Value)
	})

	// A $-prefixed table alias binds the same way a bare one does
	s.Run("VarAlias", func() {
		q, err := s.parser.Parse(`select count(*) as cnt from users $u where $u.country = 'USA'`)
		s.Require().NoError(err)
		s.Equal("users", q.Table)
		s.Equal("$u", q.TableVar)
		cmp := q.Where.(*domain.Compare)
		lhs := cmp.LHS.(*domain.PathExpr)
		s.Equal("$u", lhs.Var)
		s.Require().Len(lhs.Path, 1)
		s.Equal("country", lhs.Path[0].Field)
	})

	// A missing table alias defaults to the table name
	s.Run("NoAlias", func() {
		q, err := s.parser.Parse(`select count(*) as cnt from users where users.acct_id = 1`)
		s.Require().NoError(err)
		s.Equal("users", q.TableVar)
	})
}

func (s *ParserTestSuite) TestPaths() {
	// Filter steps carry a predicate over $element, and steps continue
	// after the filter
	s.Run("FilteredSteps", func() {
		q, err := s.parser.Parse(`select count(*) as cnt from users u where exists u.info.shows[$element.showId = 16].seriesInfo.episodes[$element.date > "2021-04-01"]`)
		s.Require().NoError(err)

		exists, ok := q.Where.(*domain.Exists)
		s.Require().True(ok)
		pe := exists.Arg.(*domain.PathExpr)
		s.Equal("u", pe.Var)
		s.Require().Len(pe.Path, 6)
		s.Equal("info", pe.Path[0].Field)
		s.Equal("shows", pe.Path[1].Field)
		s.NotNil(pe.Path[2].Filter)
		s.Equal("seriesInfo", pe.Path[3].Field)
		s.Equal("episodes", pe.Path[4].Field)
		s.NotNil(pe.Path[5].Filter)
	})

	// Nested exists with an in list, as in the genre query
	s.Run("NestedExistsAndIn", func() {
		q, err := s.parser.Parse(`select count(*) as cnt from users u where exists u.info.shows[ exists $element.genres[$element in ("french", "danish")] and exists $element.seriesInfo.episodes["2021-01-01" <= $element.date and $element.date <= "2021-12-31"] ]`)
		s.Require().NoError(err)

		exists := q.Where.(*domain.Exists)
		pe := exists.Arg.(*domain.PathExpr)
		s.Require().Len(pe.Path, 3)
		and, ok := pe.Path[2].Filter.(*domain.And)
		s.Require().True(ok)
		s.Len(and.Args, 2)

		inner := and.Args[0].(*domain.Exists).Arg.(*domain.PathExpr)
		s.Equal("$element", inner.Var)
		in, ok := inner.Path[1].Filter.(*domain.InList)
		s.Require().True(ok)
		s.Equal("$element", in.LHS.(*domain.PathExpr).Var)
		s.Len(in.Elems, 2)
	})

	// [] parses as an iteration step, not a filter
	s.Run("IterationStep", func() {
		q, err := s.parser.Parse(`select $show.showId from users u, unnest(u.info.shows[] as $show)`)
		s.Require().NoError(err)
		s.Require().Len(q.Unnest, 1)
		src := q.Unnest[0].Source.(*domain.PathExpr)
		s.True(src.Path[len(src.Path)-1].Iterate)
		s.Equal("$show", q.Unnest[0].Var)
	})
}

func (s *ParserTestSuite) TestFromClause() {
	// Bare "path as $var" sources compose like unnest(...) and later
	// sources may reference earlier variables
	s.Run("BareBindings", func() {
		q, err := s.parser.Parse(`select u.acct_id from users u, u.info.shows[] as $show, $show.seriesInfo[] as $season, $season.episodes[] as $episode where $show.showId = 16`)
		s.Require().NoError(err)
		s.Require().Len(q.Unnest, 3)
		s.Equal("$show", q.Unnest[0].Var)
		s.Equal("$season", q.Unnest[1].Var)
		s.Equal("$episode", q.Unnest[2].Var)
		s.Equal("$show", q.Unnest[1].Source.(*domain.PathExpr).Var)
	})

	// unnest(...) may introduce several variables at once
	s.Run("UnnestList", func() {
		q, err := s.parser.Parse(`select $show.showId from users u, unnest(u.info.shows[] as $show, $show.seriesInfo[] as $seriesInfo) group by $show.showId`)
		s.Require().NoError(err)
		s.Len(q.Unnest, 2)
		s.Len(q.GroupBy, 1)
	})
}

func (s *ParserTestSuite) TestGroupOrder() {
	q, err := s.parser.Parse(`select $show.showId, count(*) as cnt from users u, unnest(u.info.shows[] as $show) group by $show.showId order by count(*) desc`)
	s.Require().NoError(err)

	s.Require().Len(q.GroupBy, 1)
	s.Equal("$show", q.GroupBy[0].(*domain.PathExpr).Var)

	s.Require().Len(q.OrderBy, 1)
	s.True(q.OrderBy[0].Desc)
	call := q.OrderBy[0].Expr.(*domain.Call)
	s.True(call.Star)
}

func (s *ParserTestSuite) TestHint() {
	q, err := s.parser.Parse(`select /*+ FORCE_INDEX(users idx_country_showid_date) */ count(*) as cnt from users u where u.info.country = "USA"`)
	s.Require().NoError(err)
	s.Require().NotNil(q.Hint)
	s.Equal("users", q.Hint.Table)
	s.Equal("idx_country_showid_date", q.Hint.Index)
}

func (s *ParserTestSuite) TestConstructors() {
	// Array and object constructors with seq_transform and its $sqN
	// variables, as in the episode-reshaping query
	q, err := s.parser.Parse(`select [ seq_transform(u.info.shows[$element.showId = 16], seq_transform($sq1.seriesInfo[], seq_transform($sq2.episodes[], { "showName" : $sq1.showName, "seasonNum" : $sq2.seasonNum }))) ] as episodes from users u`)
	s.Require().NoError(err)

	arr, ok := q.Select[0].Expr.(*domain.ArrayExpr)
	s.Require().True(ok)
	s.Require().Len(arr.Elems, 1)

	outer := arr.Elems[0].(*domain.Call)
	s.Equal("seq_transform", outer.Name)
	s.Require().Len(outer.Args, 2)

	mid := outer.Args[1].(*domain.Call)
	inner := mid.Args[1].(*domain.Call)
	obj, ok := inner.Args[1].(*domain.ObjectExpr)
	s.Require().True(ok)
	s.Require().Len(obj.Fields, 2)
	s.Equal("showName", obj.Fields[0].Name)
	s.Equal("$sq1", obj.Fields[0].Value.(*domain.PathExpr).Var)
}

func (s *ParserTestSuite) TestNegation() {
	// not binds looser than a comparison, so the quantifier stays inside
	q, err := s.parser.Parse(`select count(*) as cnt from users u where not seq_transform(u.info.shows[], $sq1.numEpisodes = size($sq1.episodes)) =any false`)
	s.Require().NoError(err)

	not, ok := q.Where.(*domain.Not)
	s.Require().True(ok)
	cmp := not.Arg.(*domain.Compare)
	s.True(cmp.Any)
	s.Equal(false, cmp.RHS.(*domain.Literal).Value)
	s.Equal("seq_transform", cmp.LHS.(*domain.Call).Name)
}

func (s *ParserTestSuite) TestErrors() {
	// Every malformed input is an ErrParse with position context
	for _, text := range []string{
		"",
		"select",
		"select count(*) as cnt",
		"select count(*) from",
		"select nope(*) from users u",
		`select count(*) from users u where u.x = "unterminated`,
		"select count(*) from users u where u.x ==",
		"select count(*) from users u extra garbage",
		"select /*+ SOMETHING_ELSE(a b) */ count(*) from users u",
		"select seq_transform(u.x) from users u",
	} {
		_, err := s.parser.Parse(text)
		var parseErr *domain.ErrParse
		s.ErrorAs(err, &parseErr, "input %q", text)
	}
}

func TestParserTestSuite(t *testing.T) {
	suite.Run(t, new(ParserTestSuite))
}
