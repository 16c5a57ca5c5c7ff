package eval

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nestdb/nestdb/adapter/data"
	"github.com/nestdb/nestdb/adapter/parser"
	"github.com/nestdb/nestdb/domain"
)

type EvalTestSuite struct {
	suite.Suite
	eval domain.Evaluator
	env  *domain.Env
}

func (s *EvalTestSuite) SetupSuite() {
	s.eval = NewEvaluator()

	doc, err := data.NewDocument(map[string]any{
		"acct_id": 7,
		"user_id": 3,
		"country": "USA",
		"shows": []any{
			map[string]any{
				"showId":   15,
				"showName": "Orphan Black",
				"seasons": []any{
					map[string]any{"seasonNum": 1, "episodes": []any{
						map[string]any{"episodeID": 20, "minWatched": 45},
						map[string]any{"episodeID": 21, "minWatched": 77},
					}},
					map[string]any{"seasonNum": 2, "episodes": []any{
						map[string]any{"episodeID": 36, "minWatched": 60},
					}},
				},
			},
			map[string]any{
				"showId":   16,
				"showName": "Halt and Catch Fire",
				"seasons": []any{
					map[string]any{"seasonNum": 1, "episodes": []any{
						map[string]any{"episodeID": 91, "minWatched": 80},
					}},
				},
			},
		},
	})
	s.Require().NoError(err)
	s.env = (*domain.Env)(nil).Bind("$u", doc)
}

// where parses src as a predicate against a dummy query shell.
func (s *EvalTestSuite) where(src string) domain.Expr {
	q, err := parser.NewParser().Parse("select count(*) from users where " + src)
	s.Require().NoError(err)
	return q.Where
}

// item parses src as a single select item expression.
func (s *EvalTestSuite) item(src string) domain.Expr {
	q, err := parser.NewParser().Parse("select " + src + " as v from users")
	s.Require().NoError(err)
	return q.Select[0].Expr
}

func (s *EvalTestSuite) truth(src string) bool {
	v, err := s.eval.Truth(s.env, s.where(src))
	s.Require().NoError(err)
	return v
}

func (s *EvalTestSuite) value(src string) (any, bool) {
	v, defined, err := s.eval.Eval(s.env, s.item(src))
	s.Require().NoError(err)
	return v, defined
}

func (s *EvalTestSuite) TestPaths() {
	// A path reaching one value yields that value
	s.Run("Scalar", func() {
		v, defined := s.value("$u.country")
		s.True(defined)
		s.Equal("USA", v)
	})

	// Field steps iterate arrays implicitly
	s.Run("AutoIteration", func() {
		v, defined := s.value("$u.shows.showId")
		s.True(defined)
		s.Equal([]any{int64(15), int64(16)}, v)
	})

	// A path reaching nothing is undefined, not an error
	s.Run("Missing", func() {
		_, defined := s.value("$u.nope.deeper")
		s.False(defined)
	})

	// A filter step keeps the elements satisfying its $element predicate
	s.Run("Filtered", func() {
		v, defined := s.value("$u.shows[$element.showId = 16].showName")
		s.True(defined)
		s.Equal("Halt and Catch Fire", v)
	})

	// An explicit [] step over a non-array is a type error
	s.Run("IterateScalar", func() {
		_, _, err := s.eval.Eval(s.env, s.item("$u.country[].x"))
		s.ErrorAs(err, new(*domain.ErrTypeMismatch))
	})
}

func (s *EvalTestSuite) TestCompare() {
	// =any succeeds when any element of the flattened sequence matches
	s.Run("Quantified", func() {
		s.True(s.truth("$u.shows.showId =any 16"))
		s.False(s.truth("$u.shows.showId =any 99"))
		s.True(s.truth("$u.shows.seasons.episodes.minWatched >any 79"))
		s.False(s.truth("$u.shows.seasons.episodes.minWatched >any 80"))
	})

	// Without a quantifier a multi-valued operand compares as a whole
	// and is simply unequal to a scalar
	s.Run("Unquantified", func() {
		s.False(s.truth("$u.shows.showId = 15"))
		s.True(s.truth("$u.country = 'USA'"))
	})

	// Literal may sit on either side
	s.Run("LiteralOnLeft", func() {
		s.True(s.truth("'A' <= $u.country"))
		s.False(s.truth("'Z' <= $u.country"))
	})

	// An undefined operand makes the comparison unknown, and unknown
	// filters as false even under negation
	s.Run("ThreeValued", func() {
		s.False(s.truth("$u.nope = 1"))
		s.False(s.truth("not ($u.nope = 1)"))
		s.True(s.truth("$u.nope = 1 or $u.country = 'USA'"))
		s.False(s.truth("$u.nope = 1 and $u.country = 'USA'"))
	})

	// Mismatched type classes are unequal under =, ordered comparisons
	// on them are unknown
	s.Run("TypeClasses", func() {
		s.False(s.truth("$u.country = 1"))
		s.True(s.truth("$u.country != 1"))
		s.False(s.truth("$u.country < 1"))
	})
}

func (s *EvalTestSuite) TestExistsAndIn() {
	s.Run("Exists", func() {
		s.True(s.truth("exists $u.shows[$element.showId = 15]"))
		s.False(s.truth("exists $u.shows[$element.showId = 99]"))
	})

	s.Run("InList", func() {
		s.True(s.truth("$u.shows[$element.showId = 15].showName in ('X', 'Orphan Black')"))
		s.False(s.truth("$u.shows[$element.showId = 15].showName in ('X', 'Y')"))
	})
}

func (s *EvalTestSuite) TestFunctions() {
	s.Run("Size", func() {
		v, defined := s.value("size($u.shows)")
		s.True(defined)
		s.Equal(int64(2), v)
	})

	s.Run("SizeOfScalar", func() {
		_, _, err := s.eval.Eval(s.env, s.item("size($u.country)"))
		s.ErrorAs(err, new(*domain.ErrTypeMismatch))
	})

	// seq_sum adds up a flattened numeric path
	s.Run("SeqSum", func() {
		v, defined := s.value("seq_sum($u.shows.seasons.episodes.minWatched)")
		s.True(defined)
		s.Equal(int64(262), v)
	})

	s.Run("SeqSumUndefined", func() {
		_, defined := s.value("seq_sum($u.nope)")
		s.False(defined)
	})
}

func (s *EvalTestSuite) TestSeqTransform() {
	s.Run("Map", func() {
		v, defined := s.value("seq_transform($u.shows, $sq1.showId)")
		s.True(defined)
		s.Equal([]any{int64(15), int64(16)}, v)
	})

	// Each nesting level binds the next $sqN
	s.Run("Nested", func() {
		v, defined := s.value("seq_transform($u.shows, seq_transform($sq1.seasons, $sq2.seasonNum))")
		s.True(defined)
		s.Equal([]any{int64(1), int64(2), int64(1)}, v)
	})

	// A single mapped value collapses to a scalar
	s.Run("SingleResult", func() {
		v, defined := s.value("seq_transform($u.shows[$element.showId = 15], $sq1.showName)")
		s.True(defined)
		s.Equal("Orphan Black", v)
	})

	// Mapping a predicate yields booleans the quantifiers can test
	s.Run("PredicateBody", func() {
		s.True(s.truth("seq_transform($u.shows, size($sq1.seasons) >= 2) =any false"))
		s.True(s.truth("not seq_transform($u.shows, size($sq1.seasons) >= 1) =any false"))
	})
}

func (s *EvalTestSuite) TestConstructors() {
	s.Run("Array", func() {
		v, defined := s.value("[ $u.acct_id, $u.user_id ]")
		s.True(defined)
		s.Equal([]any{int64(7), int64(3)}, v)
	})

	s.Run("Object", func() {
		v, defined := s.value("{ 'id': $u.user_id, 'where': $u.country }")
		s.True(defined)
		doc, ok := v.(domain.Document)
		s.Require().True(ok)
		s.Equal(int64(3), doc.Get("id"))
		s.Equal("USA", doc.Get("where"))
	})

	// Undefined field values are left out of the object
	s.Run("ObjectSkipsUndefined", func() {
		v, _ := s.value("{ 'id': $u.user_id, 'gone': $u.nope }")
		doc, ok := v.(domain.Document)
		s.Require().True(ok)
		s.False(doc.Has("gone"))
	})
}

func (s *EvalTestSuite) TestAggregateOutsideGroup() {
	_, _, err := s.eval.Eval(s.env, s.item("count(*)"))
	s.ErrorContains(err, "outside group context")
}

func TestEvalTestSuite(t *testing.T) {
	suite.Run(t, new(EvalTestSuite))
}
