package index

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nestdb/nestdb/adapter/data"
	"github.com/nestdb/nestdb/adapter/pathnav"
	"github.com/nestdb/nestdb/domain"
)

type IndexTestSuite struct {
	suite.Suite
	nav domain.PathNavigator
}

func (s *IndexTestSuite) SetupSuite() {
	s.nav = pathnav.NewPathNavigator()
}

func (s *IndexTestSuite) def(name string, unique bool, raws ...string) domain.IndexDef {
	keys := make([]domain.IndexKeyPath, len(raws))
	for n, raw := range raws {
		p, err := s.nav.ParsePath(raw)
		s.Require().NoError(err)
		keys[n] = domain.IndexKeyPath{Raw: raw, Path: p, Type: domain.TypeAny}
	}
	return domain.IndexDef{Name: name, Keys: keys, UniqueKeysPerRow: unique}
}

func (s *IndexTestSuite) record(recno uint64, doc data.M) domain.Record {
	return domain.Record{Key: domain.Key{int64(recno)}, Recno: recno, Doc: doc}
}

func (s *IndexTestSuite) collect(seq func(yield func(domain.IndexEntry, error) bool)) []domain.IndexEntry {
	var entries []domain.IndexEntry
	for entry, err := range seq {
		s.Require().NoError(err)
		entries = append(entries, entry)
	}
	return entries
}

func (s *IndexTestSuite) keys(entries []domain.IndexEntry) [][]any {
	keys := make([][]any, len(entries))
	for n, e := range entries {
		keys[n] = e.Key
	}
	return keys
}

func (s *IndexTestSuite) TestInsert() {
	ctx := context.Background()

	// A scalar path contributes exactly one entry per document
	s.Run("Scalar", func() {
		idx, err := NewIndex(s.def("idx_country", false, "info.country"))
		s.Require().NoError(err)

		s.NoError(idx.Insert(ctx, s.record(1, data.M{"info": data.M{"country": "DK"}})))
		s.NoError(idx.Insert(ctx, s.record(2, data.M{"info": data.M{"country": "FR"}})))

		entries := s.collect(idx.Entries(ctx))
		s.Equal([][]any{{"DK"}, {"FR"}}, s.keys(entries))
	})

	// An array path contributes one entry per element
	s.Run("ArrayPath", func() {
		idx, err := NewIndex(s.def("idx_show", false, "info.shows[].showId"))
		s.Require().NoError(err)

		doc := data.M{"info": data.M{"shows": []any{
			data.M{"showId": int64(15)},
			data.M{"showId": int64(16)},
		}}}
		s.NoError(idx.Insert(ctx, s.record(1, doc)))

		entries := s.collect(idx.Entries(ctx))
		s.Equal([][]any{{int64(15)}, {int64(16)}}, s.keys(entries))
		for _, e := range entries {
			s.Equal(uint64(1), e.Recno)
		}
	})

	// Multiple array paths combine as a cross product, even when the
	// values came from the same array elements
	s.Run("CrossProduct", func() {
		idx, err := NewIndex(s.def("idx_show_season", false,
			"info.shows[].showId", "info.shows[].seriesInfo[].seasonNum"))
		s.Require().NoError(err)

		doc := data.M{"info": data.M{"shows": []any{
			data.M{"showId": int64(15), "seriesInfo": []any{
				data.M{"seasonNum": int64(1)},
				data.M{"seasonNum": int64(2)},
			}},
			data.M{"showId": int64(16), "seriesInfo": []any{
				data.M{"seasonNum": int64(1)},
			}},
		}}}
		s.NoError(idx.Insert(ctx, s.record(1, doc)))

		// 2 showIds x 3 seasonNums = 6 combinations
		entries := s.collect(idx.Entries(ctx))
		s.Equal([][]any{
			{int64(15), int64(1)},
			{int64(15), int64(1)},
			{int64(15), int64(2)},
			{int64(16), int64(1)},
			{int64(16), int64(1)},
			{int64(16), int64(2)},
		}, s.keys(entries))
	})

	// UNIQUE KEYS PER ROW collapses duplicate tuples from one document
	// but keeps equal tuples from different documents
	s.Run("UniqueKeysPerRow", func() {
		idx, err := NewIndex(s.def("idx_show_u", true, "info.shows[].showId"))
		s.Require().NoError(err)

		doc := data.M{"info": data.M{"shows": []any{
			data.M{"showId": int64(15)},
			data.M{"showId": int64(15)},
			data.M{"showId": int64(16)},
		}}}
		s.NoError(idx.Insert(ctx, s.record(1, doc)))
		s.NoError(idx.Insert(ctx, s.record(2, doc)))

		entries := s.collect(idx.Entries(ctx))
		s.Equal([][]any{{int64(15)}, {int64(15)}, {int64(16)}, {int64(16)}}, s.keys(entries))
	})

	// A missing path indexes the document under a single null component
	s.Run("MissingPath", func() {
		idx, err := NewIndex(s.def("idx_country", false, "info.country"))
		s.Require().NoError(err)

		s.NoError(idx.Insert(ctx, s.record(1, data.M{"info": data.M{}})))

		entries := s.collect(idx.Entries(ctx))
		s.Equal([][]any{{nil}}, s.keys(entries))
	})

	// An empty array at an iterated step yields no combinations for that
	// component, so the null placeholder applies
	s.Run("EmptyArray", func() {
		idx, err := NewIndex(s.def("idx_show", false, "info.shows[].showId"))
		s.Require().NoError(err)

		s.NoError(idx.Insert(ctx, s.record(1, data.M{"info": data.M{"shows": []any{}}})))

		entries := s.collect(idx.Entries(ctx))
		s.Equal([][]any{{nil}}, s.keys(entries))
	})

	// A declared key type rejects documents holding another type at the
	// path
	s.Run("DeclaredType", func() {
		def := s.def("idx_typed", false, "info.country")
		def.Keys[0].Type = domain.TypeInteger
		idx, err := NewIndex(def)
		s.Require().NoError(err)

		err = idx.Insert(ctx, s.record(1, data.M{"info": data.M{"country": "DK"}}))
		var mismatch *domain.ErrTypeMismatch
		s.ErrorAs(err, &mismatch)
		s.Equal(0, idx.NumKeys())
	})
}

func (s *IndexTestSuite) TestRemove() {
	ctx := context.Background()

	// Removing a record drops every entry it produced and nothing else
	s.Run("DropsOwnEntries", func() {
		idx, err := NewIndex(s.def("idx_show", false, "info.shows[].showId"))
		s.Require().NoError(err)

		doc1 := data.M{"info": data.M{"shows": []any{data.M{"showId": int64(15)}, data.M{"showId": int64(16)}}}}
		doc2 := data.M{"info": data.M{"shows": []any{data.M{"showId": int64(15)}}}}
		s.NoError(idx.Insert(ctx, s.record(1, doc1)))
		s.NoError(idx.Insert(ctx, s.record(2, doc2)))

		s.NoError(idx.Remove(ctx, s.record(1, doc1)))

		entries := s.collect(idx.Entries(ctx))
		s.Require().Len(entries, 1)
		s.Equal(uint64(2), entries[0].Recno)
	})
}

func (s *IndexTestSuite) TestLookup() {
	ctx := context.Background()

	idx, err := NewIndex(s.def("idx_country_show", false, "info.country", "info.shows[].showId"))
	s.Require().NoError(err)

	docs := []data.M{
		{"info": data.M{"country": "DK", "shows": []any{data.M{"showId": int64(15)}, data.M{"showId": int64(16)}}}},
		{"info": data.M{"country": "DK", "shows": []any{data.M{"showId": int64(26)}}}},
		{"info": data.M{"country": "FR", "shows": []any{data.M{"showId": int64(15)}}}},
	}
	for n, doc := range docs {
		s.Require().NoError(idx.Insert(ctx, s.record(uint64(n+1), doc)))
	}

	// Equality on the full tuple returns the matching entries only
	s.Run("FullEquality", func() {
		seq, err := idx.Lookup(ctx, domain.IndexSeek{EqVals: []any{"DK", int64(15)}})
		s.Require().NoError(err)
		entries := s.collect(seq)
		s.Require().Len(entries, 1)
		s.Equal(uint64(1), entries[0].Recno)
	})

	// An equality prefix matches every entry that shares it
	s.Run("Prefix", func() {
		seq, err := idx.Lookup(ctx, domain.IndexSeek{EqVals: []any{"DK"}})
		s.Require().NoError(err)
		s.Equal([][]any{
			{"DK", int64(15)},
			{"DK", int64(16)},
			{"DK", int64(26)},
		}, s.keys(s.collect(seq)))
	})

	// A range bound after the prefix picks an ordered slice of the tree
	s.Run("PrefixRange", func() {
		low := any(int64(16))
		seq, err := idx.Lookup(ctx, domain.IndexSeek{
			EqVals: []any{"DK"},
			Range:  &domain.SeekRange{Low: low, LowInc: true},
		})
		s.Require().NoError(err)
		s.Equal([][]any{
			{"DK", int64(16)},
			{"DK", int64(26)},
		}, s.keys(s.collect(seq)))
	})

	// Exclusive bounds drop the boundary tuples on both sides
	s.Run("ExclusiveRange", func() {
		seq, err := idx.Lookup(ctx, domain.IndexSeek{
			EqVals: []any{"DK"},
			Range:  &domain.SeekRange{Low: any(int64(15)), High: any(int64(26))},
		})
		s.Require().NoError(err)
		s.Equal([][]any{{"DK", int64(16)}}, s.keys(s.collect(seq)))
	})

	// An empty seek walks the whole index in order
	s.Run("NoSeek", func() {
		seq, err := idx.Lookup(ctx, domain.IndexSeek{})
		s.Require().NoError(err)
		s.Len(s.collect(seq), 4)
	})

	// A miss returns an empty sequence, not an error
	s.Run("NoMatch", func() {
		seq, err := idx.Lookup(ctx, domain.IndexSeek{EqVals: []any{"SE"}})
		s.Require().NoError(err)
		s.Empty(s.collect(seq))
	})
}

func (s *IndexTestSuite) TestDump() {
	ctx := context.Background()

	idx, err := NewIndex(s.def("idx_country", false, "info.country"))
	s.Require().NoError(err)
	s.NoError(idx.Insert(ctx, s.record(1, data.M{"info": data.M{"country": "FR"}})))
	s.NoError(idx.Insert(ctx, s.record(2, data.M{"info": data.M{"country": "DK"}})))

	var buf bytes.Buffer
	s.NoError(idx.Dump(ctx, &buf))

	// One JSON line per entry, in key order
	s.Equal("{\"key\":[\"DK\"],\"primary\":[2]}\n{\"key\":[\"FR\"],\"primary\":[1]}\n", buf.String())
}

func TestIndexTestSuite(t *testing.T) {
	suite.Run(t, new(IndexTestSuite))
}
