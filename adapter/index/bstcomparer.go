package index

import (
	"github.com/vinicius-lino-figueiredo/bst"

	"github.com/nestdb/nestdb/domain"
)

type bstComparer struct {
	comparer domain.Comparer
}

// NewBSTComparer adapts a [domain.Comparer] to the tree's comparer
// interface. Keys are key tuples; two entries are the same value when they
// came from the same record.
func NewBSTComparer(comparer domain.Comparer) bst.Comparer[any, domain.IndexEntry] {
	return &bstComparer{
		comparer: comparer,
	}
}

// CompareKeys implements bst.Comparer.
func (bc *bstComparer) CompareKeys(a any, b any) (int, error) {
	return bc.comparer.Compare(a, b)
}

// CompareValues implements bst.Comparer.
func (bc *bstComparer) CompareValues(a domain.IndexEntry, b domain.IndexEntry) (bool, error) {
	return a.Recno == b.Recno, nil
}
