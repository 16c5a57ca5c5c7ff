package table

import (
	"github.com/vinicius-lino-figueiredo/bst"

	"github.com/nestdb/nestdb/domain"
)

type bstComparer struct {
	comparer domain.Comparer
}

// NewBSTComparer adapts a domain comparer to the primary tree, ordering by
// primary key and identifying records by recno.
func NewBSTComparer(comparer domain.Comparer) bst.Comparer[any, domain.Record] {
	return &bstComparer{
		comparer: comparer,
	}
}

// CompareKeys implements bst.Comparer.
func (bc *bstComparer) CompareKeys(a any, b any) (int, error) {
	return bc.comparer.Compare(a, b)
}

// CompareValues implements bst.Comparer.
func (bc *bstComparer) CompareValues(a domain.Record, b domain.Record) (bool, error) {
	return a.Recno == b.Recno, nil
}
