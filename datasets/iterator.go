package datasets

// Source is anything indexable by record, such as a dataset or a Collection.
type Source interface {
	Len() int
	Get(i int) (Sample, error)
}

// Iterator walks a Source in order. Running past the last record ends the
// iteration; it is not an error.
//
//	it := datasets.NewIterator(ds)
//	for it.Next() {
//		s := it.Sample()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator struct {
	src    Source
	next   int
	sample Sample
	err    error
}

func NewIterator(src Source) *Iterator {
	return &Iterator{src: src}
}

// Next advances to the next record and reports whether one was read.
func (it *Iterator) Next() bool {
	if it.err != nil || it.next >= it.src.Len() {
		it.sample = Sample{}
		return false
	}
	it.sample, it.err = it.src.Get(it.next)
	if it.err != nil {
		it.sample = Sample{}
		return false
	}
	it.next++
	return true
}

func (it *Iterator) Sample() Sample {
	return it.sample
}

// Index is the position of the current sample.
func (it *Iterator) Index() int {
	return it.next - 1
}

// Err returns the first read error, or nil after normal exhaustion.
func (it *Iterator) Err() error {
	return it.err
}
