package sparkplug

import (
	"github.com/szibis/sparkplug-edge/internal/catalog"
	"github.com/szibis/sparkplug-edge/internal/wire"
)

// Int32DataSet is a table of Int32 columns carried as a dataset_value. It is
// encode-only: a received dataset_value is rejected as unsupported.
type Int32DataSet struct {
	Columns []string
	Rows    [][]int32
}

// Validate checks that every row has one element per column.
func (ds *Int32DataSet) Validate() error {
	for _, row := range ds.Rows {
		if len(row) != len(ds.Columns) {
			return ErrDataSetShape
		}
	}
	return nil
}

func sizeDataSet(ds *Int32DataSet) (int, error) {
	s := wire.NewSizer()
	if err := encodeDataSet(&s, ds); err != nil {
		return 0, err
	}
	return s.Len(), nil
}

func encodeDataSet(w *wire.Writer, ds *Int32DataSet) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if err := putVarint(w, catalog.DataSetNumColumns, uint64(len(ds.Columns))); err != nil {
		return err
	}
	for _, c := range ds.Columns {
		if err := putString(w, catalog.DataSetColumns, c); err != nil {
			return err
		}
	}
	for range ds.Columns {
		if err := putVarint(w, catalog.DataSetTypes, uint64(DataTypeInt32)); err != nil {
			return err
		}
	}
	for _, row := range ds.Rows {
		if err := putMessage(w, catalog.DataSetRows, sizeRow(row)); err != nil {
			return err
		}
		if err := encodeRow(w, row); err != nil {
			return err
		}
	}
	return nil
}

func sizeRow(row []int32) int {
	s := wire.NewSizer()
	_ = encodeRow(&s, row)
	return s.Len()
}

func encodeRow(w *wire.Writer, row []int32) error {
	elem := catalog.Describe(catalog.DataSetValueInt)
	for _, v := range row {
		bits := uint64(uint32(v))
		size := wire.SizeTag(elem.Number) + wire.SizeVarint(bits)
		if err := putMessage(w, catalog.RowElements, size); err != nil {
			return err
		}
		if err := putVarint(w, catalog.DataSetValueInt, bits); err != nil {
			return err
		}
	}
	return nil
}
