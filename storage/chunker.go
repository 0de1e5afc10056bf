package storage

// EmitFunc receives one chunk of encoded rows. data is only valid for the
// duration of the call.
type EmitFunc func(data []byte, rows int) error

// Chunker buffers appended rows and hands every full chunk of
// spec.ChunkRows rows to emit. Backends share it so chunk boundaries are
// identical whichever storage is used.
type Chunker struct {
	spec    DatasetSpec
	rowSize int
	buf     []byte
	rows    int
	emit    EmitFunc
}

func NewChunker(spec DatasetSpec, emit EmitFunc) *Chunker {
	return &Chunker{spec: spec, rowSize: spec.RowSize(), emit: emit}
}

// Append validates and buffers nRows rows, emitting chunks as they fill.
func (c *Chunker) Append(data []byte, nRows int) error {
	ends, err := CheckRows(c.spec, data, nRows)
	if err != nil {
		return err
	}
	start := 0
	for row := 0; row < nRows; {
		take := c.spec.ChunkRows - c.rows
		if take > nRows-row {
			take = nRows - row
		}
		var end int
		if c.rowSize > 0 {
			end = (row + take) * c.rowSize
		} else {
			end = ends[row+take-1]
		}
		c.buf = append(c.buf, data[start:end]...)
		c.rows += take
		row += take
		start = end
		if c.rows == c.spec.ChunkRows {
			if err := c.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush emits the pending partial chunk, if any.
func (c *Chunker) Flush() error {
	if c.rows == 0 {
		return nil
	}
	if err := c.emit(c.buf, c.rows); err != nil {
		return err
	}
	c.buf = c.buf[:0]
	c.rows = 0
	return nil
}

// Pending is the number of buffered rows not yet emitted.
func (c *Chunker) Pending() int { return c.rows }
