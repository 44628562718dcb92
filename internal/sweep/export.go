package sweep

import (
	"bufio"
	"errors"
	"io"
	"strconv"

	"github.com/banshee-data/sourcemeter/internal/fsutil"
)

// Columns is the header written above every record.
var Columns = []string{"t", "V", "I", "P"}

// Export writes records as flat text: per record a tab-separated header
// line, one tab-separated row per sample, then two newlines. Cells are not
// escaped. An empty record list writes nothing and returns an *ExportError
// wrapping ErrNoData.
func Export(w io.Writer, records []Record) error {
	if len(records) == 0 {
		return &ExportError{Err: ErrNoData}
	}

	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for _, r := range records {
		writeRow(bw, Columns...)
		for i := 0; i < r.Len(); i++ {
			for c, v := range [...]float64{r.T[i], r.V[i], r.I[i], r.P[i]} {
				if c > 0 {
					bw.WriteByte('\t')
				}
				buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
				bw.Write(buf)
			}
			bw.WriteByte('\n')
		}
		bw.WriteString("\n\n")
	}
	if err := bw.Flush(); err != nil {
		return &ExportError{Err: err}
	}
	return nil
}

func writeRow(bw *bufio.Writer, cells ...string) {
	for c, cell := range cells {
		if c > 0 {
			bw.WriteByte('\t')
		}
		bw.WriteString(cell)
	}
	bw.WriteByte('\n')
}

// SaveFile exports records to path on fsys. The no-data check runs before
// the file is created, so an empty export leaves no file behind.
func SaveFile(fsys fsutil.FileSystem, path string, records []Record) (err error) {
	if len(records) == 0 {
		return &ExportError{Path: path, Err: ErrNoData}
	}

	f, err := fsys.Create(path)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &ExportError{Path: path, Err: cerr}
		}
	}()

	if err := Export(f, records); err != nil {
		var ee *ExportError
		if errors.As(err, &ee) {
			return &ExportError{Path: path, Err: ee.Err}
		}
		return &ExportError{Path: path, Err: err}
	}
	return nil
}
