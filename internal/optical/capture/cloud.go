package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
)

// WriteXYZ writes one "x y z" line per point.
func WriteXYZ(w io.Writer, pts []r3.Vec) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for _, p := range pts {
		buf = buf[:0]
		buf = strconv.AppendFloat(buf, p.X, 'f', 4, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, p.Y, 'f', 4, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, p.Z, 'f', 4, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveXYZ writes pts to path, replacing any existing file.
func SaveXYZ(path string, pts []r3.Vec) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create point cloud: %w", err)
	}
	if err := WriteXYZ(f, pts); err != nil {
		f.Close()
		return fmt.Errorf("write point cloud: %w", err)
	}
	return f.Close()
}
