package render

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/james226/scene-relay/scene"
)

var ErrNoScene = errors.New("no scene has been rendered")

// WriteOBJ writes data as a Wavefront OBJ model. With zero thickness the
// coordinates become a single polyline. Otherwise each coordinate is split
// into a lower and upper vertex thickness apart and consecutive pairs are
// joined by quad faces.
func WriteOBJ(w io.Writer, data *scene.SceneData, thickness float64) error {
	if data == nil || len(data.Coordinates) == 0 {
		return ErrNoScene
	}
	if thickness < 0 {
		return fmt.Errorf("thickness must not be negative, got %v", thickness)
	}

	bw := bufio.NewWriter(w)
	if data.Name != "" {
		fmt.Fprintf(bw, "o %s\n", data.Name)
	}

	if thickness == 0 {
		for _, c := range data.Coordinates {
			writeVertex(bw, c.Lon, c.Lat, c.Alt)
		}
		bw.WriteString("l")
		for i := range data.Coordinates {
			fmt.Fprintf(bw, " %d", i+1)
		}
		bw.WriteString("\n")
		return bw.Flush()
	}

	half := thickness / 2
	for _, c := range data.Coordinates {
		writeVertex(bw, c.Lon, c.Lat, c.Alt-half)
		writeVertex(bw, c.Lon, c.Lat, c.Alt+half)
	}
	for i := 0; i < len(data.Coordinates)-1; i++ {
		lower, upper := 2*i+1, 2*i+2
		fmt.Fprintf(bw, "f %d %d %d %d\n", lower, lower+2, upper+2, upper)
	}
	return bw.Flush()
}

func writeVertex(w *bufio.Writer, x, y, z float64) {
	w.WriteString("v ")
	w.WriteString(formatFloat(x))
	w.WriteByte(' ')
	w.WriteString(formatFloat(y))
	w.WriteByte(' ')
	w.WriteString(formatFloat(z))
	w.WriteByte('\n')
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
