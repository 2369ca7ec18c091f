package camera

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadCameraList reads a file holding one camera-file path per line and loads
// each camera. Pinhole text files and sensor state JSON files are both
// accepted. Returned names are the file basenames without extension, in input
// order.
func ReadCameraList(path string) (names []string, models []Model, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening camera list: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var m Model
		if strings.EqualFold(filepath.Ext(line), ".json") {
			m, err = LoadState(line)
		} else {
			m, err = LoadPinhole(line)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("camera list entry %q: %w", line, err)
		}

		base := filepath.Base(line)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		names = append(names, name)
		models = append(models, m)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading camera list: %w", err)
	}
	if len(models) == 0 {
		return nil, nil, fmt.Errorf("camera list %s is empty", path)
	}
	return names, models, nil
}
