package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/errors"
)

// Calibration results are written back into the settings file as an
// autosave block at the end, every line prefixed with "#*#". The user's
// hand-written configuration above the block is never rewritten; saving
// replaces only the block itself.

const autosaveHeader = autosavePrefix + " <--- calibration data below, managed by octool --->"

// SaveCalibration rewrites the settings file's autosave block with the
// given per-channel tables. Existing autosave content is replaced; the
// rest of the file is preserved byte for byte.
func SaveCalibration(path string, tables map[int]*calibration.Table) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, fmt.Sprintf("unable to open %s", path))
	}

	var kept []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), autosavePrefix) {
			continue
		}
		kept = append(kept, line)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		f.Close()
		return errors.Wrap(scanErr, errors.ErrConfigSection, "read failed")
	}
	f.Close()

	// Trim trailing blank lines so the block always sits directly under
	// the user's config.
	for len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
		kept = kept[:len(kept)-1]
	}

	var sb strings.Builder
	for _, line := range kept {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if len(tables) > 0 {
		sb.WriteByte('\n')
		sb.WriteString(autosaveHeader)
		sb.WriteByte('\n')

		channels := make([]int, 0, len(tables))
		for ch := range tables {
			channels = append(channels, ch)
		}
		sort.Ints(channels)
		for _, ch := range channels {
			fmt.Fprintf(&sb, "%s [calibration %d]\n", autosavePrefix, ch)
			fmt.Fprintf(&sb, "%s points: %s\n", autosavePrefix, FormatPoints(tables[ch]))
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "write failed")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, errors.ErrConfigSection, "rename failed")
	}
	return nil
}
