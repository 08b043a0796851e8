package build

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/waterinstitute/metget/internal/log"
)

const atcfTimeLayout = "2006010215"

// atcfValidTime computes the valid time of an ATCF track line: the
// synoptic cycle in comma field 2 plus the lead hours in field 5. Best
// track lines carry zero lead, so their valid time is the cycle itself;
// forecast lines all share one cycle and differ only in lead.
func atcfValidTime(line string) (time.Time, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 6 {
		return time.Time{}, fmt.Errorf("short atcf line: %q", line)
	}
	cycle, err := time.Parse(atcfTimeLayout, strings.TrimSpace(parts[2]))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad atcf date in %q: %w", line, err)
	}
	lead, err := strconv.Atoi(strings.TrimSpace(parts[5]))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad atcf lead hours in %q: %w", line, err)
	}
	return cycle.Add(time.Duration(lead) * time.Hour), nil
}

// rewriteATCFLine restamps a track line so the whole merged file shares
// one start date, with the forecast hour column holding the offset from
// that start.
func rewriteATCFLine(line string, start, when time.Time) string {
	hours := int(when.Sub(start).Hours())
	return line[:8] + start.Format(atcfTimeLayout) + line[18:29] +
		fmt.Sprintf("%4d", hours) + line[33:]
}

func readTrackLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 33 {
			return nil, fmt.Errorf("short atcf line in %s: %q", path, line)
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

// MergeTracks splices a best track file and a forecast track file into a
// single continuous ATCF track. Best track entries run up to the first
// forecast valid time; forecast entries fill in everything after it.
func MergeTracks(btkPath, fcstPath, outPath string) error {
	btk, err := readTrackLines(btkPath)
	if err != nil {
		return fmt.Errorf("reading best track %s: %w", btkPath, err)
	}
	fcst, err := readTrackLines(fcstPath)
	if err != nil {
		return fmt.Errorf("reading forecast track %s: %w", fcstPath, err)
	}
	if len(btk) == 0 {
		return fmt.Errorf("best track %s is empty", btkPath)
	}

	start, err := atcfValidTime(btk[0])
	if err != nil {
		return err
	}

	// The handoff point is the first forecast valid time. With no
	// forecast lines the best track stands alone.
	cutoff := time.Time{}
	if len(fcst) > 0 {
		if cutoff, err = atcfValidTime(fcst[0]); err != nil {
			return err
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)

	seen := map[time.Time]bool{}
	for _, line := range btk {
		when, err := atcfValidTime(line)
		if err != nil {
			return err
		}
		if !cutoff.IsZero() && when.After(cutoff) {
			continue
		}
		fmt.Fprintln(w, rewriteATCFLine(line, start, when))
		seen[when] = true
	}
	for _, line := range fcst {
		when, err := atcfValidTime(line)
		if err != nil {
			return err
		}
		if seen[when] {
			continue
		}
		fmt.Fprintln(w, rewriteATCFLine(line, start, when))
		seen[when] = true
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	log.Infof("merged %d best track and %d forecast lines into %s", len(btk), len(fcst), outPath)
	return out.Close()
}
