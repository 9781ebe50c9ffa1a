package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

// NmonSampler drives nmon (http://nmon.sourceforge.net), the monitor
// backend named explicitly in spec §4.4. Install puts the nmon binary in
// place; each sample reads /proc/stat and `free` directly and reduces them
// to three percentages.
type NmonSampler struct{}

func (NmonSampler) Name() string { return "nmon" }

func (NmonSampler) InstallCommand(execPath string) string {
	return fmt.Sprintf("sudo apt-get update -y && sudo apt-get install -y nmon && sudo ln -sf $(command -v nmon) %s", execPath)
}

// SampleCommand prints cpu, mem and swap as three newline-separated
// percentages: cpu from the /proc/stat "cpu" line (user+system over
// user+nice+system+idle), mem and swap from `free`. It does not invoke
// execPath, so no persistent nmon daemon or file is involved.
func (NmonSampler) SampleCommand(execPath string) string {
	return `awk '/^cpu /{u=$2+$4; t=$2+$3+$4+$5; print (t>0)?100*u/t:0}' /proc/stat` +
		` && free | awk '/Mem:/{print ($2>0)?100*$3/$2:0}'` +
		` && free | awk '/Swap:/{print ($2>0)?100*$3/$2:0}'`
}

// Parse reads three newline-separated percentages: cpu, mem, swap.
func (NmonSampler) Parse(output string) (cpu, mem, swap float64, err error) {
	lines := strings.Fields(output)
	if len(lines) < 3 {
		return 0, 0, 0, fmt.Errorf("expected 3 sample values, got %d: %q", len(lines), output)
	}
	values := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, perr := strconv.ParseFloat(lines[i], 64)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("parse sample value %q: %w", lines[i], perr)
		}
		values[i] = v
	}
	return values[0], values[1], values[2], nil
}
