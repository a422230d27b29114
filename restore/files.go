package restore

import (
	"os"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/deduperr"
	"github.com/MuriData/chkpdedup/internal/wire"
)

// FromFiles reads one diff per path and restores target (§6's
// restart_from_files). A missing or unreadable file surfaces as an IOError
// before any chain logic runs.
func FromFiles(mode config.Variant, paths []string, target uint32) ([]byte, error) {
	diffs := make([]*wire.Diff, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, deduperr.New(deduperr.IOError, "restore_from_files", err)
		}
		d, err := wire.Read(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}
	return Restore(mode, diffs, target)
}
