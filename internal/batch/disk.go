package batch

import (
	"log/slog"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"krill/internal/logging"
)

// diskUsage reads free and total bytes for the filesystem holding path.
func diskUsage(path string) (free, total uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Bavail * bsize, st.Blocks * bsize, nil
}

// reportDisk logs work-dir capacity between items for operational
// visibility on long unattended runs.
func (o *Orchestrator) reportDisk(logger *slog.Logger) {
	if !o.cfg.Batch.DiskTelemetry {
		return
	}
	free, total, err := o.statfs(o.cfg.Paths.WorkDir)
	if err != nil {
		logger.Warn("disk telemetry failed", logging.Error(err))
		return
	}
	logger.Info("disk usage",
		logging.String("free", humanize.IBytes(free)),
		logging.String("total", humanize.IBytes(total)))
}
