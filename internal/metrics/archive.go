package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edvin/periodical/internal/model"
)

// ArchiveLister is satisfied by *backup.Storage.
type ArchiveLister interface {
	List() ([]model.BackupArchive, error)
}

// ArchiveCollector reports the contents of backup storage on every scrape.
type ArchiveCollector struct {
	store ArchiveLister
	now   func() time.Time

	count     *prometheus.Desc
	bytes     *prometheus.Desc
	newestAge *prometheus.Desc
	up        *prometheus.Desc
}

func NewArchiveCollector(store ArchiveLister) *ArchiveCollector {
	return &ArchiveCollector{
		store: store,
		now:   time.Now,
		count: prometheus.NewDesc("magazine_backup_archives",
			"Number of archives in backup storage", []string{"kind"}, nil),
		bytes: prometheus.NewDesc("magazine_backup_archive_bytes",
			"Total size of archives in backup storage", nil, nil),
		newestAge: prometheus.NewDesc("magazine_backup_newest_archive_age_seconds",
			"Age of the newest regular archive", nil, nil),
		up: prometheus.NewDesc("magazine_backup_storage_up",
			"Whether backup storage could be listed", nil, nil),
	}
}

func (c *ArchiveCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.bytes
	ch <- c.newestAge
	ch <- c.up
}

func (c *ArchiveCollector) Collect(ch chan<- prometheus.Metric) {
	archives, err := c.store.List()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	var regular, snapshots int
	var total int64
	var newest *model.BackupArchive
	for i := range archives {
		total += archives[i].SizeBytes
		if strings.HasPrefix(archives[i].FileName, "pre-restore-") {
			snapshots++
			continue
		}
		regular++
		if newest == nil || archives[i].ModifiedAt.After(newest.ModifiedAt) {
			newest = &archives[i]
		}
	}

	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(regular), "regular")
	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(snapshots), "pre_restore")
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(total))
	if newest != nil {
		ch <- prometheus.MustNewConstMetric(c.newestAge, prometheus.GaugeValue, c.now().Sub(newest.ModifiedAt).Seconds())
	}
}
