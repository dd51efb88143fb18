package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	foldersMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clouddrive_folders_materialized_total",
			Help: "Папки, разрешённые при загрузке директорий, по результату",
		},
		[]string{"result"}, // created | reused | failed
	)

	filesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clouddrive_uploaded_files_total",
			Help: "Успешно загруженные файлы по категории",
		},
		[]string{"category"},
	)

	uploadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clouddrive_upload_failures_total",
			Help: "Файлы, которые не удалось загрузить",
		},
	)

	uploadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clouddrive_uploaded_bytes_total",
			Help: "Объём записанных блобов",
		},
	)

	archivesBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clouddrive_archives_built_total",
			Help: "Собранные ZIP архивы",
		},
	)

	archiveEntriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clouddrive_archive_entries_skipped_total",
			Help: "Файлы, пропущенные при сборке архива из-за отсутствующих блобов",
		},
	)

	archiveSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clouddrive_archive_size_bytes",
			Help:    "Размер собранных архивов",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
		},
	)
)
