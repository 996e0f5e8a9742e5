package metrics

import "time"

// StorageOperation records one backend call and its outcome.
func StorageOperation(backend, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	StorageOperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// StorageListFailed records a backend dropped from an aggregate listing.
func StorageListFailed(backend string) {
	StorageListFailuresTotal.WithLabelValues(backend).Inc()
}

// StorageObjectOrphaned records a best-effort delete that failed.
func StorageObjectOrphaned(backend string) {
	StorageOrphanedObjectsTotal.WithLabelValues(backend).Inc()
}

// PresignedURLIssued records a presigned upload URL handed out.
func PresignedURLIssued(backend string) {
	PresignedURLsIssued.WithLabelValues(backend).Inc()
}

// PhotoIngested records the outcome of converting an upload into a photo.
func PhotoIngested(err error) {
	if err != nil {
		PhotosIngested.WithLabelValues("failed").Inc()
		return
	}
	PhotosIngested.WithLabelValues("completed").Inc()
}

// PhotoVariantGenerated records one resized variant written.
func PhotoVariantGenerated(size string) {
	PhotoVariantsGenerated.WithLabelValues(size).Inc()
}

// TakenAtFixed counts one repaired capture date.
func TakenAtFixed() {
	TakenAtRepaired.Inc()
}
