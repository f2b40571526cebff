/*
Package metrics exports bucketfs operation metrics through a Prometheus registry.

Two layers are recorded. Filesystem operations (ls, rm, open, pipe, ...) are
observed by the facade through RecordOperation. Individual storage requests
(HeadObject, UploadPart, DeleteObjects, ...) are observed by the S3 backend
through RecordBackend and RecordBytes, which makes a Collector usable as the
backend's Recorder.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Namespace: "bucketfs",
	}, logger)
	if err != nil {
		log.Fatal(err)
	}
	backend.SetRecorder(collector)
	http.Handle("/metrics", collector.Handler())

A nil or disabled Collector accepts every call and records nothing.
*/
package metrics
