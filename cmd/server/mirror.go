package main

import (
	"fmt"
	"io"
	"log"

	"orcasim.ai/internal/persistence/r2s3"
	"orcasim.ai/internal/platform/config"
)

// buildMirror returns nil when mirroring is disabled.
func buildMirror(dataDir string, env config.MirrorEnv, logger *log.Logger) (*r2s3.Mirror, error) {
	if !env.Enabled {
		return nil, nil
	}
	client, err := r2s3.New(r2s3.Config{
		Endpoint:        env.Endpoint,
		Bucket:          env.Bucket,
		Region:          env.Region,
		AccessKeyID:     env.AccessKeyID,
		SecretAccessKey: env.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return r2s3.NewMirror(client, dataDir, r2s3.MirrorOptions{
		Prefix:  env.Prefix,
		Workers: env.Workers,
	}, logger), nil
}

func writeMirrorMetrics(rw io.Writer, worldID string, st r2s3.MirrorStats) {
	fmt.Fprintf(rw, "# HELP orca_mirror_queue_depth Files waiting for upload.\n")
	fmt.Fprintf(rw, "# TYPE orca_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "orca_mirror_queue_depth{world=%q} %d\n", worldID, st.QueueDepth)
	fmt.Fprintf(rw, "# HELP orca_mirror_uploads_total Upload outcomes.\n")
	fmt.Fprintf(rw, "# TYPE orca_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "orca_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "ok", st.UploadSuccessTotal)
	fmt.Fprintf(rw, "orca_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "fail", st.UploadFailTotal)
	fmt.Fprintf(rw, "orca_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "dropped", st.DroppedTotal)
}
