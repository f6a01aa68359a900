// Package progress aggregates and reports transfer progress.
//
// [Aggregator] combines per-chunk byte counts from concurrently running
// chunk tasks into a single monotonic progress stream:
//
//	agg := progress.NewAggregator(size, func(fraction float64, processed, total int64) {
//	    // fraction is within [0, 1]
//	})
//	agg.ChunkCompleted(task.Index, n)
//
// [Reporter] renders those updates for a terminal:
//
//	[ferry] Uploading: backup.tar
//	[ferry] Total size: 2.50 GiB | Workers: 6
//	[ferry] Progress: 45.2% | 1.13 GiB / 2.50 GiB | Speed: 48.20 MiB/s | ETA: 29s
package progress
