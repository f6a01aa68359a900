// Package chunk plans the byte-range tasks of a chunked transfer.
//
// A plan partitions [0, size) into contiguous, ascending, inclusive ranges.
// Downloads use [Plan], which starts with a short ramp of small chunks so
// callers see progress early, then fills the rest with randomized chunks
// between 40% and 100% of the base chunk size. Uploads use [PlanUniform].
//
// # Usage
//
//	tasks, err := chunk.Plan(info.Size, 8*1024*1024, 5)
//	for _, t := range tasks {
//	    // fetch bytes [t.Start, t.End]
//	}
//
// A zero-length file yields an empty plan; callers treat it as already
// transferred.
package chunk
