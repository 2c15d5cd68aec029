// Package pipeline compiles a LaTeX snippet into a PNG artifact by running
// three external stages (latex, dvips, convert) over per-fingerprint scratch
// files in a work directory.
//
// Each stage is a shell command template. Placeholders are replaced before
// execution:
//
//	$density  rasterization density
//	$texfile  scratch .tex input
//	$dvifile  scratch .dvi output of the latex stage
//	$epsfile  scratch .eps output of the dvips stage
//	$pngfile  scratch .png output of the convert stage
//	$logfile  debug log path, or the null device when debug is off
//
// A stage succeeds only on exit status 0. When a stage fails the later stages
// are skipped, the scratch files are removed and no artifact is written.
package pipeline
