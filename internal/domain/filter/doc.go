/*
Package filter holds the per-rank pixel transforms.

A Kernel declares which region of the image it needs around its partition
and then computes the partition's output from that region. Kernels that
need a statistic over the whole image obtain it through a Reducer, so every
rank must call Apply even when its partition is empty.

	Averaging   box mean over an x/y neighbourhood, needs a row halo
	Threshold   binarise against the global mean intensity, no halo
*/
package filter
