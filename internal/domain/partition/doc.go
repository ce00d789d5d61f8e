// Package partition splits the flat pixel index space [0, W·H) across a
// fixed group of ranks and computes the row-aligned halo each rank needs
// for neighbourhood filters.
//
// All ranges are expressed in pixels. Collective transfers move raw
// samples, so every offset and count crosses into byte units through
// ToBytes, Partition.Bytes or Halo.Bytes and nowhere else.
package partition
