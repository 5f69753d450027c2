// Package deploy contains the core deployment model.
//
// It defines Target (test or production), File and FileSet (what gets
// synchronised), Plan (where it goes and what may be pruned) and the error
// taxonomy shared by the repository, remote and service layers.
package deploy
