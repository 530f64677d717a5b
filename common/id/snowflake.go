// Package id hands out the time-ordered int64 identifiers used for
// conversations, messages, and quarantine records.
package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets up the process-wide generator. Each binary (server, reconciler)
// passes a distinct node ID so their ids never collide. Only the first call
// takes effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns the next id. Init must have been called first; ids sort by
// creation time.
func New() int64 {
	return node.Generate().Int64()
}
