// Command ckptctl inspects and maintains checkpoint lineages stored in
// Redis.
//
//	ckptctl list run-42
//	ckptctl get run-42 ckpt_01h455vb4pex5vsknk084sn02q
//	ckptctl release run-42 --redis-addr redis:6379
//
// Settings come from flags, CKPT_* environment variables or a config file
// passed with --config, in that order of precedence.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
