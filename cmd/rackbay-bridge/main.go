// rackbay-bridge is the out-of-process plugin worker. The engine spawns it
// as <bridge-binary> <plugin-type> <filename> <label> <unique-id> with the
// four shared-memory region suffixes in ENGINE_BRIDGE_SHM_IDS.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rackbay/rackbay/internal/adapters"
	"github.com/rackbay/rackbay/internal/bridge"
	"github.com/rackbay/rackbay/internal/bridge/worker"
	"github.com/rackbay/rackbay/internal/logging"
	"github.com/rackbay/rackbay/internal/plugin"
)

func main() {
	if len(os.Args) != 5 {
		fmt.Fprintf(os.Stderr, "usage: %s <plugin-type> <filename> <label> <unique-id>\n", os.Args[0])
		os.Exit(2)
	}
	shmIDs := os.Getenv(bridge.ShmIDsEnv)
	if shmIDs == "" {
		fmt.Fprintf(os.Stderr, "%s is not set; this binary is spawned by the engine\n", bridge.ShmIDsEnv)
		os.Exit(2)
	}

	logging.Init(os.Getenv("ENGINE_OPTION_LOG_DIR"))

	uniqueID, _ := strconv.ParseInt(os.Args[4], 10, 64)
	ptype := plugin.TypeFromString(os.Args[1])
	adapter, err := adapters.Factory(ptype, os.Args[2], os.Args[3], uniqueID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load plugin: %v\n", err)
		os.Exit(1)
	}

	if err := worker.Run(shmIDs, adapter, logging.ForService("bridge-worker")); err != nil {
		fmt.Fprintf(os.Stderr, "bridge worker failed: %v\n", err)
		os.Exit(1)
	}
}
